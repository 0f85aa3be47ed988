package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docwiki/internal/config"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/git"
	"git.home.luguber.info/inful/docwiki/internal/llm"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/notify"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

// fakeSource materialises a small repository per job.
type fakeSource struct {
	root   string
	err    error
	calls  int
	before func(jobID string)
	mu     sync.Mutex
}

func (f *fakeSource) Acquire(_ context.Context, jobID string, src models.SourceDescriptor) (git.AcquireResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.before != nil {
		f.before(jobID)
	}
	if f.err != nil {
		return git.AcquireResult{}, f.err
	}
	dir := filepath.Join(f.root, jobID)
	files := map[string]string{
		"README.md":          "# Demo\n\nA demo service.\n",
		"main.go":            "package main\n",
		"internal/server.go": "package internal\n",
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return git.AcquireResult{}, err
		}
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			return git.AcquireResult{}, err
		}
	}
	return git.AcquireResult{LocalPath: dir, Name: git.RepoName(src.URL), Branch: "main", Version: "0123456789abcdef"}, nil
}

type staticBackends struct{ backend llm.Backend }

func (s staticBackends) Get(config.LLMConfig) (llm.Backend, error) { return s.backend, nil }

// scriptedBackend answers each prompt kind and counts calls per content topic.
type scriptedBackend struct {
	mu       sync.Mutex
	topics   []string
	calls    map[string]int
	outlines int
	// failures maps a topic title to how many leading calls fail.
	failures map[string]int
	// hold, when set, runs before every call; a non-nil error is returned.
	hold func(ctx context.Context, prompt string) error
}

func newScriptedBackend(topics ...string) *scriptedBackend {
	return &scriptedBackend{topics: topics, calls: map[string]int{}, failures: map[string]int{}}
}

func (b *scriptedBackend) Model() string { return "scripted" }

func (b *scriptedBackend) Generate(ctx context.Context, prompt string, _ llm.Options) (string, error) {
	if b.hold != nil {
		if err := b.hold(ctx, prompt); err != nil {
			return "", err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case strings.Contains(prompt, "<documentation_structure>"):
		b.outlines++
		items := make([]string, len(b.topics))
		for i, t := range b.topics {
			items[i] = fmt.Sprintf(`{"title": %q, "dependent_file": ["main.go"]}`, t)
		}
		return "<documentation_structure>{\"items\": [" + strings.Join(items, ",") + "]}</documentation_structure>", nil
	case strings.Contains(prompt, "knowledge map"):
		return "# Demo\n## Entry:main.go\n## Server\n### Handlers:internal/server.go\n", nil
	case strings.Contains(prompt, "concise overview"):
		return "<docs>Demo overview.</docs>", nil
	}

	title := pageTitle(prompt)
	b.calls[title]++
	if b.calls[title] <= b.failures[title] {
		return "", errors.New("upstream timeout")
	}
	return "<docs>\n# " + title + "\n\nSee `internal/server.go`.\n</docs>", nil
}

func (b *scriptedBackend) callsFor(title string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[title]
}

func pageTitle(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if t, ok := strings.CutPrefix(line, "Page: "); ok {
			return t
		}
	}
	return ""
}

type harness struct {
	store   *store.MemoryStore
	source  *fakeSource
	backend *scriptedBackend
	events  *notify.Recorder
	control *Control
	worker  *Worker
	cfg     *config.Config
	proc    *Processor
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Generation.Concurrency = 2
	cfg.Generation.MaxAttempts = 3
	cfg.Generation.RetryBackoff = config.RetryBackoffFixed
	cfg.Generation.RetryBaseDelay = config.Duration(time.Millisecond)
	cfg.Generation.RetryMaxDelay = config.Duration(time.Millisecond)
	cfg.Scheduler.IdleBackoff = config.Duration(10 * time.Millisecond)
	return cfg
}

func newHarness(t *testing.T, backend *scriptedBackend) *harness {
	t.Helper()
	h := &harness{
		store:   store.NewMemoryStore(),
		source:  &fakeSource{root: t.TempDir()},
		backend: backend,
		events:  &notify.Recorder{},
		cfg:     testConfig(),
	}
	proc, err := NewProcessor(Deps{
		Store:    h.store,
		Source:   h.source,
		Backends: staticBackends{backend: backend},
		Notifier: h.events,
		Config:   func() *config.Config { return h.cfg },
	})
	require.NoError(t, err)
	h.proc = proc
	h.control = NewControl(h.store, h.events, nil)
	h.worker = NewWorker(store.Claimant{Instance: "test", Worker: "w0"}, h.store, proc, nil)
	return h
}

func (h *harness) submit(t *testing.T) *models.Job {
	t.Helper()
	job, err := h.control.Submit(context.Background(), models.SourceDescriptor{URL: "https://example.com/acme/demo.git"}, "")
	require.NoError(t, err)
	return job
}

func (h *harness) runOnce(t *testing.T) {
	t.Helper()
	picked, err := h.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, picked)
}

func (h *harness) job(t *testing.T, id string) *models.Job {
	t.Helper()
	j, err := h.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return j
}

var errUnauthorized = derrors.AcquisitionUnauthorized("https://example.com/acme/demo.git", errors.New("authentication required"))
