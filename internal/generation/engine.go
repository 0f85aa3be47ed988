// Package generation produces documentation content for catalogue nodes with
// bounded concurrency, per-node retry and post-processing.
package generation

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/docwiki/internal/config"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/llm"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/metrics"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/prompts"
	"git.home.luguber.info/inful/docwiki/internal/retry"
)

// NodeStore is the persistence the engine needs.
type NodeStore interface {
	CompleteNode(ctx context.Context, nodeID, content string, references []string) error
}

// Settings is a snapshot of the generation configuration for one run.
type Settings struct {
	Concurrency int
	Refine      bool
	Options     llm.Options
	Policy      retry.Policy
}

// SettingsFromConfig builds Settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Concurrency: cfg.Generation.Concurrency,
		Refine:      cfg.Generation.Refine,
		Options:     llm.OptionsFromConfig(cfg.LLM.Options),
		Policy:      retry.FromConfig(cfg.Generation),
	}
}

// Request is one content stage invocation.
type Request struct {
	JobID string
	// Nodes are generated in the given order; callers pass only incomplete nodes.
	Nodes []*models.CatalogueNode
	// Catalogue, when set, supplies breadcrumbs for prompts.
	Catalogue  *models.Catalogue
	Shared     prompts.Shared
	KnownPaths map[string]bool
}

// Result is the outcome for one node.
type Result struct {
	NodeID     string
	Attempts   int
	Content    string
	References []string
	Err        error
}

// Summary aggregates a run.
type Summary struct {
	Completed int
	Attempts  int
	Results   []Result
}

// Engine fans generation out over a fixed number of workers.
type Engine struct {
	backend  llm.Backend
	store    NodeStore
	settings Settings
	recorder metrics.Recorder
	inFlight atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine returns an engine. Zero settings fall back to defaults.
func NewEngine(backend llm.Backend, store NodeStore, settings Settings, opts ...Option) *Engine {
	if settings.Concurrency <= 0 {
		settings.Concurrency = 5
	}
	if settings.Policy.MaxAttempts <= 0 {
		settings.Policy = retry.DefaultPolicy()
	}
	e := &Engine{backend: backend, store: store, settings: settings, recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run generates content for every node in req. At most Concurrency backend
// calls are outstanding at once. The first node that exhausts its retries, or
// a persistence failure, cancels the remaining work and is returned.
func (e *Engine) Run(ctx context.Context, req Request) (*Summary, error) {
	summary := &Summary{}
	if len(req.Nodes) == 0 {
		return summary, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan *models.CatalogueNode)
	results := make(chan Result, len(req.Nodes))

	workers := min(e.settings.Concurrency, len(req.Nodes))
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for node := range work {
				results <- e.generateNode(runCtx, req, node, worker)
			}
		}(i)
	}

	go func() {
		defer close(work)
		for _, n := range req.Nodes {
			select {
			case work <- n:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for r := range results {
		summary.Attempts += r.Attempts
		summary.Results = append(summary.Results, r)
		if r.Err == nil {
			summary.Completed++
			continue
		}
		if firstErr == nil && !isCancellation(r.Err) {
			firstErr = r.Err
			cancel()
		}
	}

	if firstErr != nil {
		return summary, firstErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func isCancellation(err error) bool {
	return stdErrors.Is(err, context.Canceled)
}

func (e *Engine) topic(req Request, node *models.CatalogueNode) prompts.Topic {
	t := prompts.Topic{Title: node.Title, Prompt: node.Prompt, DependentFiles: node.DependentFiles}
	if req.Catalogue != nil {
		for _, n := range req.Catalogue.Path(node.ID) {
			t.Breadcrumb = append(t.Breadcrumb, n.Title)
		}
	}
	return t
}

func (e *Engine) generateNode(ctx context.Context, req Request, node *models.CatalogueNode, worker int) Result {
	res := Result{NodeID: node.ID}
	log := slog.With(logfields.JobID(req.JobID), logfields.NodeID(node.ID), logfields.NodeTitle(node.Title),
		logfields.Worker(fmt.Sprintf("gen-%d", worker)))

	prompt, err := prompts.Content(req.Shared, e.topic(req, node))
	if err != nil {
		res.Err = derrors.InternalError("render content prompt", err)
		return res
	}

	policy := e.settings.Policy
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			e.recorder.IncGenerationRetry()
			if err := policy.Wait(ctx, attempt-1); err != nil {
				res.Err = err
				return res
			}
		}
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		res.Attempts = attempt
		content, err := e.attempt(ctx, req.Shared, prompt)
		if err != nil {
			if ctx.Err() != nil {
				res.Err = ctx.Err()
				return res
			}
			lastErr = attemptError(node.ID, err)
			if !derrors.IsRetryable(lastErr) {
				res.Err = lastErr
				log.Error("Generation failed", logfields.Attempt(attempt), logfields.Error(err))
				return res
			}
			log.Warn("Generation attempt failed", logfields.Attempt(attempt),
				slog.Int("max_attempts", policy.MaxAttempts), logfields.Error(err))
			continue
		}

		refs := References(node.DependentFiles, content, req.KnownPaths)
		if err := e.store.CompleteNode(ctx, node.ID, content, refs); err != nil {
			res.Err = derrors.PersistenceFailed("complete node", err).WithContext("node_id", node.ID)
			return res
		}
		res.Content, res.References = content, refs
		log.Info("Node generated", logfields.Attempt(attempt), slog.Int("references", len(refs)))
		return res
	}

	e.recorder.IncGenerationRetriesExhausted()
	res.Err = derrors.RetriesExhausted(node.ID, policy.MaxAttempts, lastErr).WithContext("title", node.Title)
	log.Error("Generation retries exhausted", logfields.Error(lastErr))
	return res
}

// attemptError classifies a failed attempt. Errors already classified as
// non-retryable (invalid options, for example) end the node; anything else is
// a retryable attempt failure.
func attemptError(nodeID string, err error) error {
	if dwe, ok := derrors.As(err); ok && !dwe.Retryable {
		return derrors.GenerationFailed(nodeID, err)
	}
	return derrors.GenerationAttemptFailed(nodeID, err)
}

// attempt performs one generation (plus optional refine) and post-processes it.
func (e *Engine) attempt(ctx context.Context, shared prompts.Shared, prompt string) (string, error) {
	raw, err := e.call(ctx, prompt)
	if err != nil {
		return "", err
	}
	content, err := PostProcess(raw)
	if err != nil {
		return "", err
	}
	if !e.settings.Refine {
		return content, nil
	}

	refinePrompt, err := prompts.Refine(shared, content)
	if err != nil {
		return "", err
	}
	refined, err := e.call(ctx, refinePrompt)
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}
	return PostProcess(refined)
}

// call invokes the backend under the per-call timeout and tracks in-flight calls.
func (e *Engine) call(ctx context.Context, prompt string) (string, error) {
	if t := e.settings.Options.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	e.recorder.SetGenerationInFlight(int(e.inFlight.Add(1)))
	defer func() { e.recorder.SetGenerationInFlight(int(e.inFlight.Add(-1))) }()

	start := time.Now()
	out, err := e.backend.Generate(ctx, prompt, e.settings.Options)
	e.recorder.ObserveGenerationDuration(e.backend.Model(), time.Since(start), err == nil)
	return out, err
}

// Single performs one post-processed generation without retry. It is used for
// the outline-adjacent stages that produce a single document.
func (e *Engine) Single(ctx context.Context, prompt string) (string, error) {
	raw, err := e.call(ctx, prompt)
	if err != nil {
		return "", err
	}
	return PostProcess(raw)
}
