package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docwiki/internal/config"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestRunCatalogue_AppliesIgnoreRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.go"), "package main")
	writeFile(t, filepath.Join(dir, "internal", "app.go"), "package internal")
	writeFile(t, filepath.Join(dir, "node_modules", "x", "index.js"), "")
	writeFile(t, filepath.Join(dir, "scratch", "notes.txt"), "")

	out, err := RunCatalogue(context.Background(), dir, config.CatalogueConfig{}, config.CatalogueFormatPaths, []string{"scratch/"})
	require.NoError(t, err)
	assert.Contains(t, out, "main.go")
	assert.Contains(t, out, "internal/app.go")
	assert.NotContains(t, out, "node_modules")
	assert.NotContains(t, out, "notes.txt")

	again, err := RunCatalogue(context.Background(), dir, config.CatalogueConfig{}, config.CatalogueFormatPaths, []string{"scratch/"})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestPrintJob_ShowsTopicProgress(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	job := &models.Job{Source: models.SourceDescriptor{URL: "https://example.com/r.git"}, Name: "r", Status: models.JobProcessing}
	require.NoError(t, st.CreateJob(ctx, job))
	require.NoError(t, st.InsertCatalogueNodes(ctx, job.ID, []models.CatalogueNode{
		{ID: "a", Title: "Overview", Order: 0},
		{ID: "b", Title: "Setup", ParentID: "a", Order: 1},
	}))
	require.NoError(t, st.CompleteNode(ctx, "a", "text", nil))

	var buf bytes.Buffer
	require.NoError(t, printJob(ctx, &buf, st, job.ID))
	out := buf.String()
	assert.Contains(t, out, "1/2 complete")
	assert.Contains(t, out, "[x] Overview")
	assert.Contains(t, out, "  [ ] Setup")

	require.ErrorIs(t, printJob(ctx, &buf, st, "missing"), store.ErrNotFound)
}

func TestPrintJobs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, []models.Job{
		{ID: "j1", Status: models.JobPending, Source: models.SourceDescriptor{URL: "u1"}},
		{ID: "j2", Status: models.JobFailed, Source: models.SourceDescriptor{URL: "u2"}},
	}))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "STATUS")
	assert.Contains(t, string(lines[2]), "failed")
}

func TestRunInit(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "secret")
	path := filepath.Join(t.TempDir(), "docwiki.yaml")
	require.NoError(t, RunInit(path, false))
	require.Error(t, RunInit(path, false))
	require.NoError(t, RunInit(path, true))

	_, err := config.Load(path)
	require.NoError(t, err)
}

func TestCLI_ParsesCommands(t *testing.T) {
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Vars{"version": "test"}, kong.Bind(&Global{}, cli))
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"submit", "https://example.com/r.git", "--branch", "dev", "--credential", "github"})
	require.NoError(t, err)
	assert.Equal(t, "submit <url>", ctx.Command())
	assert.Equal(t, "dev", cli.Submit.Branch)
	assert.Equal(t, "github", cli.Submit.Credential)

	ctx, err = parser.Parse([]string{"status"})
	require.NoError(t, err)
	assert.Equal(t, "status", ctx.Command())
	assert.Equal(t, 50, cli.Status.Limit)

	_, err = parser.Parse([]string{"daemon", "--once", "--no-watch"})
	require.NoError(t, err)
	assert.True(t, cli.Daemon.Once)
	assert.False(t, cli.Daemon.Watch)
}

func TestLoadConfig_MissingFileIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	_, err := loadConfig(&Global{}, &CLI{Config: path})
	require.Error(t, err)

	dwe, ok := derrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "configuration file not found", dwe.Message)
	assert.Equal(t, 7, derrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}
