package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/notify"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

type recordingCleaner struct{ removed []string }

func (r *recordingCleaner) Remove(id string) error {
	r.removed = append(r.removed, id)
	return nil
}

func TestControl_SubmitValidates(t *testing.T) {
	c := NewControl(store.NewMemoryStore(), nil, nil)
	_, err := c.Submit(context.Background(), models.SourceDescriptor{URL: "  "}, "")
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryValidation))

	job, err := c.Submit(context.Background(), models.SourceDescriptor{URL: " https://example.com/r.git ", Branch: "dev"}, "r")
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, "https://example.com/r.git", job.Source.URL)
	assert.NotEmpty(t, job.ID)
}

func TestControl_CancelAndReset(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	events := &notify.Recorder{}
	c := NewControl(st, events, nil)

	job, err := c.Submit(ctx, models.SourceDescriptor{URL: "https://example.com/r.git"}, "")
	require.NoError(t, err)

	_, err = c.Reset(ctx, job.ID)
	require.ErrorIs(t, err, ErrNotResettable)

	canceled, err := c.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCanceled, canceled.Status)

	_, err = c.Cancel(ctx, job.ID)
	require.ErrorIs(t, err, ErrNotCancelable)

	reset, err := c.Reset(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, reset.Status)

	assert.Equal(t, []models.JobStatus{models.JobPending, models.JobCanceled, models.JobPending}, events.Statuses(job.ID))
}

// progressDuringCancel writes worker progress the moment the control surface
// first touches the job, as a worker running concurrently would.
type progressDuringCancel struct {
	*store.MemoryStore
	once sync.Once
	t    *testing.T
}

func (p *progressDuringCancel) writeProgress(ctx context.Context, id string) {
	p.once.Do(func() {
		j, err := p.MemoryStore.GetJob(ctx, id)
		require.NoError(p.t, err)
		j.CatalogueText = "README.md\nmain.go"
		require.NoError(p.t, p.MemoryStore.UpdateJob(ctx, j))
	})
}

func (p *progressDuringCancel) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := p.MemoryStore.GetJob(ctx, id)
	p.writeProgress(ctx, id)
	return j, err
}

func (p *progressDuringCancel) SetJobStatus(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus) (*models.Job, error) {
	p.writeProgress(ctx, id)
	return p.MemoryStore.SetJobStatus(ctx, id, from, to)
}

func TestControl_CancelKeepsConcurrentWorkerProgress(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	job := &models.Job{Source: models.SourceDescriptor{URL: "https://example.com/r.git"}}
	require.NoError(t, mem.CreateJob(ctx, job))
	_, err := mem.ClaimNextJob(ctx, store.Claimant{Instance: "i", Worker: "w"})
	require.NoError(t, err)

	c := NewControl(&progressDuringCancel{MemoryStore: mem, t: t}, nil, nil)
	canceled, err := c.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCanceled, canceled.Status)

	stored, err := mem.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCanceled, stored.Status)
	assert.Equal(t, "README.md\nmain.go", stored.CatalogueText, "the worker's write survives the cancel")
}

func TestControl_ResetClearsError(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	job := &models.Job{Source: models.SourceDescriptor{URL: "u"}, Status: models.JobFailed, Error: "boom"}
	require.NoError(t, st.CreateJob(ctx, job))

	got, err := NewControl(st, nil, nil).Reset(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Error)
}

func TestControl_CannotCancelCompleted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	job := &models.Job{Source: models.SourceDescriptor{URL: "u"}, Status: models.JobCompleted}
	require.NoError(t, st.CreateJob(ctx, job))

	_, err := NewControl(st, nil, nil).Cancel(ctx, job.ID)
	require.ErrorIs(t, err, ErrNotCancelable)
}

func TestControl_DeleteRemovesWorkspace(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	cleaner := &recordingCleaner{}
	c := NewControl(st, nil, cleaner)

	job, err := c.Submit(ctx, models.SourceDescriptor{URL: "u"}, "")
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, job.ID))
	assert.Equal(t, []string{job.ID}, cleaner.removed)

	_, err = st.GetJob(ctx, job.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, c.Delete(ctx, job.ID), store.ErrNotFound)
}

func TestControl_UnknownJob(t *testing.T) {
	_, err := NewControl(store.NewMemoryStore(), nil, nil).Cancel(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweeper_RequeuesStaleCompleted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	events := &notify.Recorder{}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	stale := &models.Job{Source: models.SourceDescriptor{URL: "a"}, Status: models.JobCompleted}
	fresh := &models.Job{Source: models.SourceDescriptor{URL: "b"}, Status: models.JobCompleted}
	require.NoError(t, st.CreateJob(ctx, stale))
	require.NoError(t, st.CreateJob(ctx, fresh))
	require.NoError(t, st.UpsertDocument(ctx, &models.DocumentRecord{JobID: stale.ID, Status: models.JobCompleted, LastUpdate: now.Add(-48 * time.Hour)}))
	require.NoError(t, st.UpsertDocument(ctx, &models.DocumentRecord{JobID: fresh.ID, Status: models.JobCompleted, LastUpdate: now.Add(-time.Hour)}))
	require.NoError(t, st.InsertCatalogueNodes(ctx, stale.ID, []models.CatalogueNode{{ID: "n1", JobID: stale.ID, Title: "T"}}))
	require.NoError(t, st.CompleteNode(ctx, "n1", "old", []string{"x.go"}))

	s := NewSweeper(st, events, nil, func() time.Duration { return 24 * time.Hour })
	s.now = func() time.Time { return now }

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetJob(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)

	nodes, err := st.ListCatalogueNodes(ctx, stale.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "n1", nodes[0].ID)
	assert.False(t, nodes[0].Complete)
	assert.Empty(t, nodes[0].Content)

	untouched, err := st.GetJob(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, untouched.Status)

	assert.Equal(t, []models.JobStatus{models.JobPending}, events.Statuses(stale.ID))
}

func TestSweeper_DisabledWhenStaleAfterIsZero(t *testing.T) {
	s := NewSweeper(store.NewMemoryStore(), nil, nil, func() time.Duration { return 0 })
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
