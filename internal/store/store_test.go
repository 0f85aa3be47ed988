package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docwiki/internal/models"
)

// forEachStore runs fn against both implementations with a controllable clock.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store, clock *time.Time)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		s := NewMemoryStore()
		s.now = func() time.Time { return clock }
		fn(t, s, &clock)
	})

	t.Run("sqlite", func(t *testing.T) {
		clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "docwiki.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		s.now = func() time.Time { return clock }
		fn(t, s, &clock)
	})
}

func newJob(t *testing.T, s Store, clock *time.Time, url string, status models.JobStatus) *models.Job {
	t.Helper()
	*clock = clock.Add(time.Second)
	j := &models.Job{Source: models.SourceDescriptor{URL: url, Branch: "main"}, Status: status}
	require.NoError(t, s.CreateJob(context.Background(), j))
	return j
}

func TestStore_CreateGetList(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		a := newJob(t, s, clock, "https://example.com/a.git", "")
		b := newJob(t, s, clock, "https://example.com/b.git", models.JobFailed)

		require.NotEmpty(t, a.ID)
		assert.Equal(t, models.JobPending, a.Status)

		got, err := s.GetJob(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a.git", got.Source.URL)
		assert.Equal(t, "main", got.Source.Branch)
		assert.True(t, got.CreatedAt.Equal(a.CreatedAt))

		all, err := s.ListJobs(ctx, JobFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, a.ID, all[0].ID)

		failed, err := s.ListJobs(ctx, JobFilter{Statuses: []models.JobStatus{models.JobFailed}})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, b.ID, failed[0].ID)

		_, err = s.GetJob(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ClaimNextJobOrdering(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		first := newJob(t, s, clock, "first", models.JobPending)
		second := newJob(t, s, clock, "second", models.JobPending)
		abandoned := newJob(t, s, clock, "abandoned", models.JobProcessing)
		newJob(t, s, clock, "done", models.JobCompleted)

		me := Claimant{Instance: "inst-1", Worker: "0", Lease: time.Minute}
		peer := Claimant{Instance: "inst-1", Worker: "1", Lease: time.Minute}
		other := Claimant{Instance: "inst-2", Worker: "0", Lease: time.Minute}

		got, err := s.ClaimNextJob(ctx, me)
		require.NoError(t, err)
		assert.Equal(t, abandoned.ID, got.ID, "processing jobs without a live lease are resumed first")
		assert.Equal(t, models.JobProcessing, got.Status)
		assert.Equal(t, "inst-1/0", got.ClaimedBy)

		got, err = s.ClaimNextJob(ctx, me)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		got, err = s.ClaimNextJob(ctx, peer)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)

		_, err = s.ClaimNextJob(ctx, other)
		require.ErrorIs(t, err, ErrNoJob, "running jobs with a live lease are not taken")

		*clock = clock.Add(30 * time.Second)
		require.NoError(t, s.RenewLease(ctx, first.ID, me))

		*clock = clock.Add(31 * time.Second)
		got, err = s.ClaimNextJob(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID, "an expired lease is reclaimed, oldest job first")
		assert.Equal(t, "inst-2/0", got.ClaimedBy)

		got, err = s.ClaimNextJob(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, abandoned.ID, got.ID)

		_, err = s.ClaimNextJob(ctx, other)
		require.ErrorIs(t, err, ErrNoJob, "the renewed lease still holds")

		require.ErrorIs(t, s.RenewLease(ctx, second.ID, peer), ErrLeaseLost)
		require.NoError(t, s.RenewLease(ctx, second.ID, other))
	})
}

func TestStore_ReleaseLeaseMakesJobResumable(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		j := newJob(t, s, clock, "repo", models.JobPending)
		owner := Claimant{Instance: "inst-1", Worker: "0"}
		next := Claimant{Instance: "inst-2", Worker: "0"}

		_, err := s.ClaimNextJob(ctx, owner)
		require.NoError(t, err)
		_, err = s.ClaimNextJob(ctx, next)
		require.ErrorIs(t, err, ErrNoJob, "zero Lease falls back to DefaultLease")

		require.ErrorIs(t, s.ReleaseLease(ctx, j.ID, next), ErrLeaseLost)
		require.NoError(t, s.ReleaseLease(ctx, j.ID, owner))

		got, err := s.ClaimNextJob(ctx, next)
		require.NoError(t, err)
		assert.Equal(t, j.ID, got.ID)
	})
}

func TestStore_RenewLeaseAfterStatusChange(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		j := newJob(t, s, clock, "repo", models.JobPending)
		owner := Claimant{Instance: "inst-1", Worker: "0"}
		_, err := s.ClaimNextJob(ctx, owner)
		require.NoError(t, err)

		_, err = s.SetJobStatus(ctx, j.ID, []models.JobStatus{models.JobProcessing}, models.JobCanceled)
		require.NoError(t, err)
		require.ErrorIs(t, s.RenewLease(ctx, j.ID, owner), ErrLeaseLost)
		require.ErrorIs(t, s.RenewLease(ctx, "missing", owner), ErrLeaseLost)
	})
}

func TestStore_SetJobStatusKeepsOtherFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		j := newJob(t, s, clock, "repo", models.JobPending)
		require.NoError(t, s.UpsertDocument(ctx, &models.DocumentRecord{JobID: j.ID, Status: models.JobPending, LastUpdate: *clock}))
		claimed, err := s.ClaimNextJob(ctx, Claimant{Instance: "i", Worker: "w"})
		require.NoError(t, err)

		// A worker writes its progress after the operator read the job.
		claimed.CatalogueText = "README.md"
		claimed.Name = "demo"
		require.NoError(t, s.UpdateJob(ctx, claimed))

		canceled, err := s.SetJobStatus(ctx, j.ID, []models.JobStatus{models.JobPending, models.JobProcessing}, models.JobCanceled)
		require.NoError(t, err)
		assert.Equal(t, models.JobCanceled, canceled.Status)
		assert.Equal(t, "README.md", canceled.CatalogueText)
		assert.Equal(t, "demo", canceled.Name)

		doc, err := s.GetDocument(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobCanceled, doc.Status)

		_, err = s.SetJobStatus(ctx, j.ID, []models.JobStatus{models.JobPending, models.JobProcessing}, models.JobCanceled)
		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, models.JobCanceled, te.From)

		_, err = s.SetJobStatus(ctx, j.ID, []models.JobStatus{models.JobCanceled}, models.JobCompleted)
		require.ErrorIs(t, err, ErrInvalidTransition, "the state machine still applies")

		_, err = s.SetJobStatus(ctx, "missing", []models.JobStatus{models.JobPending}, models.JobCanceled)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_CompleteJobWritesJobAndDocument(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		j := newJob(t, s, clock, "repo", models.JobProcessing)
		require.NoError(t, s.UpsertDocument(ctx, &models.DocumentRecord{JobID: j.ID, Status: models.JobProcessing, LastUpdate: *clock}))

		done := clock.Add(time.Hour)
		j.Status = models.JobCompleted
		require.NoError(t, s.CompleteJob(ctx, j, &models.DocumentRecord{JobID: j.ID, Status: models.JobCompleted, LastUpdate: done, Overview: "o"}))

		doc, err := s.GetDocument(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobCompleted, doc.Status)
		assert.True(t, doc.LastUpdate.Equal(done))
		assert.Equal(t, "o", doc.Overview)
	})
}

func TestStore_CompleteJobRejectsCanceled(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		j := newJob(t, s, clock, "repo", models.JobProcessing)
		require.NoError(t, s.UpsertDocument(ctx, &models.DocumentRecord{JobID: j.ID, Status: models.JobProcessing, LastUpdate: *clock}))
		_, err := s.SetJobStatus(ctx, j.ID, []models.JobStatus{models.JobProcessing}, models.JobCanceled)
		require.NoError(t, err)

		j.Status = models.JobCompleted
		err = s.CompleteJob(ctx, j, &models.DocumentRecord{JobID: j.ID, Status: models.JobCompleted, LastUpdate: clock.Add(time.Hour)})
		require.ErrorIs(t, err, ErrInvalidTransition)

		doc, err := s.GetDocument(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobCanceled, doc.Status)
		assert.True(t, doc.LastUpdate.Equal(*clock), "document is untouched")
	})
}

func TestStore_UpdateJobEnforcesStateMachine(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		j := newJob(t, s, clock, "repo", models.JobPending)
		require.NoError(t, s.UpsertDocument(ctx, &models.DocumentRecord{JobID: j.ID, Status: models.JobPending, LastUpdate: *clock}))

		claimed, err := s.ClaimNextJob(ctx, Claimant{Instance: "i", Worker: "0"})
		require.NoError(t, err)

		doc, err := s.GetDocument(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobProcessing, doc.Status, "document mirrors the job status")

		claimed.CatalogueText = "src/\n"
		require.NoError(t, s.UpdateJob(ctx, claimed))

		canceled := *claimed
		canceled.Status = models.JobCanceled
		require.NoError(t, s.UpdateJob(ctx, &canceled))

		claimed.Status = models.JobCompleted
		err = s.UpdateJob(ctx, claimed)
		require.ErrorIs(t, err, ErrInvalidTransition)

		got, err := s.GetJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobCanceled, got.Status)
		assert.Equal(t, "src/\n", got.CatalogueText)
	})
}

func TestStore_CatalogueNodes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		j := newJob(t, s, clock, "repo", models.JobProcessing)

		nodes := []models.CatalogueNode{
			{ID: "n2", ParentID: "n1", Title: "Child", Order: 1, DependentFiles: []string{"a.go"}},
			{ID: "n1", Title: "Root", Order: 0},
		}
		require.NoError(t, s.InsertCatalogueNodes(ctx, j.ID, nodes))
		require.ErrorIs(t, s.InsertCatalogueNodes(ctx, j.ID, nodes), ErrNodesExist)

		got, err := s.ListCatalogueNodes(ctx, j.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "n1", got[0].ID)
		assert.Equal(t, j.ID, got[1].JobID)
		assert.Equal(t, []string{"a.go"}, got[1].DependentFiles)
		assert.False(t, got[1].Complete)

		require.ErrorIs(t, s.CompleteNode(ctx, "n2", "  \n", nil), ErrEmptyContent)
		require.ErrorIs(t, s.CompleteNode(ctx, "missing", "text", nil), ErrNotFound)
		require.NoError(t, s.CompleteNode(ctx, "n2", "# Child", []string{"a.go", "b.go"}))

		got, err = s.ListCatalogueNodes(ctx, j.ID)
		require.NoError(t, err)
		assert.True(t, got[1].Complete)
		assert.Equal(t, "# Child", got[1].Content)
		assert.Equal(t, []string{"a.go", "b.go"}, got[1].References)
		assert.False(t, got[0].Complete)
	})
}

func TestStore_SweepRequeue(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		stale := newJob(t, s, clock, "stale", models.JobCompleted)
		fresh := newJob(t, s, clock, "fresh", models.JobCompleted)
		failed := newJob(t, s, clock, "failed", models.JobFailed)

		old := clock.Add(-48 * time.Hour)
		require.NoError(t, s.UpsertDocument(ctx, &models.DocumentRecord{JobID: stale.ID, Status: models.JobCompleted, LastUpdate: old}))
		require.NoError(t, s.UpsertDocument(ctx, &models.DocumentRecord{JobID: fresh.ID, Status: models.JobCompleted, LastUpdate: *clock}))
		require.NoError(t, s.UpsertDocument(ctx, &models.DocumentRecord{JobID: failed.ID, Status: models.JobFailed, LastUpdate: old}))

		require.NoError(t, s.InsertCatalogueNodes(ctx, stale.ID, []models.CatalogueNode{{ID: "s1", Title: "T", Order: 0}}))
		require.NoError(t, s.CompleteNode(ctx, "s1", "content", []string{"x"}))

		due, err := s.ListStaleCompleted(ctx, clock.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, stale.ID, due[0].ID)

		require.NoError(t, s.RequeueJob(ctx, stale.ID))
		require.ErrorIs(t, s.RequeueJob(ctx, failed.ID), ErrInvalidTransition)

		got, err := s.GetJob(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobPending, got.Status)

		nodes, err := s.ListCatalogueNodes(ctx, stale.ID)
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, "s1", nodes[0].ID, "ids are stable across refresh")
		assert.False(t, nodes[0].Complete)
		assert.Empty(t, nodes[0].Content)
	})
}

func TestStore_DeleteJobCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *time.Time) {
		ctx := context.Background()
		j := newJob(t, s, clock, "repo", models.JobCompleted)
		require.NoError(t, s.UpsertDocument(ctx, &models.DocumentRecord{JobID: j.ID, Status: models.JobCompleted, LastUpdate: *clock}))
		require.NoError(t, s.InsertCatalogueNodes(ctx, j.ID, []models.CatalogueNode{{ID: "d1", Title: "T"}}))

		require.NoError(t, s.DeleteJob(ctx, j.ID))

		_, err := s.GetJob(ctx, j.ID)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetDocument(ctx, j.ID)
		require.ErrorIs(t, err, ErrNotFound)
		nodes, err := s.ListCatalogueNodes(ctx, j.ID)
		require.NoError(t, err)
		assert.Empty(t, nodes)

		require.ErrorIs(t, s.DeleteJob(ctx, j.ID), ErrNotFound)
	})
}

func TestSQLiteStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docwiki.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	j := &models.Job{Source: models.SourceDescriptor{URL: "repo"}}
	require.NoError(t, s.CreateJob(context.Background(), j))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
}
