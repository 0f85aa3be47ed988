// Package store persists jobs, document records and catalogue nodes.
//
// Two implementations share one contract: SQLiteStore for the daemon and
// MemoryStore for tests and ephemeral runs. Job status writes are checked
// against the job state machine so that a concurrent cancel is never
// overwritten by a worker.
package store

import (
	"context"
	"errors"
	"time"

	"git.home.luguber.info/inful/docwiki/internal/models"
)

var (
	// ErrNotFound is returned when the requested job, document or node does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoJob is returned by ClaimNextJob when nothing is runnable.
	ErrNoJob = errors.New("no runnable job")
	// ErrInvalidTransition is returned when a status write violates the job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrEmptyContent is returned by CompleteNode for empty content.
	ErrEmptyContent = errors.New("node content must not be empty")
	// ErrNodesExist is returned when a job already has catalogue nodes.
	ErrNodesExist = errors.New("catalogue nodes already exist for job")
	// ErrLeaseLost is returned by RenewLease when the claimant no longer owns the job.
	ErrLeaseLost = errors.New("job lease lost")
)

// DefaultLease applies when a Claimant does not set one.
const DefaultLease = 2 * time.Minute

// Claimant identifies the worker claiming a job. A claim holds the job for
// Lease; the owner renews it while it works. A Processing job whose lease
// has expired is abandoned and may be resumed by any claimant.
type Claimant struct {
	Instance string
	Worker   string
	Lease    time.Duration
}

func (c Claimant) String() string { return c.Instance + "/" + c.Worker }

// LeaseDuration returns Lease, or DefaultLease when unset.
func (c Claimant) LeaseDuration() time.Duration {
	if c.Lease <= 0 {
		return DefaultLease
	}
	return c.Lease
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	Statuses []models.JobStatus
	Limit    int
}

// Store is the persistence contract of the pipeline.
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]models.Job, error)
	// ClaimNextJob atomically picks one runnable job and marks it Processing
	// for the claimant with a fresh lease. Runnable means Pending, or
	// Processing with an expired lease; the latter come first, oldest first.
	ClaimNextJob(ctx context.Context, claimant Claimant) (*models.Job, error)
	// RenewLease extends the claimant's lease on a Processing job. It fails
	// with ErrLeaseLost once the job left Processing or was reclaimed.
	RenewLease(ctx context.Context, id string, claimant Claimant) error
	// ReleaseLease expires the claimant's lease so the job is resumable at once.
	ReleaseLease(ctx context.Context, id string, claimant Claimant) error
	// UpdateJob writes all mutable job fields and mirrors the status onto the
	// document record. The stored status must allow the transition.
	UpdateJob(ctx context.Context, job *models.Job) error
	// SetJobStatus changes only the status when the stored status is one of
	// from and the state machine allows the move; otherwise it returns a
	// *TransitionError. Moving to Pending clears the error text. It returns
	// the updated job.
	SetJobStatus(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus) (*models.Job, error)
	// CompleteJob writes the Completed job and its document record in one
	// transaction. A job canceled meanwhile fails with ErrInvalidTransition
	// and leaves the document untouched.
	CompleteJob(ctx context.Context, job *models.Job, doc *models.DocumentRecord) error
	// DeleteJob removes the job, its document record and its nodes.
	DeleteJob(ctx context.Context, id string) error
	// ListStaleCompleted returns Completed jobs whose document was last updated before cutoff.
	ListStaleCompleted(ctx context.Context, cutoff time.Time) ([]models.Job, error)
	// RequeueJob moves a Completed job back to Pending and marks its nodes
	// incomplete with content cleared, in one transaction.
	RequeueJob(ctx context.Context, id string) error

	UpsertDocument(ctx context.Context, doc *models.DocumentRecord) error
	GetDocument(ctx context.Context, jobID string) (*models.DocumentRecord, error)

	InsertCatalogueNodes(ctx context.Context, jobID string, nodes []models.CatalogueNode) error
	ListCatalogueNodes(ctx context.Context, jobID string) ([]models.CatalogueNode, error)
	// CompleteNode stores content and references and sets the completion flag atomically.
	CompleteNode(ctx context.Context, nodeID, content string, references []string) error

	Close() error
}

func checkStatusChange(current models.JobStatus, from []models.JobStatus, to models.JobStatus) error {
	if !containsStatus(from, current) || !current.CanTransitionTo(to) {
		return &TransitionError{From: current, To: to}
	}
	return nil
}

func checkTransition(from, to models.JobStatus) error {
	if from == to || from.CanTransitionTo(to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From, To models.JobStatus
}

func (e *TransitionError) Error() string {
	return "invalid job status transition " + string(e.From) + " -> " + string(e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
