package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/notify"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

// ErrNotResettable is returned when reset is requested for a job that is not
// Failed, Unauthorized or Canceled.
var ErrNotResettable = stdErrors.New("job is not failed, unauthorized or canceled")

// ErrNotCancelable is returned when cancel is requested for a finished job.
var ErrNotCancelable = stdErrors.New("job is not pending or processing")

// WorkspaceCleaner removes a job's checkout.
type WorkspaceCleaner interface {
	Remove(jobID string) error
}

// Control performs the operator actions on jobs.
type Control struct {
	store    store.Store
	notifier notify.Notifier
	cleaner  WorkspaceCleaner
	now      func() time.Time
}

// NewControl returns a control surface. notifier and cleaner may be nil.
func NewControl(st store.Store, n notify.Notifier, cleaner WorkspaceCleaner) *Control {
	if n == nil {
		n = notify.Noop{}
	}
	return &Control{store: st, notifier: n, cleaner: cleaner, now: time.Now}
}

// Submit creates a Pending job for src.
func (c *Control) Submit(ctx context.Context, src models.SourceDescriptor, name string) (*models.Job, error) {
	src.URL = strings.TrimSpace(src.URL)
	if src.URL == "" {
		return nil, derrors.ValidationFailed("source.url", "must not be empty")
	}
	job := &models.Job{Source: src, Name: name, Status: models.JobPending}
	if err := c.store.CreateJob(ctx, job); err != nil {
		return nil, derrors.PersistenceFailed("create job", err)
	}
	slog.Info("Job submitted", logfields.JobID(job.ID), logfields.URL(src.URL), logfields.Branch(src.Branch))
	c.publish(ctx, job)
	return job, nil
}

// Cancel moves a Pending or Processing job to Canceled. A running job stops
// after its current stage.
func (c *Control) Cancel(ctx context.Context, id string) (*models.Job, error) {
	return c.transition(ctx, id, models.CancelableStatuses, models.JobCanceled, ErrNotCancelable)
}

// Reset moves a Failed, Unauthorized or Canceled job back to Pending. The
// job's catalogue nodes are kept, so completed topics are not regenerated.
func (c *Control) Reset(ctx context.Context, id string) (*models.Job, error) {
	return c.transition(ctx, id, models.ResettableStatuses, models.JobPending, ErrNotResettable)
}

// transition changes only the status, so progress a worker writes at the
// same time is kept.
func (c *Control) transition(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, refused error) (*models.Job, error) {
	job, err := c.store.SetJobStatus(ctx, id, from, to)
	var te *store.TransitionError
	if stdErrors.As(err, &te) {
		return nil, fmt.Errorf("%s (status %s): %w", id, te.From, refused)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("Job status changed", logfields.JobID(id), logfields.JobStatus(string(to)))
	c.publish(ctx, job)
	return job, nil
}

// Delete removes a job, its document and nodes, and its checkout.
func (c *Control) Delete(ctx context.Context, id string) error {
	if err := c.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	if c.cleaner != nil {
		if err := c.cleaner.Remove(id); err != nil {
			slog.Warn("Failed to remove job workspace", logfields.JobID(id), logfields.Error(err))
		}
	}
	slog.Info("Job deleted", logfields.JobID(id))
	return nil
}

func (c *Control) publish(ctx context.Context, job *models.Job) {
	ev := notify.JobEvent{JobID: job.ID, Status: job.Status, Time: c.now().UTC()}
	if err := c.notifier.Publish(ctx, ev); err != nil {
		slog.Warn("Failed to publish job event", logfields.JobID(job.ID), logfields.Error(err))
	}
}
