package daemon

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"time"

	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

// Worker claims one job at a time and runs it to completion.
type Worker struct {
	claimant    store.Claimant
	store       store.Store
	processor   *Processor
	idleBackoff func() time.Duration
}

// NewWorker returns a worker identified by claimant. idleBackoff is consulted
// after every empty pick-up so config reloads take effect.
func NewWorker(claimant store.Claimant, st store.Store, p *Processor, idleBackoff func() time.Duration) *Worker {
	if idleBackoff == nil {
		idleBackoff = func() time.Duration { return 5 * time.Second }
	}
	return &Worker{claimant: claimant, store: st, processor: p, idleBackoff: idleBackoff}
}

// RunOnce claims and processes at most one job. It reports whether a job
// was picked up. A job's own failure is recorded on the job and not returned.
// The claim lease is renewed while the job runs; if another worker reclaims
// the job the local run is canceled.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, w.claimant)
	if stdErrors.Is(err, store.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, derrors.PersistenceFailed("claim job", err)
	}

	slog.Info("Job claimed", logfields.JobID(job.ID), logfields.Worker(w.claimant.String()),
		logfields.URL(job.Source.URL))

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := w.keepLease(jobCtx, cancel, job.ID)
	err = w.processor.Process(jobCtx, job)
	stop()

	if err != nil && ctx.Err() != nil {
		// Shutdown: hand the job to the next claimant without waiting for expiry.
		rerr := w.store.ReleaseLease(context.WithoutCancel(ctx), job.ID, w.claimant)
		if rerr != nil && !stdErrors.Is(rerr, store.ErrLeaseLost) {
			slog.Warn("Failed to release job lease", logfields.JobID(job.ID), logfields.Error(rerr))
		}
		return true, ctx.Err()
	}
	return true, nil
}

// keepLease renews the claim every third of the lease until stop is called.
// lost is called when another claimant has taken the job over.
func (w *Worker) keepLease(ctx context.Context, lost context.CancelFunc, jobID string) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(max(w.claimant.LeaseDuration()/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := w.store.RenewLease(ctx, jobID, w.claimant)
			switch {
			case err == nil:
			case stdErrors.Is(err, store.ErrLeaseLost):
				if w.reclaimed(ctx, jobID) {
					slog.Warn("Job lease lost to another worker", logfields.JobID(jobID), logfields.Worker(w.claimant.String()))
					lost()
				}
				return
			default:
				slog.Warn("Failed to renew job lease", logfields.JobID(jobID), logfields.Error(err))
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// reclaimed reports whether the job is running under a different claimant.
// A job that merely left Processing (canceled, finished) is not reclaimed.
func (w *Worker) reclaimed(ctx context.Context, jobID string) bool {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == models.JobProcessing && job.ClaimedBy != w.claimant.String()
}

// Run loops until ctx is done, sleeping idleBackoff whenever nothing is runnable.
func (w *Worker) Run(ctx context.Context) {
	log := slog.With(logfields.Worker(w.claimant.String()))
	log.Info("Worker started")
	defer log.Info("Worker stopped")

	for {
		picked, err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error("Worker cycle failed", logfields.Error(err))
		}
		if picked && err == nil {
			continue
		}

		timer := time.NewTimer(w.idleBackoff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
