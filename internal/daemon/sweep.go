package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/metrics"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/notify"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

// Sweeper re-queues Completed jobs whose documentation has gone stale.
type Sweeper struct {
	store      store.Store
	notifier   notify.Notifier
	recorder   metrics.Recorder
	staleAfter func() time.Duration
	now        func() time.Time
}

// NewSweeper returns a sweeper. staleAfter is read on every sweep.
func NewSweeper(st store.Store, n notify.Notifier, r metrics.Recorder, staleAfter func() time.Duration) *Sweeper {
	if n == nil {
		n = notify.Noop{}
	}
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	return &Sweeper{store: st, notifier: n, recorder: r, staleAfter: staleAfter, now: time.Now}
}

// Sweep re-queues every stale Completed job and returns how many were moved.
// Node ids are kept; content is cleared so each node is regenerated.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale := s.staleAfter()
	if stale <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-stale)
	jobs, err := s.store.ListStaleCompleted(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	requeued := 0
	for _, job := range jobs {
		if err := s.store.RequeueJob(ctx, job.ID); err != nil {
			// A job that changed state since the listing is simply skipped.
			slog.Warn("Failed to requeue stale job", logfields.JobID(job.ID), logfields.Error(err))
			continue
		}
		requeued++
		ev := notify.JobEvent{JobID: job.ID, Status: models.JobPending, Stage: "sweep", Time: s.now().UTC()}
		if err := s.notifier.Publish(ctx, ev); err != nil {
			slog.Warn("Failed to publish job event", logfields.JobID(job.ID), logfields.Error(err))
		}
	}
	if requeued > 0 {
		s.recorder.IncJobsRequeued(requeued)
		slog.Info("Stale jobs requeued", slog.Int("count", requeued), slog.Time("cutoff", cutoff))
	}
	return requeued, nil
}

// Scheduler wraps the gocron scheduler running the periodic sweep.
type Scheduler struct {
	scheduler gocron.Scheduler
	sweeper   *Sweeper
}

// NewScheduler creates a scheduler instance.
func NewScheduler(sweeper *Sweeper) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, sweeper: sweeper}, nil
}

// ScheduleSweep registers the sweep to run every interval and returns the job ID.
func (s *Scheduler) ScheduleSweep(ctx context.Context, interval time.Duration) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.sweeper.Sweep(ctx); err != nil {
				slog.Error("Sweep failed", logfields.Error(err))
			}
		}),
		gocron.WithName("stale-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create sweep job: %w", err)
	}
	return job.ID().String(), nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}
