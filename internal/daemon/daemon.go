// Package daemon runs the documentation job pipeline: workers claim jobs
// from the store and drive them through acquire, catalogue, outline, content,
// graph and overview; a periodic sweep re-queues stale completed jobs.
package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/docwiki/internal/config"
	"git.home.luguber.info/inful/docwiki/internal/git"
	"git.home.luguber.info/inful/docwiki/internal/llm"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/metrics"
	"git.home.luguber.info/inful/docwiki/internal/notify"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Options supply the daemon's collaborators. Nil fields are built from config.
type Options struct {
	ConfigPath string // watched for changes when set
	Store      store.Store
	Source     git.Source
	Backends   BackendProvider
	Notifier   notify.Notifier
	Recorder   metrics.Recorder
}

// Daemon wires the store, workers, sweep and metrics endpoint together.
type Daemon struct {
	cfg        atomic.Pointer[config.Config]
	configPath string
	instance   string
	status     atomic.Value // Status

	store     store.Store
	notifier  notify.Notifier
	recorder  metrics.Recorder
	promReg   *prom.Registry
	processor *Processor
	sweeper   *Sweeper

	scheduler  *Scheduler
	watcher    *ConfigWatcher
	httpServer *http.Server

	wg sync.WaitGroup
}

// New builds a daemon. The backend registry must be injected via
// opts.Backends or is built from cfg.LLM.RegistrySize.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	d := &Daemon{configPath: opts.ConfigPath, instance: uuid.NewString()}
	d.cfg.Store(cfg)
	d.status.Store(StatusStopped)

	d.recorder = opts.Recorder
	if d.recorder == nil {
		if cfg.Metrics.Listen != "" {
			d.promReg = prom.NewRegistry()
			d.promReg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
			d.recorder = metrics.NewPrometheusRecorder(d.promReg)
		} else {
			d.recorder = metrics.NoopRecorder{}
		}
	}

	d.notifier = opts.Notifier
	if d.notifier == nil {
		n, err := notify.New(cfg.Notify)
		if err != nil {
			return nil, err
		}
		d.notifier = n
	}

	d.store = opts.Store
	if d.store == nil {
		st, err := store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		d.store = st
	}

	source := opts.Source
	if source == nil {
		source = git.NewAcquirer(cfg)
	}

	backends := opts.Backends
	if backends == nil {
		reg, err := llm.NewRegistry(cfg.LLM.RegistrySize, llm.NewBackend)
		if err != nil {
			return nil, err
		}
		backends = reg
	}

	processor, err := NewProcessor(Deps{
		Store:    d.store,
		Source:   source,
		Backends: backends,
		Notifier: d.notifier,
		Recorder: d.recorder,
		Config:   d.Config,
	})
	if err != nil {
		return nil, err
	}
	d.processor = processor
	d.sweeper = NewSweeper(d.store, d.notifier, d.recorder, func() time.Duration {
		return d.Config().Scheduler.StaleAfter.Duration()
	})
	return d, nil
}

// Config returns the current configuration snapshot.
func (d *Daemon) Config() *config.Config { return d.cfg.Load() }

// ReloadConfig swaps the configuration. Running jobs keep their snapshot;
// the next claimed job uses the new one.
func (d *Daemon) ReloadConfig(cfg *config.Config) {
	old := d.cfg.Swap(cfg)
	if old != nil && old.Scheduler.Workers != cfg.Scheduler.Workers {
		slog.Warn("scheduler.workers changed; restart the daemon to apply", slog.Int("old", old.Scheduler.Workers), slog.Int("new", cfg.Scheduler.Workers))
	}
}

// Store returns the daemon's store.
func (d *Daemon) Store() store.Store { return d.store }

// GetStatus returns the daemon lifecycle status.
func (d *Daemon) GetStatus() Status { return d.status.Load().(Status) }

func (d *Daemon) worker(i int) *Worker {
	claimant := store.Claimant{
		Instance: d.instance,
		Worker:   fmt.Sprintf("w%d", i),
		Lease:    d.Config().Scheduler.Lease.Duration(),
	}
	return NewWorker(claimant, d.store, d.processor, func() time.Duration {
		return d.Config().Scheduler.IdleBackoff.Duration()
	})
}

// RunOnce performs a single pick-up synchronously.
func (d *Daemon) RunOnce(ctx context.Context) (bool, error) {
	return d.worker(0).RunOnce(ctx)
}

// Sweep runs the stale-job sweep once.
func (d *Daemon) Sweep(ctx context.Context) (int, error) {
	return d.sweeper.Sweep(ctx)
}

// Run starts the workers, sweep, config watcher and metrics endpoint and
// blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.status.Store(StatusStarting)
	cfg := d.Config()

	if err := d.startAuxiliary(ctx, cfg); err != nil {
		d.shutdown()
		d.status.Store(StatusStopped)
		return err
	}

	workers := max(cfg.Scheduler.Workers, 1)
	for i := range workers {
		w := d.worker(i)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w.Run(ctx)
		}()
	}
	d.status.Store(StatusRunning)
	slog.Info("Daemon started", slog.String("instance", d.instance), slog.Int("workers", workers))

	<-ctx.Done()
	d.status.Store(StatusStopping)
	d.wg.Wait()
	d.shutdown()
	d.status.Store(StatusStopped)
	slog.Info("Daemon stopped")
	return nil
}

func (d *Daemon) startAuxiliary(ctx context.Context, cfg *config.Config) error {
	if interval := cfg.Scheduler.SweepInterval.Duration(); interval > 0 {
		sched, err := NewScheduler(d.sweeper)
		if err != nil {
			return err
		}
		if _, err := sched.ScheduleSweep(ctx, interval); err != nil {
			return err
		}
		sched.Start()
		d.scheduler = sched
	}

	if d.configPath != "" {
		w, err := NewConfigWatcher(d.configPath, d.ReloadConfig)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		d.watcher = w
	}

	if cfg.Metrics.Listen != "" && d.promReg != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(d.promReg))
		d.httpServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			slog.Info("Metrics endpoint listening", slog.String("addr", cfg.Metrics.Listen))
			if err := d.httpServer.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
	}
	return nil
}

func (d *Daemon) shutdown() {
	if d.scheduler != nil {
		if err := d.scheduler.Stop(); err != nil {
			slog.Warn("Scheduler shutdown failed", logfields.Error(err))
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.httpServer.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", logfields.Error(err))
		}
	}
}

// Close releases the notifier and the store.
func (d *Daemon) Close() error {
	nerr := d.notifier.Close()
	serr := d.store.Close()
	return stdErrors.Join(nerr, serr)
}
