package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/docwiki/internal/config"
	"git.home.luguber.info/inful/docwiki/internal/daemon"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Once  bool `help:"Process at most one job and exit"`
	Sweep bool `help:"Requeue stale completed jobs before starting"`
	Watch bool `help:"Reload the configuration file when it changes" default:"true" negatable:""`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	configPath := ""
	if d.Watch {
		configPath = root.Config
	}
	return RunDaemon(cfg, configPath, d.Once, d.Sweep)
}

// RunDaemon runs the daemon until SIGINT/SIGTERM, or for a single job when
// once is set.
func RunDaemon(cfg *config.Config, configPath string, once, sweep bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, daemon.Options{ConfigPath: configPath})
	if err != nil {
		return derrors.Wrap(err, derrors.CategoryDaemon, derrors.SeverityFatal, "failed to create daemon")
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			slog.Warn("Daemon close failed", logfields.Error(cerr))
		}
	}()

	if sweep {
		n, err := d.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		slog.Info("Sweep finished", slog.Int("requeued", n))
	}

	if once {
		picked, err := d.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !picked {
			slog.Info("No runnable job")
		}
		return nil
	}

	slog.Info("Starting daemon", slog.Int("workers", cfg.Scheduler.Workers), logfields.Path(cfg.Storage.Path))
	if err := d.Run(ctx); err != nil {
		return derrors.Wrap(err, derrors.CategoryDaemon, derrors.SeverityFatal, "daemon error")
	}
	return nil
}
