// Package commands implements the docwiki command line.
package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docwiki/internal/config"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/observability"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

// Global is shared state handed to every command.
type Global struct {
	Logger  *slog.Logger
	Cleanup func() error
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"docwiki.yaml" env:"DOCWIKI_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Daemon    DaemonCmd    `cmd:"" help:"Run workers that pick up and process jobs"`
	Submit    SubmitCmd    `cmd:"" help:"Queue a repository for documentation"`
	Status    StatusCmd    `cmd:"" help:"List jobs or show one job in detail"`
	Reset     ResetCmd     `cmd:"" help:"Requeue a failed, unauthorized or canceled job"`
	Cancel    CancelCmd    `cmd:"" help:"Cancel a pending or running job"`
	Delete    DeleteCmd    `cmd:"" help:"Delete a job, its documentation and its checkout"`
	Catalogue CatalogueCmd `cmd:"" help:"Print the rendered file catalogue of a local directory"`
	Graph     GraphCmd     `cmd:"" help:"Print the knowledge graph of a completed job"`
	Init      InitCmd      `cmd:"" help:"Initialize a new configuration file"`
	Show      VersionCmd   `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply installs a console logger until a command loads its config.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the configuration and replaces the bootstrap logger with
// one built from its logging section.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		if _, ok := derrors.As(err); ok {
			return nil, err
		}
		return nil, derrors.New(derrors.CategoryConfig, derrors.SeverityFatal, err.Error()).WithContext("path", root.Config)
	}
	logging := cfg.Logging
	if root.Verbose {
		logging.Level = config.LogLevelDebug
	}
	logger, cleanup, err := observability.SetupLogger(logging)
	if err != nil {
		return nil, derrors.ValidationFailed("logging.file", err.Error())
	}
	g.Logger, g.Cleanup = logger, cleanup
	slog.SetDefault(logger)
	return cfg, nil
}

// openStore loads the configuration and opens the job store.
func openStore(g *Global, root *CLI) (*config.Config, store.Store, error) {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, nil, derrors.PersistenceFailed("open store", err)
	}
	return cfg, st, nil
}
