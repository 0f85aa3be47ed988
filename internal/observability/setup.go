package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"git.home.luguber.info/inful/docwiki/internal/config"
)

// SetupLogger builds the process logger: text or JSON on stderr per
// cfg.Format, fanned out to a JSON file when cfg.File is set. The returned
// cleanup closes the file.
func SetupLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	var file io.WriteCloser
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		file = f
	}

	var w io.Writer
	if file != nil {
		w = file
	}
	logger := NewLogger(os.Stderr, w, cfg)

	cleanup := func() error { return nil }
	if file != nil {
		cleanup = file.Close
	}
	return logger, cleanup, nil
}

// NewLogger builds a logger writing to console and, when non-nil, a JSON
// sink.
func NewLogger(console, jsonSink io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.SlogLevel()}

	var consoleHandler slog.Handler
	if cfg.Format == config.LogFormatJSON {
		consoleHandler = slog.NewJSONHandler(console, opts)
	} else {
		consoleHandler = slog.NewTextHandler(console, opts)
	}
	if jsonSink == nil {
		return slog.New(consoleHandler)
	}
	return slog.New(slogmulti.Fanout(consoleHandler, slog.NewJSONHandler(jsonSink, opts)))
}
