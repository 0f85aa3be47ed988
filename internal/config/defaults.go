package config

import (
	"fmt"
	"time"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// StorageDefaultApplier handles storage and workspace defaults.
type StorageDefaultApplier struct{}

func (s *StorageDefaultApplier) Domain() string { return "storage" }

func (s *StorageDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./docwiki.db"
	}
	if cfg.Git.Workspace == "" {
		cfg.Git.Workspace = "./workspace"
	}
	if cfg.Git.ShallowDepth < 0 {
		cfg.Git.ShallowDepth = 0
	}
	return nil
}

// CatalogueDefaultApplier handles catalogue builder defaults.
type CatalogueDefaultApplier struct{}

func (c *CatalogueDefaultApplier) Domain() string { return "catalogue" }

func (c *CatalogueDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Catalogue.Format == "" {
		cfg.Catalogue.Format = CatalogueFormatCompact
	} else if f := NormalizeCatalogueFormat(string(cfg.Catalogue.Format)); f != "" {
		cfg.Catalogue.Format = f
	}
	if cfg.Catalogue.MaxDepth <= 0 {
		cfg.Catalogue.MaxDepth = 32
	}
	if cfg.Catalogue.MaxEntries <= 0 {
		cfg.Catalogue.MaxEntries = 20000
	}
	if cfg.Catalogue.SummaryLimit <= 0 {
		cfg.Catalogue.SummaryLimit = 4000
	}
	return nil
}

// LLMDefaultApplier handles backend defaults.
type LLMDefaultApplier struct{}

func (l *LLMDefaultApplier) Domain() string { return "llm" }

func (l *LLMDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.RegistrySize <= 0 {
		cfg.LLM.RegistrySize = 8
	}
	if cfg.LLM.RequestsPerSecond > 0 && cfg.LLM.Burst <= 0 {
		cfg.LLM.Burst = 1
	}
	if cfg.LLM.Options.Timeout == 0 {
		cfg.LLM.Options.Timeout = Duration(120 * time.Second)
	}
	return nil
}

// GenerationDefaultApplier handles content generation engine defaults.
type GenerationDefaultApplier struct{}

func (g *GenerationDefaultApplier) Domain() string { return "generation" }

func (g *GenerationDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Generation.Concurrency <= 0 {
		cfg.Generation.Concurrency = 5
	}
	if cfg.Generation.MaxAttempts <= 0 {
		cfg.Generation.MaxAttempts = 5
	}
	if cfg.Generation.RetryBackoff == "" {
		cfg.Generation.RetryBackoff = RetryBackoffLinear
	} else if m := NormalizeRetryBackoff(string(cfg.Generation.RetryBackoff)); m != "" {
		cfg.Generation.RetryBackoff = m
	}
	if cfg.Generation.RetryBaseDelay == 0 {
		cfg.Generation.RetryBaseDelay = Duration(time.Second)
	}
	if cfg.Generation.RetryMaxDelay == 0 {
		cfg.Generation.RetryMaxDelay = Duration(30 * time.Second)
	}
	if cfg.Generation.Language == "" {
		cfg.Generation.Language = "en"
	}
	return nil
}

// SchedulerDefaultApplier handles worker and sweep defaults.
type SchedulerDefaultApplier struct{}

func (s *SchedulerDefaultApplier) Domain() string { return "scheduler" }

func (s *SchedulerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 1
	}
	if cfg.Scheduler.IdleBackoff == 0 {
		cfg.Scheduler.IdleBackoff = Duration(5 * time.Second)
	}
	if cfg.Scheduler.Lease == 0 {
		cfg.Scheduler.Lease = Duration(2 * time.Minute)
	}
	if cfg.Scheduler.StaleAfter == 0 {
		cfg.Scheduler.StaleAfter = Duration(7 * 24 * time.Hour)
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = Duration(time.Hour)
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "docwiki.jobs"
	}
	return nil
}

// LoggingDefaultApplier normalizes logging settings.
type LoggingDefaultApplier struct{}

func (l *LoggingDefaultApplier) Domain() string { return "logging" }

func (l *LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		&StorageDefaultApplier{},
		&CatalogueDefaultApplier{},
		&LLMDefaultApplier{},
		&GenerationDefaultApplier{},
		&SchedulerDefaultApplier{},
		&LoggingDefaultApplier{},
	}
}

func applyDefaults(cfg *Config) error {
	for _, applier := range defaultAppliers() {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("failed to apply %s defaults: %w", applier.Domain(), err)
		}
	}
	return nil
}
