package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	return newConfigurationValidator(cfg).validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateStorage(); err != nil {
		return err
	}
	if err := cv.validateCredentials(); err != nil {
		return err
	}
	if err := cv.validateCatalogue(); err != nil {
		return err
	}
	if err := cv.validateLLM(); err != nil {
		return err
	}
	if err := cv.validateGeneration(); err != nil {
		return err
	}
	return cv.validateScheduler()
}

func (cv *configurationValidator) validateStorage() error {
	if strings.TrimSpace(cv.config.Storage.Path) == "" {
		return errors.New("storage.path cannot be empty")
	}
	if strings.TrimSpace(cv.config.Git.Workspace) == "" {
		return errors.New("git.workspace cannot be empty")
	}
	return nil
}

func (cv *configurationValidator) validateCredentials() error {
	for handle, cred := range cv.config.Credentials {
		switch cred.Type {
		case AuthTypeToken:
			if cred.Token == "" {
				return fmt.Errorf("credentials.%s: token auth requires token", handle)
			}
		case AuthTypeBasic:
			if cred.Username == "" || cred.Password == "" {
				return fmt.Errorf("credentials.%s: basic auth requires username and password", handle)
			}
		case AuthTypeSSH:
			if cred.KeyPath == "" {
				return fmt.Errorf("credentials.%s: ssh auth requires key_path", handle)
			}
		default:
			return fmt.Errorf("credentials.%s: unsupported auth type %q", handle, cred.Type)
		}
	}
	return nil
}

func (cv *configurationValidator) validateCatalogue() error {
	if NormalizeCatalogueFormat(string(cv.config.Catalogue.Format)) == "" {
		return fmt.Errorf("invalid catalogue.format: %s", cv.config.Catalogue.Format)
	}
	return nil
}

func (cv *configurationValidator) validateLLM() error {
	switch cv.config.LLM.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unsupported llm.provider: %s", cv.config.LLM.Provider)
	}
	opts := cv.config.LLM.Options
	if opts.MaxTokens < 0 {
		return fmt.Errorf("llm.options.max_tokens must be >= 0, got %d", opts.MaxTokens)
	}
	if opts.Temperature < 0 || opts.Temperature > 2 {
		return fmt.Errorf("llm.options.temperature must be within [0,2], got %v", opts.Temperature)
	}
	if opts.Timeout < 0 {
		return errors.New("llm.options.timeout must not be negative")
	}
	if cv.config.LLM.RequestsPerSecond < 0 {
		return errors.New("llm.requests_per_second must not be negative")
	}
	return nil
}

func (cv *configurationValidator) validateGeneration() error {
	g := cv.config.Generation
	if NormalizeRetryBackoff(string(g.RetryBackoff)) == "" {
		return fmt.Errorf("invalid generation.retry_backoff: %s", g.RetryBackoff)
	}
	if g.RetryMaxDelay < g.RetryBaseDelay {
		return fmt.Errorf("generation.retry_max_delay (%s) must be >= retry_base_delay (%s)",
			g.RetryMaxDelay.Duration(), g.RetryBaseDelay.Duration())
	}
	return nil
}

func (cv *configurationValidator) validateScheduler() error {
	s := cv.config.Scheduler
	if s.StaleAfter < 0 || s.SweepInterval < 0 || s.IdleBackoff < 0 || s.Lease < 0 {
		return errors.New("scheduler durations must not be negative")
	}
	return nil
}
