package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"git.home.luguber.info/inful/docwiki/internal/config"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// ErrAPIKeyRequired is returned when a hosted provider is configured without a key.
var ErrAPIKeyRequired = errors.New("api key required")

// LangchainBackend wraps a langchaingo model.
type LangchainBackend struct {
	llm       llms.Model
	modelName string
}

// NewLangchainBackend wraps an already constructed langchaingo model.
func NewLangchainBackend(model llms.Model, name string) *LangchainBackend {
	return &LangchainBackend{llm: model, modelName: name}
}

// NewBackend creates a backend for the configured provider.
func NewBackend(cfg config.LLMConfig) (Backend, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.Endpoint != "" {
			opts = append(opts, ollama.WithServerURL(cfg.Endpoint))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: %w", ErrAPIKeyRequired)
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: %w", ErrAPIKeyRequired)
		}
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model)}
		if cfg.Endpoint != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Endpoint))
		}
		model, err = anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	return NewLangchainBackend(model, cfg.Model), nil
}

// Generate performs one completion call bounded by opts.Timeout.
func (b *LangchainBackend) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = MaxOutputTokens(b.modelName)
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, b.llm, prompt,
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(opts.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return response, nil
}

// Model returns the model name.
func (b *LangchainBackend) Model() string { return b.modelName }
