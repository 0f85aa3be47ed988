package llm

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/docwiki/internal/config"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
)

// Options are the recognized per-call generation options.
type Options struct {
	MaxTokens   int           // 0 selects MaxOutputTokens for the model
	Temperature float64       // 0..2
	Timeout     time.Duration // per call; 0 disables
}

// Validate checks option ranges. Failures are validation errors, which the
// generation engine does not retry.
func (o Options) Validate() error {
	if o.MaxTokens < 0 {
		return derrors.ValidationFailed("llm.options.max_tokens", fmt.Sprintf("must be >= 0, got %d", o.MaxTokens))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return derrors.ValidationFailed("llm.options.temperature", fmt.Sprintf("must be within [0,2], got %v", o.Temperature))
	}
	if o.Timeout < 0 {
		return derrors.ValidationFailed("llm.options.timeout", fmt.Sprintf("must not be negative, got %s", o.Timeout))
	}
	return nil
}

// OptionsFromConfig converts configured options.
func OptionsFromConfig(c config.LLMOptions) Options {
	return Options{MaxTokens: c.MaxTokens, Temperature: c.Temperature, Timeout: c.Timeout.Duration()}
}

// DefaultMaxOutputTokens applies to models missing from the table.
const DefaultMaxOutputTokens = 4096

// outputTokenLimits is matched by longest prefix of the lower-cased model name.
var outputTokenLimits = []struct {
	prefix string
	tokens int
}{
	{"gpt-4.1", 32768},
	{"gpt-4o-mini", 16384},
	{"gpt-4o", 16384},
	{"gpt-4-turbo", 4096},
	{"gpt-4", 8192},
	{"gpt-3.5", 4096},
	{"o1", 32768},
	{"o3", 100000},
	{"o4-mini", 100000},
	{"claude-3-5", 8192},
	{"claude-3-7", 64000},
	{"claude-sonnet-4", 64000},
	{"claude-opus-4", 32000},
	{"claude-3", 4096},
	{"deepseek", 8192},
	{"qwen", 8192},
	{"llama3", 8192},
}

// MaxOutputTokens returns the output token budget for model.
func MaxOutputTokens(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	best, bestLen := DefaultMaxOutputTokens, 0
	for _, e := range outputTokenLimits {
		if strings.HasPrefix(m, e.prefix) && len(e.prefix) > bestLen {
			best, bestLen = e.tokens, len(e.prefix)
		}
	}
	return best
}
