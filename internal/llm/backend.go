// Package llm provides text-generation backends, a rate-limiting decorator
// and a bounded registry of constructed backends.
package llm

import "context"

// Backend generates text for a prompt.
type Backend interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Model() string
}

// BackendFunc adapts a function to Backend.
type BackendFunc struct {
	Name string
	Fn   func(ctx context.Context, prompt string, opts Options) (string, error)
}

func (f BackendFunc) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f.Fn(ctx, prompt, opts)
}

func (f BackendFunc) Model() string { return f.Name }
