package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped backend with a token bucket.
type RateLimited struct {
	next   Backend
	bucket *rate.Limiter
}

// WithRateLimit wraps b so that at most rps calls start per second. A
// non-positive rps returns b unchanged.
func WithRateLimit(b Backend, rps float64, burst int) Backend {
	if rps <= 0 {
		return b
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: b, bucket: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Generate waits for a token, then delegates.
func (r *RateLimited) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Generate(ctx, prompt, opts)
}

// Model returns the wrapped backend's model.
func (r *RateLimited) Model() string { return r.next.Model() }
