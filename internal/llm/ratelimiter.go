package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitedProvider wraps a Provider with a token bucket so that at most
// rpm completions start per minute across all sessions of the process.
type RateLimitedProvider struct {
	provider Provider
	rpm      int
	mu       sync.Mutex
	tokens   int
	lastFill time.Time
	poll     time.Duration
}

// NewRateLimitedProvider wraps the given provider. A non-positive rpm
// disables limiting and returns the provider unchanged.
func NewRateLimitedProvider(provider Provider, rpm int) Provider {
	if rpm <= 0 {
		return provider
	}
	return &RateLimitedProvider{
		provider: provider,
		rpm:      rpm,
		tokens:   rpm,
		lastFill: time.Now(),
		poll:     100 * time.Millisecond,
	}
}

func (r *RateLimitedProvider) Name() string {
	return r.provider.Name()
}

func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	return r.provider.Complete(ctx, req)
}

func (r *RateLimitedProvider) acquire(ctx context.Context) error {
	for {
		if r.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

func (r *RateLimitedProvider) take() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if refill := int(now.Sub(r.lastFill).Seconds() * float64(r.rpm) / 60.0); refill > 0 {
		r.tokens = min(r.tokens+refill, r.rpm)
		r.lastFill = now
	}
	if r.tokens == 0 {
		return false
	}
	r.tokens--
	return true
}
