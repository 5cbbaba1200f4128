package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/metrics"
	"github.com/ziadkadry99/coursebot/internal/retry"
)

// RetryingProvider bounds every completion with a per-attempt timeout and
// retries transient failures with exponential backoff.
type RetryingProvider struct {
	provider Provider
	policy   retry.Policy
	log      *zap.Logger
}

// NewRetryingProvider wraps provider with the given policy.
func NewRetryingProvider(provider Provider, policy retry.Policy, log *zap.Logger) *RetryingProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingProvider{provider: provider, policy: policy, log: log}
}

func (r *RetryingProvider) Name() string {
	return r.provider.Name()
}

func (r *RetryingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	op := req.Operation
	if op == "" {
		op = "complete"
	}

	start := time.Now()
	attempt := 0
	var resp *CompletionResponse
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		attempt++
		out, err := r.provider.Complete(ctx, req)
		if err != nil {
			r.log.Debug("completion attempt failed",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		resp = out
		return nil
	})
	metrics.UpstreamRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(op, "error").Inc()
		r.log.Warn("completion failed",
			zap.String("provider", r.provider.Name()),
			zap.String("operation", op),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(op, "ok").Inc()
	return resp, nil
}
