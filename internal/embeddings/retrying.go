package embeddings

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/metrics"
	"github.com/ziadkadry99/coursebot/internal/retry"
)

// RetryingEmbedder bounds embedding calls with a per-attempt timeout and
// bounded retries.
type RetryingEmbedder struct {
	embedder Embedder
	policy   retry.Policy
	log      *zap.Logger
}

// NewRetryingEmbedder wraps e with the given policy.
func NewRetryingEmbedder(e Embedder, policy retry.Policy, log *zap.Logger) *RetryingEmbedder {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingEmbedder{embedder: e, policy: policy, log: log}
}

func (r *RetryingEmbedder) Name() string    { return r.embedder.Name() }
func (r *RetryingEmbedder) Dimensions() int { return r.embedder.Dimensions() }

func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var out [][]float32
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		vecs, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	metrics.UpstreamRequestDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("embed", "error").Inc()
		r.log.Warn("embedding failed",
			zap.String("model", r.embedder.Name()),
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.UpstreamRequestsTotal.WithLabelValues("embed", "ok").Inc()
	return out, nil
}
