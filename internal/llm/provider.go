package llm

import "context"

// Provider defines the interface for chat completion backends used for
// query expansion, answer synthesis and reranking.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}
