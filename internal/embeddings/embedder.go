package embeddings

import (
	"context"
	"fmt"
	"os"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// NewEmbedder creates an embedder for the given provider type. The query
// embedder must match the one the vector index was built with.
func NewEmbedder(providerType, model string, dimensions int) (Embedder, error) {
	switch providerType {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		if model == "" {
			model = string(ModelTextEmbedding3Small)
		}
		return NewOpenAIEmbedder(apiKey, os.Getenv("OPENAI_BASE_URL"), OpenAIModel(model)), nil

	case "ollama":
		if model == "" {
			model = "nomic-embed-text"
		}
		if dimensions <= 0 {
			dimensions = 768
		}
		return NewOllamaEmbedder(model, dimensions, os.Getenv("OLLAMA_HOST")), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", providerType)
	}
}
