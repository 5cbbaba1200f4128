package llm

import (
	"fmt"
	"os"
)

// NewProvider creates a chat provider for the given provider type and model.
// Supported provider types: "openai" (OPENAI_API_KEY, optional
// OPENAI_BASE_URL) and "ollama" (optional OLLAMA_HOST).
func NewProvider(providerType string, model string) (Provider, error) {
	switch providerType {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIProvider(apiKey, os.Getenv("OPENAI_BASE_URL"), model), nil

	case "ollama":
		return NewOllamaProvider(os.Getenv("OLLAMA_HOST"), model), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}
