package config

import "time"

// ModelPreset describes the models to use with a provider.
type ModelPreset struct {
	Model          string
	EmbeddingModel string
}

var presets = map[ProviderType]ModelPreset{
	ProviderOpenAI: {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
	ProviderOllama: {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// DefaultExcludes are glob patterns skipped while indexing the corpus.
var DefaultExcludes = []string{
	".git/**",
	"**/.DS_Store",
	"**/*.tmp",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o-mini",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		CorpusDir:         "corpus",
		Include:           []string{"**/*.jsonl", "**/*.md", "**/*.txt"},
		Exclude:           DefaultExcludes,
		VectorDir:         ".coursebot/vectors",
		LexicalIndex:      ".coursebot/lexical.db",
		StudyDB:           ".coursebot/study.db",
		Retrieval: RetrievalConfig{
			TopK:              5,
			MaxK:              100,
			QueryExpansion:    false,
			ExpansionFallback: true,
			IncludeOriginal:   false,
			ChunkSize:         1000,
			ChunkOverlap:      100,
		},
		Upstream: UpstreamConfig{
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
		},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Env: "dev", Level: "info"},
		Study:  StudyConfig{Enabled: true},
	}
}

// GetPreset returns the default models for a provider, falling back to
// the OpenAI preset.
func GetPreset(provider ProviderType) ModelPreset {
	if p, ok := presets[provider]; ok {
		return p
	}
	return presets[ProviderOpenAI]
}
