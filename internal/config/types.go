package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level coursebot configuration, corresponding to
// .coursebot.yml.
type Config struct {
	Provider            ProviderType `yaml:"provider" koanf:"provider"`
	Model               string       `yaml:"model" koanf:"model"`
	EmbeddingProvider   ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel      string       `yaml:"embedding_model" koanf:"embedding_model"`
	EmbeddingDimensions int          `yaml:"embedding_dimensions,omitempty" koanf:"embedding_dimensions"`

	CorpusDir    string   `yaml:"corpus_dir" koanf:"corpus_dir"`
	Include      []string `yaml:"include" koanf:"include"`
	Exclude      []string `yaml:"exclude" koanf:"exclude"`
	VectorDir    string   `yaml:"vector_dir" koanf:"vector_dir"`
	LexicalIndex string   `yaml:"lexical_index" koanf:"lexical_index"`
	StudyDB      string   `yaml:"study_db" koanf:"study_db"`

	Retrieval RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Upstream  UpstreamConfig  `yaml:"upstream" koanf:"upstream"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Log       LogConfig       `yaml:"log" koanf:"log"`
	Study     StudyConfig     `yaml:"study" koanf:"study"`
}

// RetrievalConfig tunes the query pipeline and corpus chunking.
type RetrievalConfig struct {
	TopK              int  `yaml:"top_k" koanf:"top_k"`
	MaxK              int  `yaml:"max_k" koanf:"max_k"`
	QueryExpansion    bool `yaml:"query_expansion" koanf:"query_expansion"`
	ExpansionFallback bool `yaml:"expansion_fallback" koanf:"expansion_fallback"`
	IncludeOriginal   bool `yaml:"include_original" koanf:"include_original"`
	Rerank            bool `yaml:"rerank" koanf:"rerank"`
	StrictCitations   bool `yaml:"strict_citations" koanf:"strict_citations"`
	ChunkSize         int  `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap      int  `yaml:"chunk_overlap" koanf:"chunk_overlap"`
}

// UpstreamConfig bounds calls to the LLM and embedding services.
type UpstreamConfig struct {
	Timeout     time.Duration `yaml:"timeout" koanf:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" koanf:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" koanf:"base_delay"`
	// RPM limits LLM requests per minute. Zero disables the limit.
	RPM int `yaml:"rpm" koanf:"rpm"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Env   string `yaml:"env" koanf:"env"`
	Level string `yaml:"level" koanf:"level"`
}

// StudyConfig controls study sessions.
type StudyConfig struct {
	Enabled bool     `yaml:"enabled" koanf:"enabled"`
	Tasks   []string `yaml:"tasks,omitempty" koanf:"tasks"`
	// Seed makes the per-task mode assignment reproducible. Zero is random.
	Seed int64 `yaml:"seed,omitempty" koanf:"seed"`
}
