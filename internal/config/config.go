package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ziadkadry99/coursebot/internal/retry"
)

// EnvPrefix prefixes environment overrides. A double underscore selects a
// nested key: COURSEBOT_RETRIEVAL__TOP_K sets retrieval.top_k.
const EnvPrefix = "COURSEBOT_"

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".coursebot.yml"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (COURSEBOT_*). A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

var validLogEnvs = map[string]bool{"": true, "dev": true, "local": true, "prod": true}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	var errs []error
	if !validProviders[c.Provider] {
		errs = append(errs, fmt.Errorf("invalid provider %q: must be one of openai, ollama", c.Provider))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if !validProviders[c.EmbeddingProvider] {
		errs = append(errs, fmt.Errorf("invalid embedding_provider %q", c.EmbeddingProvider))
	}
	if c.VectorDir == "" {
		errs = append(errs, errors.New("vector_dir is required"))
	}
	if c.LexicalIndex == "" {
		errs = append(errs, errors.New("lexical_index is required"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("retrieval.top_k must be greater than zero"))
	}
	if c.Retrieval.MaxK < c.Retrieval.TopK {
		errs = append(errs, errors.New("retrieval.max_k must be at least top_k"))
	}
	if c.Retrieval.ChunkSize <= 0 || c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, errors.New("retrieval.chunk_overlap must be non-negative and smaller than chunk_size"))
	}
	if c.Upstream.MaxAttempts <= 0 {
		errs = append(errs, errors.New("upstream.max_attempts must be greater than zero"))
	}
	if c.Upstream.Timeout < 0 || c.Upstream.BaseDelay < 0 || c.Upstream.RPM < 0 {
		errs = append(errs, errors.New("upstream timeout, base_delay and rpm must be non-negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port %d", c.Server.Port))
	}
	if !validLogEnvs[c.Log.Env] {
		errs = append(errs, fmt.Errorf("invalid log.env %q: must be one of dev, local, prod", c.Log.Env))
	}
	return errors.Join(errs...)
}

// RetryPolicy returns the upstream retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Upstream.MaxAttempts,
		BaseDelay:   c.Upstream.BaseDelay,
		Timeout:     c.Upstream.Timeout,
	}
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return ""
}
