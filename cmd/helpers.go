package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/answer"
	"github.com/ziadkadry99/coursebot/internal/config"
	"github.com/ziadkadry99/coursebot/internal/embeddings"
	"github.com/ziadkadry99/coursebot/internal/lexical"
	"github.com/ziadkadry99/coursebot/internal/llm"
	"github.com/ziadkadry99/coursebot/internal/logger"
	"github.com/ziadkadry99/coursebot/internal/metrics"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/semantic"
	"github.com/ziadkadry99/coursebot/internal/vectordb"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `coursebot init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return logger.New(cfg.Log.Env, level)
}

// createEmbedderFromConfig builds the embedder with the upstream retry
// policy applied.
func createEmbedderFromConfig(cfg *config.Config, log *zap.Logger) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = config.GetPreset(provider).EmbeddingModel
	}
	e, err := embeddings.NewEmbedder(string(provider), model, cfg.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	return embeddings.NewRetryingEmbedder(e, cfg.RetryPolicy(), log), nil
}

// createLLMProviderFromConfig builds the chat provider, rate limited when
// upstream.rpm is set and retried per the upstream policy.
func createLLMProviderFromConfig(cfg *config.Config, log *zap.Logger) (llm.Provider, error) {
	p, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.Upstream.RPM > 0 {
		p = llm.NewRateLimitedProvider(p, cfg.Upstream.RPM)
	}
	return llm.NewRetryingProvider(p, cfg.RetryPolicy(), log), nil
}

// engine holds the long-lived query components of one process.
type engine struct {
	pipeline *retrieval.Pipeline
	lexical  *lexical.Adapter
	index    *lexical.Index
}

func (e *engine) Close() error {
	return e.index.Close()
}

// buildEngine opens both indexes and assembles the query pipeline. Either
// index missing aborts startup.
func buildEngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*engine, error) {
	metrics.Register()

	embedder, err := createEmbedderFromConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	provider, err := createLLMProviderFromConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	store, err := vectordb.Open(ctx, cfg.VectorDir, embedder)
	if err != nil {
		return nil, fmt.Errorf("%w\nRun `coursebot index` first to build the indexes", err)
	}
	log.Info("vector store loaded", zap.String("dir", cfg.VectorDir), zap.Int("passages", store.Count()))

	ix, err := lexical.Open(cfg.LexicalIndex)
	if err != nil {
		return nil, fmt.Errorf("%w\nRun `coursebot index` first to build the indexes", err)
	}
	lex, err := lexical.NewAdapter(ctx, ix, log.Named("lexical"))
	if err != nil {
		ix.Close()
		return nil, err
	}

	semOpts := []semantic.Option{
		semantic.WithExpander(semantic.NewExpander(provider, log.Named("expander"))),
		semantic.WithIncludeOriginal(cfg.Retrieval.IncludeOriginal),
		semantic.WithExpansionFallback(cfg.Retrieval.ExpansionFallback),
		semantic.WithLogger(log.Named("semantic")),
	}
	if cfg.Retrieval.Rerank {
		semOpts = append(semOpts, semantic.WithReranker(semantic.NewLLMReranker(provider)))
	}
	sem := semantic.NewAdapter(store, embedder, semOpts...)

	synthOpts := []answer.Option{answer.WithLogger(log.Named("answer"))}
	if cfg.Retrieval.StrictCitations {
		synthOpts = append(synthOpts, answer.WithStrictCitations())
	}

	pipeline, err := retrieval.NewPipeline(sem, lex, answer.NewSynthesizer(provider, synthOpts...),
		retrieval.WithLogger(log.Named("pipeline")),
		retrieval.WithMaxK(cfg.Retrieval.MaxK),
	)
	if err != nil {
		ix.Close()
		return nil, err
	}
	return &engine{pipeline: pipeline, lexical: lex, index: ix}, nil
}

// parseFilters turns repeated facet=value flags into a filter. Repeating a
// facet builds a set-membership constraint.
func parseFilters(pairs []string) (retrieval.Filter, error) {
	values := make(map[retrieval.Facet][]string)
	var order []retrieval.Facet
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: expected facet=value, got %q", retrieval.ErrInvalidFilter, p)
		}
		facet, err := retrieval.ParseFacet(name)
		if err != nil {
			return nil, err
		}
		if _, seen := values[facet]; !seen {
			order = append(order, facet)
		}
		values[facet] = append(values[facet], value)
	}

	filter := retrieval.Filter{}
	for _, f := range order {
		if vs := values[f]; len(vs) == 1 {
			filter[f] = retrieval.Scalar(vs[0])
		} else {
			filter[f] = retrieval.OneOf(vs...)
		}
	}
	return filter.Normalize(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
