package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/metrics"
	"github.com/ziadkadry99/coursebot/internal/retry"
)

// OverFetchFactor is how many more candidates than requested an adapter is
// asked for, to absorb losses from deduplication and reranking.
const OverFetchFactor = 4

// DefaultMaxK bounds k when no maximum is configured.
const DefaultMaxK = 100

// NoDocumentsAnswer is returned without a model call when retrieval finds
// nothing.
const NoDocumentsAnswer = "No relevant documents found."

// Mode selects the retrieval backend.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeLexical  Mode = "lexical"
)

// ParseMode validates a mode name. The study's historical names "rag" and
// "keyword" are accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModeSemantic), "rag":
		return ModeSemantic, nil
	case string(ModeLexical), "keyword":
		return ModeLexical, nil
	default:
		return "", &InvalidModeError{Mode: s}
	}
}

// Request is what the pipeline hands an adapter.
type Request struct {
	Query string
	// Filter is nil or a normalized, non-empty filter.
	Filter Filter
	// Limit is the number of documents the caller finally wants.
	Limit int
	// Candidates is the over-fetched backend result size.
	Candidates int
	// Expand enables query expansion where the backend supports it.
	Expand bool
}

// Searcher is a retrieval backend adapter.
type Searcher interface {
	Search(ctx context.Context, req Request) ([]Document, error)
}

// Citation is one source reference parsed out of a generated answer.
type Citation struct {
	Course  string `json:"course"`
	Lecture string `json:"lecture"`
	Page    string `json:"page"`
}

// Answer is the outcome of a processed query.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	// NoAnswer is set when nothing usable was found, either because no
	// document matched or because the model declined to answer.
	NoAnswer bool `json:"no_answer"`
}

// Synthesizer turns retrieved documents into an answer.
type Synthesizer interface {
	Generate(ctx context.Context, query string, docs []Document) (Answer, error)
}

// Query is a single pipeline invocation.
type Query struct {
	Text   string
	Mode   Mode
	Filter Filter
	Expand bool
	K      int
}

// Pipeline selects a backend by mode, retrieves a ranked document set and
// hands it to the synthesizer. It holds no per-query state.
type Pipeline struct {
	semantic Searcher
	lexical  Searcher
	synth    Synthesizer
	maxK     int
	log      *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMaxK sets the largest k a query may ask for. Values below one keep
// DefaultMaxK.
func WithMaxK(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxK = n
		}
	}
}

// NewPipeline creates a pipeline over both backends.
func NewPipeline(semantic, lexical Searcher, synth Synthesizer, opts ...Option) (*Pipeline, error) {
	if semantic == nil || lexical == nil {
		return nil, fmt.Errorf("%w: both semantic and lexical searchers are required", ErrIndexUnavailable)
	}
	if synth == nil {
		return nil, errors.New("synthesizer is required")
	}
	p := &Pipeline{semantic: semantic, lexical: lexical, synth: synth, maxK: DefaultMaxK, log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Retrieve runs the first stage only and returns at most q.K documents.
func (p *Pipeline) Retrieve(ctx context.Context, q Query) ([]Document, error) {
	searcher, err := p.searcher(q.Mode)
	if err != nil {
		return nil, err
	}
	if q.K <= 0 || q.K > p.maxK {
		return nil, fmt.Errorf("%w: got %d, want 1 to %d", ErrInvalidK, q.K, p.maxK)
	}

	req := Request{
		Query:      q.Text,
		Filter:     q.Filter.Normalize(),
		Limit:      q.K,
		Candidates: q.K * OverFetchFactor,
		Expand:     q.Expand && q.Mode == ModeSemantic,
	}

	docs, err := searcher.Search(ctx, req)
	if err != nil {
		return nil, classify(fmt.Errorf("%s search: %w", q.Mode, err))
	}

	docs = Truncate(docs, q.K)
	metrics.RetrievedDocuments.WithLabelValues(string(q.Mode)).Observe(float64(len(docs)))
	return docs, nil
}

// Generate runs the second stage. An empty document set short-circuits to
// NoDocumentsAnswer without calling the synthesizer.
func (p *Pipeline) Generate(ctx context.Context, query string, docs []Document) (Answer, error) {
	if len(docs) == 0 {
		return Answer{Text: NoDocumentsAnswer, NoAnswer: true}, nil
	}
	ans, err := p.synth.Generate(ctx, query, docs)
	if err != nil {
		return Answer{}, classify(fmt.Errorf("generate answer: %w", err))
	}
	return ans, nil
}

// ProcessQuery retrieves documents for q and synthesizes an answer.
func (p *Pipeline) ProcessQuery(ctx context.Context, q Query) (Answer, error) {
	start := time.Now()
	log := p.log.With(
		zap.String("mode", string(q.Mode)),
		zap.Int("k", q.K),
		zap.Bool("expand", q.Expand),
		zap.Int("filters", len(q.Filter.Normalize())),
	)

	ans, err := p.process(ctx, q)
	outcome := outcomeOf(ans, err)
	metrics.QueriesTotal.WithLabelValues(string(q.Mode), outcome).Inc()
	metrics.QueryDuration.WithLabelValues(string(q.Mode)).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Warn("query failed", zap.String("outcome", outcome), zap.Error(err))
		return Answer{}, err
	}
	log.Info("query processed",
		zap.String("outcome", outcome),
		zap.Int("citations", len(ans.Citations)),
		zap.Duration("took", time.Since(start)),
	)
	return ans, nil
}

func (p *Pipeline) process(ctx context.Context, q Query) (Answer, error) {
	docs, err := p.Retrieve(ctx, q)
	if err != nil {
		return Answer{}, err
	}
	return p.Generate(ctx, q.Text, docs)
}

func (p *Pipeline) searcher(m Mode) (Searcher, error) {
	switch m {
	case ModeSemantic:
		return p.semantic, nil
	case ModeLexical:
		return p.lexical, nil
	default:
		return nil, &InvalidModeError{Mode: string(m)}
	}
}

// classify marks upstream failures that survived their retries.
func classify(err error) error {
	if errors.Is(err, retry.ErrExhausted) && !errors.Is(err, ErrRetrievalDegraded) {
		return fmt.Errorf("%w: %w", ErrRetrievalDegraded, err)
	}
	return err
}

func outcomeOf(ans Answer, err error) string {
	switch {
	case errors.Is(err, ErrInvalidMode), errors.Is(err, ErrInvalidK), errors.Is(err, ErrInvalidFilter):
		return "invalid"
	case errors.Is(err, ErrRetrievalDegraded):
		return "degraded"
	case errors.Is(err, ErrMalformedAnswer):
		return "malformed"
	case err != nil:
		return "error"
	case ans.NoAnswer:
		return "no_answer"
	default:
		return "answered"
	}
}
