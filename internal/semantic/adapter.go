// Package semantic implements embedding-based retrieval over the course
// material vector store, with optional LLM query expansion and reranking.
package semantic

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/coursebot/internal/embeddings"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/vectordb"
)

// ErrNoExpander is returned when expansion is requested from an adapter
// built without a QueryExpander.
var ErrNoExpander = errors.New("query expansion requested but no expander is configured")

// Adapter answers retrieval requests from the vector store.
type Adapter struct {
	store           vectordb.VectorStore
	embedder        embeddings.Embedder
	expander        QueryExpander
	reranker        Reranker
	includeOriginal bool
	fallback        bool
	log             *zap.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithExpander enables query expansion for requests that ask for it.
func WithExpander(e QueryExpander) Option {
	return func(a *Adapter) { a.expander = e }
}

// WithReranker adds a reranking stage over the merged candidates.
func WithReranker(r Reranker) Option {
	return func(a *Adapter) { a.reranker = r }
}

// WithIncludeOriginal also searches the unexpanded query, ahead of its
// variants.
func WithIncludeOriginal(include bool) Option {
	return func(a *Adapter) { a.includeOriginal = include }
}

// WithExpansionFallback makes an expansion failure degrade to a plain
// search instead of failing the request.
func WithExpansionFallback(enabled bool) Option {
	return func(a *Adapter) { a.fallback = enabled }
}

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// NewAdapter creates a semantic adapter. embedder must be the model the
// store was built with.
func NewAdapter(store vectordb.VectorStore, embedder embeddings.Embedder, opts ...Option) *Adapter {
	a := &Adapter{store: store, embedder: embedder, log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search runs the base search or, when req.Expand is set, one search per
// query variant, and returns at most req.Limit documents.
func (a *Adapter) Search(ctx context.Context, req retrieval.Request) ([]retrieval.Document, error) {
	n := req.Candidates
	if n <= 0 {
		n = req.Limit
	}

	queries, err := a.queries(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([][]retrieval.Document, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			docs, err := a.searchOne(gctx, q, req.Filter, n)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeUnique(results)
	if a.reranker != nil && len(merged) > 1 {
		reranked, err := a.reranker.Rerank(ctx, req.Query, merged)
		if err != nil {
			a.log.Warn("rerank failed, keeping retrieval order", zap.Error(err))
		} else {
			merged = reranked
		}
	}

	return retrieval.Truncate(merged, req.Limit), nil
}

// queries resolves the list of query strings to search, in order.
func (a *Adapter) queries(ctx context.Context, req retrieval.Request) ([]string, error) {
	if !req.Expand {
		return []string{req.Query}, nil
	}
	if a.expander == nil {
		return nil, ErrNoExpander
	}

	variants, err := a.expander.Expand(ctx, req.Query)
	if err != nil {
		if !a.fallback {
			return nil, err
		}
		a.log.Warn("query expansion failed, searching the original query", zap.Error(err))
		return []string{req.Query}, nil
	}
	if len(variants) == 0 {
		a.log.Warn("query expansion produced no variants, searching the original query")
		return []string{req.Query}, nil
	}

	if a.includeOriginal {
		return append([]string{req.Query}, variants...), nil
	}
	return variants, nil
}

// searchOne embeds q once and queries the store for every equality
// combination the filter expands to.
func (a *Adapter) searchOne(ctx context.Context, q string, filter retrieval.Filter, n int) ([]retrieval.Document, error) {
	vecs, err := a.embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: embedder %s returned no vector", a.embedder.Name())
	}

	var hits []vectordb.SearchResult
	for _, where := range whereClauses(filter) {
		res, err := a.nearest(ctx, vecs[0], n, where)
		if err != nil {
			return nil, err
		}
		hits = append(hits, res...)
	}
	hits = dedupeByID(hits)
	sortHits(hits)
	if len(hits) > n {
		hits = hits[:n]
	}

	docs := make([]retrieval.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}
	return docs, nil
}

// nearest returns the n best hits for one where clause in a stable order.
// It fetches past n and widens the fetch while the n-th hit ties with the
// last one fetched, since the store cuts through equal similarities in no
// fixed order.
func (a *Adapter) nearest(ctx context.Context, vec []float32, n int, where map[string]string) ([]vectordb.SearchResult, error) {
	if n <= 0 {
		return nil, nil
	}
	for m := n + 1; ; m *= 2 {
		res, err := a.store.QueryEmbedding(ctx, vec, m, where)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		sortHits(res)
		if len(res) <= n || len(res) < m || res[n-1].Similarity > res[len(res)-1].Similarity {
			if len(res) > n {
				res = res[:n]
			}
			return res, nil
		}
	}
}

// sortHits orders hits by descending similarity, ties by ascending ID.
func sortHits(hits []vectordb.SearchResult) {
	slices.SortFunc(hits, func(x, y vectordb.SearchResult) int {
		if c := cmp.Compare(y.Similarity, x.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
}

// whereClauses turns a filter into the equality maps the store accepts. A
// OneOf facet contributes one branch per value; a nil filter yields a single
// nil clause.
func whereClauses(filter retrieval.Filter) []map[string]string {
	clauses := []map[string]string{nil}
	for _, facet := range filter.SortedFacets() {
		values := filter[facet].Values()
		if len(values) == 0 {
			continue
		}
		next := make([]map[string]string, 0, len(clauses)*len(values))
		for _, base := range clauses {
			for _, v := range values {
				where := make(map[string]string, len(base)+1)
				for k, bv := range base {
					where[k] = bv
				}
				where[string(facet)] = v
				next = append(next, where)
			}
		}
		clauses = next
	}
	return clauses
}

func dedupeByID(hits []vectordb.SearchResult) []vectordb.SearchResult {
	seen := make(map[string]bool, len(hits))
	out := hits[:0:0]
	for _, h := range hits {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
	}
	return out
}

type docKey struct {
	content  string
	metadata retrieval.Metadata
}

// mergeUnique concatenates result lists in order, keeping the first
// occurrence of each (content, metadata) pair.
func mergeUnique(lists [][]retrieval.Document) []retrieval.Document {
	seen := make(map[docKey]bool)
	var out []retrieval.Document
	for _, docs := range lists {
		for _, d := range docs {
			k := docKey{content: d.Content, metadata: d.Metadata}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, d)
		}
	}
	return out
}
