package lexical

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// Adapter answers retrieval requests from the lexical index.
type Adapter struct {
	index   *Index
	speller *Speller
	log     *zap.Logger
}

// NewAdapter loads the vocabulary of ix into a speller and returns an
// adapter over it.
func NewAdapter(ctx context.Context, ix *Index, log *zap.Logger) (*Adapter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vocab, err := ix.Vocabulary(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	log.Debug("spelling model trained", zap.Int("words", len(vocab)))
	return &Adapter{index: ix, speller: NewSpeller(vocab), log: log}, nil
}

// Search corrects the query, runs the weighted OR query under the filter
// and returns at most req.Limit documents. Query expansion is not
// supported and req.Expand is ignored.
func (a *Adapter) Search(ctx context.Context, req retrieval.Request) ([]retrieval.Document, error) {
	corrected := a.speller.Correct(req.Query)
	terms := queryTerms(corrected)
	if len(terms) == 0 {
		a.log.Debug("no searchable terms in query", zap.String("query", req.Query))
		return nil, nil
	}
	if corrected != req.Query {
		a.log.Debug("query corrected", zap.String("from", req.Query), zap.String("to", corrected))
	}

	limit := max(req.Candidates, req.Limit)
	hits, err := a.index.search(ctx, orExpression(terms), a.collapseFilter(req.Filter), limit)
	if err != nil {
		return nil, err
	}

	if len(terms) > 1 && len(hits) > 1 {
		if err := a.coordinate(ctx, hits, terms); err != nil {
			return nil, err
		}
	}

	docs := make([]retrieval.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return retrieval.Truncate(docs, req.Limit), nil
}

// coordinate rescales each hit by the share of query terms it matches and
// re-sorts stably.
func (a *Adapter) coordinate(ctx context.Context, hits []hit, terms []string) error {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}

	matched := make(map[int64]int, len(hits))
	for _, t := range terms {
		rows, err := a.index.matchingRows(ctx, quote(t), ids)
		if err != nil {
			return err
		}
		for id := range rows {
			matched[id]++
		}
	}

	for i := range hits {
		hits[i].score = coordinate(hits[i].score, matched[hits[i].id], len(terms))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	return nil
}

// collapseFilter reduces each facet to a single value. A OneOf constraint
// keeps only its first value, so set membership is not honoured here.
func (a *Adapter) collapseFilter(f retrieval.Filter) map[retrieval.Facet]string {
	out := make(map[retrieval.Facet]string, len(f))
	for facet, v := range f {
		first, ok := v.First()
		if !ok {
			continue
		}
		if v.IsOneOf() && len(v.Values()) > 1 {
			a.log.Debug("set filter narrowed to its first value",
				zap.String("facet", string(facet)),
				zap.Strings("values", v.Values()),
				zap.String("kept", first))
		}
		out[facet] = first
	}
	return out
}

// Facets exposes the filter options of the underlying index.
func (a *Adapter) Facets(ctx context.Context) (FacetValues, error) {
	return a.index.Facets(ctx)
}
