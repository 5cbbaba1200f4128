package vectordb

import "context"

// VectorStore defines the interface for storing and searching course
// passages by embedding.
type VectorStore interface {
	// AddPassages adds or replaces passages in the store.
	AddPassages(ctx context.Context, passages []Passage) error

	// QueryEmbedding returns the passages nearest to an already computed
	// query vector. where holds metadata equality constraints.
	QueryEmbedding(ctx context.Context, vec []float32, limit int, where map[string]string) ([]SearchResult, error)

	// Persist saves the store's data to the given directory.
	Persist(ctx context.Context, dir string) error

	// Load restores the store's data from the given directory.
	Load(ctx context.Context, dir string) error

	// Count returns the total number of passages in the store.
	Count() int
}
