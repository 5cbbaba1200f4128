package vectordb

import "github.com/ziadkadry99/coursebot/internal/retrieval"

// Passage is one chunk of course material to be stored.
type Passage struct {
	ID       string
	Content  string
	Metadata retrieval.Metadata
	// Embedding may be nil, in which case the store's embedder computes it.
	Embedding []float32
}

// SearchResult pairs a retrieved document with its store ID and cosine
// similarity to the query.
type SearchResult struct {
	ID         string
	Document   retrieval.Document
	Similarity float32
}
