package vectordb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/coursebot/internal/embeddings"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

const (
	collectionName = "course_material"
	// FileName is the persisted database file inside the vector directory.
	FileName = "chromem.gob.gz"
)

// ChromemStore implements VectorStore using chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
}

// NewChromemStore creates a new in-memory ChromemStore.
func NewChromemStore(embedder embeddings.Embedder) (*ChromemStore, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: col,
		embedFunc:  ef,
	}, nil
}

// Open loads a persisted store from dir. A missing or unreadable database
// is reported as a *retrieval.IndexUnavailableError.
func Open(ctx context.Context, dir string, embedder embeddings.Embedder) (*ChromemStore, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		return nil, &retrieval.IndexUnavailableError{Backend: "vector", Path: path, Err: err}
	}

	store, err := NewChromemStore(embedder)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx, dir); err != nil {
		return nil, &retrieval.IndexUnavailableError{Backend: "vector", Path: path, Err: err}
	}
	return store, nil
}

func (s *ChromemStore) AddPassages(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(passages))
	for i, p := range passages {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Content,
			Metadata:  p.Metadata.Map(),
			Embedding: p.Embedding,
		}
	}

	return s.collection.AddDocuments(ctx, docs, runtime.NumCPU())
}

func (s *ChromemStore) QueryEmbedding(ctx context.Context, vec []float32, limit int, where map[string]string) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	limit = min(limit, count)

	results, err := s.collection.QueryEmbedding(ctx, vec, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			ID: r.ID,
			Document: retrieval.Document{
				Content:  r.Content,
				Metadata: retrieval.MetadataFromMap(r.Metadata),
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

func (s *ChromemStore) Persist(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	return s.db.ExportToFile(filepath.Join(dir, FileName), true, "")
}

func (s *ChromemStore) Load(_ context.Context, dir string) error {
	if err := s.db.ImportFromFile(filepath.Join(dir, FileName), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection reference after import.
	col := s.db.GetCollection(collectionName, s.embedFunc)
	if col == nil {
		return errors.New("collection " + collectionName + " not found after import")
	}
	s.collection = col
	return nil
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}
