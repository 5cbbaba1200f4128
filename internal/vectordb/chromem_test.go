package vectordb

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// mockEmbedder returns deterministic embeddings based on text content.
// Similar texts produce similar vectors because shared characters contribute
// to the same positions in the vector.
type mockEmbedder struct {
	dims int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.deterministicVector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

func (m *mockEmbedder) deterministicVector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		idx := (int(ch) + i) % m.dims
		vec[idx] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func samplePassages() []Passage {
	return []Passage{
		{
			ID:       "ml-30",
			Content:  "Backpropagation computes gradients of the loss with respect to every weight",
			Metadata: retrieval.NewMetadata("Machine Learning", "Deep Learning Fundamentals", "WiSe 2023", "30-42", "Training"),
		},
		{
			ID:       "ml-12",
			Content:  "Gradient descent updates parameters in the direction of the negative gradient",
			Metadata: retrieval.NewMetadata("Machine Learning", "Optimization", "WiSe 2023", "12", ""),
		},
		{
			ID:       "db-3",
			Content:  "A relational database stores tuples in tables with a fixed schema",
			Metadata: retrieval.NewMetadata("Databases", "Relational Model", "SoSe 2023", "3", ""),
		},
	}
}

// searchText embeds query with the 64-dimension mock and queries the store.
func searchText(ctx context.Context, store *ChromemStore, query string, limit int, where map[string]string) ([]SearchResult, error) {
	vecs, err := newMockEmbedder(64).Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return store.QueryEmbedding(ctx, vecs[0], limit, where)
}

func newLoadedStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(newMockEmbedder(64))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	if err := store.AddPassages(context.Background(), samplePassages()); err != nil {
		t.Fatalf("AddPassages: %v", err)
	}
	return store
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	store := newLoadedStore(t)

	if count := store.Count(); count != 3 {
		t.Errorf("Count: got %d, want 3", count)
	}

	results, err := searchText(context.Background(), store, "how does backpropagation compute gradients", 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || len(results) > 2 {
		t.Fatalf("Search returned %d results, expected 1 or 2", len(results))
	}
	for _, r := range results {
		if r.Similarity == 0 {
			t.Error("result has zero similarity")
		}
		if r.Document.Metadata.Course == "" {
			t.Error("result has empty course")
		}
	}
}

func TestChromemStore_LimitClampedToCollectionSize(t *testing.T) {
	store := newLoadedStore(t)

	results, err := searchText(context.Background(), store, "gradient", 40, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected all 3 passages, got %d", len(results))
	}
}

func TestChromemStore_WhereFilter(t *testing.T) {
	store := newLoadedStore(t)

	results, err := searchText(context.Background(), store, "gradient", 10, map[string]string{"course": "Databases"})
	if err != nil {
		t.Fatalf("Search with filter: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected a filtered result")
	}
	for _, r := range results {
		if r.Document.Metadata.Course != "Databases" {
			t.Errorf("expected course Databases, got %s", r.Document.Metadata.Course)
		}
	}
}

func TestChromemStore_EmptyStore(t *testing.T) {
	store, err := NewChromemStore(newMockEmbedder(8))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	results, err := searchText(context.Background(), store, "anything", 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestChromemStore_PrecomputedEmbeddings(t *testing.T) {
	emb := newMockEmbedder(16)
	store, err := NewChromemStore(emb)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	vec := emb.deterministicVector("attention is all you need")
	err = store.AddPassages(context.Background(), []Passage{{
		ID:        "nlp-1",
		Content:   "Transformers replace recurrence with self-attention",
		Metadata:  retrieval.NewMetadata("NLP", "Transformers", "", "", ""),
		Embedding: vec,
	}})
	if err != nil {
		t.Fatalf("AddPassages: %v", err)
	}

	results, err := store.QueryEmbedding(context.Background(), vec, 1, nil)
	if err != nil {
		t.Fatalf("QueryEmbedding: %v", err)
	}
	if len(results) != 1 || results[0].ID != "nlp-1" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Document.Metadata.Semester != retrieval.UnknownSemester {
		t.Errorf("expected sentinel semester, got %q", results[0].Document.Metadata.Semester)
	}
}

func TestChromemStore_PersistAndOpen(t *testing.T) {
	ctx := context.Background()
	store := newLoadedStore(t)
	dir := t.TempDir()

	if err := store.Persist(ctx, dir); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, err := Open(ctx, dir, newMockEmbedder(64))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if count := loaded.Count(); count != 3 {
		t.Errorf("Count after load: got %d, want 3", count)
	}

	results, err := searchText(ctx, loaded, "relational database tables", 3, nil)
	if err != nil {
		t.Fatalf("Search after load: %v", err)
	}
	found := false
	for _, r := range results {
		if r.ID == "db-3" {
			found = true
			if r.Document.Metadata.Lecture != "Relational Model" {
				t.Errorf("db-3: expected lecture 'Relational Model', got %q", r.Document.Metadata.Lecture)
			}
		}
	}
	if !found {
		t.Error("db-3 passage not found after load")
	}
}

func TestOpen_MissingDatabase(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), newMockEmbedder(8))
	if !errors.Is(err, retrieval.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	var idxErr *retrieval.IndexUnavailableError
	if !errors.As(err, &idxErr) || idxErr.Backend != "vector" {
		t.Errorf("expected vector IndexUnavailableError, got %v", err)
	}
}

func TestFormatDocuments(t *testing.T) {
	output := FormatDocuments([]retrieval.Document{{
		Content:  "Backpropagation computes gradients",
		Metadata: retrieval.NewMetadata("Machine Learning", "Deep Learning Fundamentals", "WiSe 2023", "30-42", "Training"),
	}})
	for _, want := range []string{"Course: Machine Learning", "Page: 30-42", "Section: Training", "WiSe 2023"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatDocuments_Empty(t *testing.T) {
	if output := FormatDocuments(nil); output != "No results found." {
		t.Errorf("expected 'No results found.', got: %s", output)
	}
}
