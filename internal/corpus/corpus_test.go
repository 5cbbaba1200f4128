package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func sampleCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "passages.jsonl",
		`{"page_content": "Backpropagation is a key algorithm.", "metadata": {"course": "Machine Learning", "lecture": "Deep Learning Fundamentals", "semester": "WiSe 2023", "page": "30-42"}, "embedding": [0.1, 0.2]}`+"\n"+
			"\n"+
			`{"id": "db-1", "content": "Relations are sets of tuples.", "course": "Databases", "page": 3}`+"\n"+
			`{"content": "   "}`+"\n")
	writeFile(t, root, "Databases/SoSe 2023/Relational_Model.md", "# Relational Model\n\nA relation is a table.\n")
	writeFile(t, root, "Databases/notes.txt", "Page one text.\fPage two text.")
	writeFile(t, root, "Databases/diagram.png", "\x89PNG\x00\x00")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main")
	return root
}

func TestWalk(t *testing.T) {
	root := sampleCorpus(t)

	files, err := Walk(WalkConfig{Root: root})
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
		assert.Len(t, f.ContentHash, 64)
	}
	assert.Equal(t, []string{
		"Databases/SoSe 2023/Relational_Model.md",
		"Databases/notes.txt",
		"passages.jsonl",
	}, rels)
}

func TestWalk_Exclude(t *testing.T) {
	root := sampleCorpus(t)

	files, err := Walk(WalkConfig{Root: root, Exclude: []string{"**/*.txt", "*.jsonl"}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Databases/SoSe 2023/Relational_Model.md", files[0].RelPath)
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := Walk(WalkConfig{Root: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	root := sampleCorpus(t)

	passages, err := Load(context.Background(), Config{WalkConfig: WalkConfig{Root: root}})
	require.NoError(t, err)
	require.Len(t, passages, 5)

	md := passages[0]
	assert.Equal(t, "Databases", md.Course)
	assert.Equal(t, "SoSe 2023", md.Semester)
	assert.Equal(t, "Relational Model", md.Lecture)
	assert.Equal(t, "Relational Model", md.Header)
	assert.Empty(t, md.Page)
	assert.NotEmpty(t, md.ID)

	pageOne, pageTwo := passages[1], passages[2]
	assert.Equal(t, "Page one text.", pageOne.Content)
	assert.Equal(t, "1", pageOne.Page)
	assert.Equal(t, "2", pageTwo.Page)
	assert.Equal(t, "notes", pageOne.Lecture)
	assert.Equal(t, "Databases", pageOne.Course)

	ml := passages[3]
	assert.Equal(t, "Backpropagation is a key algorithm.", ml.Content)
	assert.Equal(t, "Machine Learning", ml.Course)
	assert.Equal(t, "30-42", ml.Page)
	assert.Equal(t, []float32{0.1, 0.2}, ml.Embedding)
	assert.Equal(t, "passages.jsonl", ml.Source)

	db := passages[4]
	assert.Equal(t, "db-1", db.ID)
	assert.Equal(t, "3", db.Page)
	assert.Equal(t, "Databases", db.Course)
}

func TestLoad_StableIDs(t *testing.T) {
	root := sampleCorpus(t)

	first, err := Load(context.Background(), Config{WalkConfig: WalkConfig{Root: root}})
	require.NoError(t, err)
	second, err := Load(context.Background(), Config{WalkConfig: WalkConfig{Root: root}})
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestLoad_BadJSONL(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.jsonl", "{not json}\n")

	_, err := Load(context.Background(), Config{WalkConfig: WalkConfig{Root: root}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.jsonl")
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoad_Cancelled(t *testing.T) {
	root := sampleCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, Config{WalkConfig: WalkConfig{Root: root}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPassageConversions(t *testing.T) {
	p := Passage{ID: "x", Content: "c", Course: "A", Embedding: []float32{1}}

	lex := p.Lexical()
	assert.Equal(t, "A", lex.Course)
	assert.Empty(t, lex.Lecture)

	vec := p.Vector()
	assert.Equal(t, "x", vec.ID)
	assert.Equal(t, retrieval.UnknownLecture, vec.Metadata.Lecture)
	assert.Equal(t, []float32{1}, vec.Embedding)
}

func TestPathFacets(t *testing.T) {
	tests := []struct {
		rel                       string
		course, semester, lecture string
	}{
		{"intro.md", "", "", "intro"},
		{"ML/Neural_Networks.md", "ML", "", "Neural Networks"},
		{"ML/WiSe 2023/Deep_Learning.txt", "ML", "WiSe 2023", "Deep Learning"},
	}
	for _, tt := range tests {
		c, s, l := pathFacets(tt.rel)
		assert.Equal(t, tt.course, c, tt.rel)
		assert.Equal(t, tt.semester, s, tt.rel)
		assert.Equal(t, tt.lecture, l, tt.rel)
	}
}

func TestMatches(t *testing.T) {
	assert.True(t, MatchesInclude("a/b/c.md", DefaultInclude))
	assert.False(t, MatchesInclude("a/b/c.pdf", DefaultInclude))
	assert.True(t, MatchesInclude("anything", nil))
	assert.False(t, MatchesExclude("a.md", nil))
	assert.True(t, MatchesExclude("drafts/a.md", []string{"drafts/**"}))
}
