// Package lexical implements keyword retrieval over a SQLite FTS5 index of
// course passages: spelling correction, field-weighted OR queries with a
// coordination bonus, and exact-match facet filters.
package lexical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// ErrSchemaMismatch is reported when an existing file is not a lexical index
// of the supported version.
var ErrSchemaMismatch = errors.New("lexical index schema mismatch")

// Passage is one raw chunk of course material as it is indexed. Empty
// metadata fields are kept empty in storage.
type Passage struct {
	Content  string `json:"content"`
	Course   string `json:"course"`
	Lecture  string `json:"lecture"`
	Semester string `json:"semester"`
	Page     string `json:"page"`
	Header   string `json:"header"`
}

// FacetValues lists the values available for filtering.
type FacetValues struct {
	Courses []string `json:"courses"`
	// Lectures maps each course to its lectures.
	Lectures  map[string][]string `json:"lectures"`
	Semesters []string            `json:"semesters"`
}

// Index is an FTS5-backed passage index.
type Index struct {
	db   *sql.DB
	path string
}

func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Create opens the index at path, creating the file and schema if needed.
func Create(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening lexical index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating lexical schema: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

// Open opens an existing index. A missing file or a file with a different
// schema is reported as a *retrieval.IndexUnavailableError; nothing is
// created.
func Open(path string) (*Index, error) {
	unavailable := func(err error) error {
		return &retrieval.IndexUnavailableError{Backend: "lexical", Path: path, Err: err}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, unavailable(err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, unavailable(err)
	}

	if err := verifySchema(db); err != nil {
		db.Close()
		return nil, unavailable(err)
	}
	return &Index{db: db, path: path}, nil
}

func verifySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrSchemaMismatch, version, schemaVersion)
	}

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, want := range requiredTables {
		if !slices.Contains(tables, want) {
			return fmt.Errorf("%w: missing table %s", ErrSchemaMismatch, want)
		}
	}
	return nil
}

// Path returns the index file location.
func (ix *Index) Path() string { return ix.path }

// Close releases the database handle.
func (ix *Index) Close() error { return ix.db.Close() }

// Add inserts passages and updates the spelling vocabulary in one
// transaction.
func (ix *Index) Add(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, `INSERT INTO passages (content, course, lecture, semester, page, header) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	counts := make(map[string]int)
	for _, p := range passages {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		if _, err := insert.ExecContext(ctx, p.Content, p.Course, p.Lecture, p.Semester, p.Page, p.Header); err != nil {
			return fmt.Errorf("insert passage: %w", err)
		}
		for _, field := range []string{p.Content, p.Course, p.Lecture, p.Header} {
			for _, w := range tokenize(field) {
				counts[w]++
			}
		}
	}

	vocab, err := tx.PrepareContext(ctx, `INSERT INTO vocabulary (word, freq) VALUES (?, ?)
		ON CONFLICT(word) DO UPDATE SET freq = freq + excluded.freq`)
	if err != nil {
		return fmt.Errorf("prepare vocabulary: %w", err)
	}
	defer vocab.Close()

	for w, n := range counts {
		if _, err := vocab.ExecContext(ctx, w, n); err != nil {
			return fmt.Errorf("update vocabulary: %w", err)
		}
	}

	return tx.Commit()
}

// Count returns the number of indexed passages.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n)
	return n, err
}

// Vocabulary returns every indexed word with its frequency.
func (ix *Index) Vocabulary(ctx context.Context) (map[string]int, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT word, freq FROM vocabulary`)
	if err != nil {
		return nil, fmt.Errorf("query vocabulary: %w", err)
	}
	defer rows.Close()

	vocab := make(map[string]int)
	for rows.Next() {
		var w string
		var n int
		if err := rows.Scan(&w, &n); err != nil {
			return nil, err
		}
		vocab[w] = n
	}
	return vocab, rows.Err()
}

// Facets lists the distinct non-empty course, lecture and semester values.
func (ix *Index) Facets(ctx context.Context) (FacetValues, error) {
	out := FacetValues{Lectures: make(map[string][]string)}

	rows, err := ix.db.QueryContext(ctx, `SELECT DISTINCT course, lecture FROM passages
		WHERE course != '' ORDER BY course, lecture`)
	if err != nil {
		return out, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var course, lecture string
		if err := rows.Scan(&course, &lecture); err != nil {
			return out, err
		}
		if len(out.Courses) == 0 || out.Courses[len(out.Courses)-1] != course {
			out.Courses = append(out.Courses, course)
		}
		if lecture != "" {
			out.Lectures[course] = append(out.Lectures[course], lecture)
		}
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	semRows, err := ix.db.QueryContext(ctx, `SELECT DISTINCT semester FROM passages WHERE semester != '' ORDER BY semester`)
	if err != nil {
		return out, fmt.Errorf("query semesters: %w", err)
	}
	defer semRows.Close()

	for semRows.Next() {
		var s string
		if err := semRows.Scan(&s); err != nil {
			return out, err
		}
		out.Semesters = append(out.Semesters, s)
	}
	return out, semRows.Err()
}

// hit is one scored row.
type hit struct {
	id    int64
	doc   retrieval.Document
	score float64
}

// search runs a MATCH expression with equality filters and returns up to
// limit rows by descending weighted bm25, ties broken by insertion order.
func (ix *Index) search(ctx context.Context, match string, filters map[retrieval.Facet]string, limit int) ([]hit, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT p.id, p.content, p.course, p.lecture, p.semester, p.page, p.header,
		-bm25(passages_fts, ` + fieldWeights + `) AS score
		FROM passages_fts JOIN passages p ON p.id = passages_fts.rowid
		WHERE passages_fts MATCH ?`)
	args := []any{match}

	for _, f := range retrieval.Facets {
		v, ok := filters[f]
		if !ok {
			continue
		}
		sb.WriteString(" AND p." + string(f) + " = ?")
		args = append(args, v)
	}
	sb.WriteString(" ORDER BY score DESC, p.id LIMIT ?")
	args = append(args, limit)

	rows, err := ix.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []hit
	for rows.Next() {
		var h hit
		var course, lecture, semester, page, header string
		if err := rows.Scan(&h.id, &h.doc.Content, &course, &lecture, &semester, &page, &header, &h.score); err != nil {
			return nil, err
		}
		h.doc.Metadata = retrieval.NewMetadata(course, lecture, semester, page, header)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// matchingRows returns which of ids match the expression.
func (ix *Index) matchingRows(ctx context.Context, match string, ids []int64) (map[int64]bool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, match)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := ix.db.QueryContext(ctx,
		`SELECT rowid FROM passages_fts WHERE passages_fts MATCH ? AND rowid IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fts term query: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
