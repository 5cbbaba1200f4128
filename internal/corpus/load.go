// Package corpus discovers course material on disk and turns it into
// passages ready for both indexes.
//
// Two layouts are understood. JSONL files carry pre-chunked passages, one
// JSON object per line, optionally with a pre-computed embedding. Markdown and
// plain-text files are split into chunks, with course, semester and lecture
// taken from the path: <course>/<lecture>.md or
// <course>/<semester>/<lecture>.md. Form feeds in text files separate pages.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/ziadkadry99/coursebot/internal/lexical"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/vectordb"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// maxLineSize bounds one JSONL record, embeddings included.
const maxLineSize = 8 << 20

// Passage is one chunk of course material. Empty metadata stays empty until
// it is converted for an index.
type Passage struct {
	ID        string
	Content   string
	Course    string
	Lecture   string
	Semester  string
	Page      string
	Header    string
	Embedding []float32
	Source    string
}

// Lexical converts p for the keyword index.
func (p Passage) Lexical() lexical.Passage {
	return lexical.Passage{
		Content:  p.Content,
		Course:   p.Course,
		Lecture:  p.Lecture,
		Semester: p.Semester,
		Page:     p.Page,
		Header:   p.Header,
	}
}

// Vector converts p for the vector store, applying metadata sentinels.
func (p Passage) Vector() vectordb.Passage {
	return vectordb.Passage{
		ID:        p.ID,
		Content:   p.Content,
		Metadata:  retrieval.NewMetadata(p.Course, p.Lecture, p.Semester, p.Page, p.Header),
		Embedding: p.Embedding,
	}
}

// Config controls Load.
type Config struct {
	WalkConfig
	ChunkSize    int
	ChunkOverlap int
}

// Load walks cfg.Root and returns every passage found, in path order.
func Load(ctx context.Context, cfg Config) ([]Passage, error) {
	files, err := Walk(cfg.WalkConfig)
	if err != nil {
		return nil, err
	}

	size, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/2)
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)

	var out []Passage
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			ps  []Passage
			err error
		)
		switch strings.ToLower(path.Ext(f.RelPath)) {
		case ".jsonl":
			ps, err = readJSONL(f)
		default:
			ps, err = readText(f, splitter)
		}
		if err != nil {
			return nil, fmt.Errorf("corpus: %s: %w", f.RelPath, err)
		}
		out = append(out, ps...)
	}
	return out, nil
}

// field accepts a JSON string or number.
type field string

func (f *field) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = field(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = field(n.String())
	return nil
}

type recordMetadata struct {
	Course   field `json:"course"`
	Lecture  field `json:"lecture"`
	Semester field `json:"semester"`
	Page     field `json:"page"`
	Pages    field `json:"pages"`
	Header   field `json:"header"`
}

// record is one JSONL line. Both the document form
// {"page_content", "metadata"} and a flat form are accepted.
type record struct {
	ID          string         `json:"id"`
	PageContent string         `json:"page_content"`
	Content     string         `json:"content"`
	Metadata    recordMetadata `json:"metadata"`
	recordMetadata
	Embedding []float32 `json:"embedding"`
}

func (r record) passage() Passage {
	content := r.PageContent
	if content == "" {
		content = r.Content
	}
	m := r.Metadata
	return Passage{
		ID:        r.ID,
		Content:   content,
		Course:    firstSet(m.Course, r.Course),
		Lecture:   firstSet(m.Lecture, r.Lecture),
		Semester:  firstSet(m.Semester, r.Semester),
		Page:      firstSet(m.Page, m.Pages, r.Page, r.Pages),
		Header:    firstSet(m.Header, r.Header),
		Embedding: r.Embedding,
	}
}

func firstSet(fs ...field) string {
	for _, f := range fs {
		if f != "" {
			return string(f)
		}
	}
	return ""
}

func readJSONL(f File) ([]Passage, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var out []Passage
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var r record
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p := r.passage()
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		if p.ID == "" {
			p.ID = passageID(f.RelPath, line)
		}
		p.Source = f.RelPath
		out = append(out, p)
	}
	return out, sc.Err()
}

func readText(f File, splitter textsplitter.TextSplitter) ([]Passage, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	course, semester, lecture := pathFacets(f.RelPath)

	pages := strings.Split(string(data), "\f")
	var out []Passage
	header := ""
	for pi, page := range pages {
		chunks, err := splitter.SplitText(page)
		if err != nil {
			return nil, fmt.Errorf("split: %w", err)
		}
		for _, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			if h := leadingHeading(chunk); h != "" {
				header = h
			}
			p := Passage{
				ID:       passageID(f.RelPath, len(out)+1),
				Content:  chunk,
				Course:   course,
				Lecture:  lecture,
				Semester: semester,
				Header:   header,
				Source:   f.RelPath,
			}
			if len(pages) > 1 {
				p.Page = strconv.Itoa(pi + 1)
			}
			out = append(out, p)
			if h := lastHeading(chunk); h != "" {
				header = h
			}
		}
	}
	return out, nil
}

// pathFacets derives course, semester and lecture from a relative path.
func pathFacets(relPath string) (course, semester, lecture string) {
	dir, file := path.Split(relPath)
	lecture = strings.TrimSuffix(file, path.Ext(file))
	lecture = strings.TrimSpace(strings.NewReplacer("_", " ").Replace(lecture))

	parts := strings.Split(strings.Trim(dir, "/"), "/")
	switch {
	case len(parts) >= 2:
		course, semester = parts[0], parts[1]
	case len(parts) == 1 && parts[0] != "":
		course = parts[0]
	}
	return course, semester, lecture
}

// leadingHeading returns the heading text if s opens with a Markdown heading.
func leadingHeading(s string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if !strings.HasPrefix(first, "#") {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(first, "#"))
}

// lastHeading returns the text of the last Markdown heading in s.
func lastHeading(s string) string {
	var h string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				h = t
			}
		}
	}
	return h
}

// passageID derives a stable identifier so re-indexing replaces passages.
func passageID(relPath string, n int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(relPath+"#"+strconv.Itoa(n))).String()
}
