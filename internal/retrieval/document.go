package retrieval

import "fmt"

// Sentinel metadata values applied at the adapter boundary so downstream
// formatting never has to branch on a missing field.
const (
	UnknownCourse   = "Unknown Course"
	UnknownLecture  = "Unknown Lecture"
	UnknownSemester = "Unknown Semester"
	UnknownPage     = "Unknown Page"
	UnknownHeader   = ""
)

// Document is a retrieved passage of course material.
type Document struct {
	Content  string   `json:"page_content"`
	Metadata Metadata `json:"metadata"`
}

// Metadata describes where a passage comes from.
type Metadata struct {
	Course   string `json:"course"`
	Lecture  string `json:"lecture"`
	Semester string `json:"semester"`
	Page     string `json:"page"`
	Header   string `json:"header"`
}

// NewMetadata builds a complete Metadata record, substituting sentinels for
// empty values.
func NewMetadata(course, lecture, semester, page, header string) Metadata {
	return Metadata{
		Course:   orDefault(course, UnknownCourse),
		Lecture:  orDefault(lecture, UnknownLecture),
		Semester: orDefault(semester, UnknownSemester),
		Page:     orDefault(page, UnknownPage),
		Header:   orDefault(header, UnknownHeader),
	}
}

// MetadataFromMap builds Metadata from a flat string map such as the one
// stored alongside vectors.
func MetadataFromMap(m map[string]string) Metadata {
	return NewMetadata(m[string(FacetCourse)], m[string(FacetLecture)], m[string(FacetSemester)], m["page"], m["header"])
}

// Map returns the metadata as a flat map keyed by field name.
func (m Metadata) Map() map[string]string {
	return map[string]string{
		string(FacetCourse):   m.Course,
		string(FacetLecture):  m.Lecture,
		string(FacetSemester): m.Semester,
		"page":                m.Page,
		"header":              m.Header,
	}
}

// String renders the metadata in the record notation the answer prompt's
// worked example uses.
func (m Metadata) String() string {
	return fmt.Sprintf("{'course': '%s', 'lecture': '%s', 'semester': '%s', 'page': '%s', 'header': '%s'}",
		m.Course, m.Lecture, m.Semester, m.Page, m.Header)
}

// Get returns the value of a filterable facet.
func (m Metadata) Get(f Facet) string {
	switch f {
	case FacetCourse:
		return m.Course
	case FacetLecture:
		return m.Lecture
	case FacetSemester:
		return m.Semester
	default:
		return ""
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Truncate returns at most k documents.
func Truncate(docs []Document, k int) []Document {
	if k < 0 {
		k = 0
	}
	if len(docs) > k {
		return docs[:k]
	}
	return docs
}
