package vectordb

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// FormatDocuments renders retrieved passages as human-readable text.
func FormatDocuments(docs []retrieval.Document) string {
	if len(docs) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n\n", len(docs))

	for i, d := range docs {
		m := d.Metadata
		fmt.Fprintf(&sb, "--- Result %d ---\n", i+1)
		fmt.Fprintf(&sb, "Course: %s\n", m.Course)
		fmt.Fprintf(&sb, "Lecture: %s (%s)\n", m.Lecture, m.Semester)
		fmt.Fprintf(&sb, "Page: %s\n", m.Page)
		if m.Header != "" {
			fmt.Fprintf(&sb, "Section: %s\n", m.Header)
		}
		sb.WriteString("\n")
		sb.WriteString(d.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
