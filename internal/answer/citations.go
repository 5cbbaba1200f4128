package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

var (
	sourcesHeading = regexp.MustCompile(`(?i)^[*#\s_]*sources?[*_\s]*:[*_\s]*(.*)$`)
	// labelled matches "Pages: 30-42, Course: X, Lecture: Y" in any order.
	labelled = regexp.MustCompile(`(?i)\b(pages?|course|lecture)\s*:\s*`)
	// quoted matches the record form the context uses, e.g. 'course': 'X'.
	quoted = regexp.MustCompile(`'(pages?|course|lecture)'\s*:\s*'([^']*)'`)
)

// Validate checks raw model output and extracts its citations. The text is
// returned unchanged.
func Validate(raw string, strict bool) (retrieval.Answer, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return retrieval.Answer{}, fmt.Errorf("%w: empty response", retrieval.ErrMalformedAnswer)
	}

	ans := retrieval.Answer{Text: raw}
	if IsRefusal(text) {
		ans.NoAnswer = true
		return ans, nil
	}

	ans.Citations = ParseCitations(text)
	if strict && len(ans.Citations) == 0 {
		return retrieval.Answer{}, fmt.Errorf("%w: answer cites no sources", retrieval.ErrMalformedAnswer)
	}
	return ans, nil
}

// IsRefusal reports whether the model declined to answer.
func IsRefusal(text string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSuffix(Refusal, ".")))
}

// ParseCitations reads the list following a "Sources:" heading. Duplicate
// citations are dropped.
func ParseCitations(text string) []retrieval.Citation {
	var (
		out    []retrieval.Citation
		seen   = make(map[retrieval.Citation]bool)
		inList bool
	)
	add := func(line string) {
		c, ok := parseCitation(line)
		if ok && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := sourcesHeading.FindStringSubmatch(line); m != nil {
			inList = true
			if rest := strings.TrimSpace(m[1]); rest != "" {
				add(rest)
			}
			continue
		}
		if !inList {
			continue
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
			inList = false
			continue
		}
		add(strings.TrimLeft(line, "-* "))
	}
	return out
}

func parseCitation(line string) (retrieval.Citation, bool) {
	var c retrieval.Citation
	set := func(key, value string) {
		value = strings.Trim(strings.TrimSpace(value), ",;'\"*")
		switch strings.ToLower(key) {
		case "course":
			c.Course = value
		case "lecture":
			c.Lecture = value
		default:
			c.Page = value
		}
	}

	if ms := quoted.FindAllStringSubmatch(line, -1); len(ms) > 0 {
		for _, m := range ms {
			set(m[1], m[2])
		}
	} else {
		locs := labelled.FindAllStringSubmatchIndex(line, -1)
		for i, loc := range locs {
			end := len(line)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			set(line[loc[2]:loc[3]], line[loc[1]:end])
		}
	}

	if c.Course == "" && c.Lecture == "" && c.Page == "" {
		return c, false
	}
	return c, true
}
