package retrieval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Facet is a metadata field that results can be restricted by.
type Facet string

const (
	FacetCourse   Facet = "course"
	FacetLecture  Facet = "lecture"
	FacetSemester Facet = "semester"
)

// Facets lists every filterable facet in a stable order.
var Facets = []Facet{FacetCourse, FacetLecture, FacetSemester}

// ParseFacet validates a facet name.
func ParseFacet(s string) (Facet, error) {
	switch f := Facet(s); f {
	case FacetCourse, FacetLecture, FacetSemester:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown facet %q", ErrInvalidFilter, s)
	}
}

// FilterValue constrains one facet either to a single value or to membership
// in a set of values.
type FilterValue struct {
	values []string
	oneOf  bool
}

// Scalar matches exactly one value.
func Scalar(v string) FilterValue {
	return FilterValue{values: []string{v}}
}

// OneOf matches any of the given values. Order is preserved because the
// lexical backend only honours the first one.
func OneOf(vs ...string) FilterValue {
	return FilterValue{values: append([]string(nil), vs...), oneOf: true}
}

// IsOneOf reports whether the value was given in set-membership form.
func (v FilterValue) IsOneOf() bool { return v.oneOf }

// Values returns the non-empty values, deduplicated, in their given order.
func (v FilterValue) Values() []string {
	out := make([]string, 0, len(v.values))
	seen := make(map[string]bool, len(v.values))
	for _, s := range v.values {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// First returns the first non-empty value.
func (v FilterValue) First() (string, bool) {
	vals := v.Values()
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// IsEmpty reports whether the value constrains nothing.
func (v FilterValue) IsEmpty() bool { return len(v.Values()) == 0 }

type inClause struct {
	In []string `json:"$in"`
}

// UnmarshalJSON accepts "value", ["a", "b"] or {"$in": ["a", "b"]}.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(data, []byte(`"`)):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Scalar(s)
	case bytes.HasPrefix(data, []byte(`[`)):
		var vs []string
		if err := json.Unmarshal(data, &vs); err != nil {
			return err
		}
		*v = OneOf(vs...)
	case bytes.HasPrefix(data, []byte(`{`)):
		var in inClause
		if err := json.Unmarshal(data, &in); err != nil {
			return err
		}
		*v = OneOf(in.In...)
	case bytes.Equal(data, []byte("null")):
		*v = FilterValue{}
	default:
		return fmt.Errorf("%w: unsupported filter value %s", ErrInvalidFilter, data)
	}
	return nil
}

// MarshalJSON writes scalars as strings and sets as {"$in": [...]}.
func (v FilterValue) MarshalJSON() ([]byte, error) {
	if v.oneOf {
		return json.Marshal(inClause{In: v.Values()})
	}
	s, _ := v.First()
	return json.Marshal(s)
}

// Filter restricts retrieval to documents whose facets match.
type Filter map[Facet]FilterValue

// UnmarshalJSON rejects unknown facet names.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]FilterValue
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*f = nil
		return nil
	}
	out := make(Filter, len(raw))
	for k, v := range raw {
		facet, err := ParseFacet(k)
		if err != nil {
			return err
		}
		out[facet] = v
	}
	*f = out
	return nil
}

// Normalize drops empty constraints. A filter with no remaining constraint
// is returned as nil, which means "no filter".
func (f Filter) Normalize() Filter {
	if len(f) == 0 {
		return nil
	}
	out := make(Filter, len(f))
	for k, v := range f {
		if v.IsEmpty() {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Flatten returns the filter as plain value lists, the shape study logs use.
func (f Filter) Flatten() map[string][]string {
	out := make(map[string][]string, len(f))
	for k, v := range f {
		out[string(k)] = v.Values()
	}
	return out
}

// SortedFacets returns the constrained facets in a stable order.
func (f Filter) SortedFacets() []Facet {
	out := make([]Facet, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
