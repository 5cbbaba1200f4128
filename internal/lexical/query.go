package lexical

import (
	"strings"
	"unicode"
)

// groupScale is the OR-group coordination factor: with 0.9, a passage
// matching more distinct query terms outranks one that matches fewer terms
// more often.
const groupScale = 0.9

// stopWords are dropped from queries. Single-character tokens are dropped
// as well.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "for": true, "from": true, "have": true,
	"if": true, "in": true, "is": true, "it": true, "may": true, "not": true,
	"of": true, "on": true, "or": true, "tbd": true, "that": true, "the": true,
	"this": true, "to": true, "us": true, "we": true, "when": true, "will": true,
	"with": true, "yet": true, "you": true, "your": true,
}

// tokenize lowercases s and splits it into runs of letters and digits.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// queryTerms returns the distinct searchable terms of a query, in order.
// Stop words are kept only when nothing else remains.
func queryTerms(q string) []string {
	var terms, stops []string
	seen := make(map[string]bool)
	for _, tok := range tokenize(q) {
		if len([]rune(tok)) < 2 || seen[tok] {
			continue
		}
		seen[tok] = true
		if stopWords[tok] {
			stops = append(stops, tok)
		} else {
			terms = append(terms, tok)
		}
	}
	if len(terms) == 0 {
		return stops
	}
	return terms
}

// quote renders a term as an FTS5 string literal.
func quote(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// orExpression ORs the quoted terms across every indexed column.
func orExpression(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = quote(t)
	}
	return strings.Join(quoted, " OR ")
}

// coordinate applies the OR-group bonus to a positive relevance score given
// how many of total terms matched.
func coordinate(score float64, matched, total int) float64 {
	if total == 0 {
		return score
	}
	m, n := float64(matched), float64(total)
	return score*(1-groupScale) + ((score+1)*m*m/(n*n))*groupScale
}
