package lexical

import (
	"bufio"
	_ "embed"
	"strconv"
	"strings"
	"sync"

	"github.com/sajari/fuzzy"
)

// english_words.txt holds the most frequent words of the fuzzy package's
// sample English corpus as "word count" lines.
//
//go:embed english_words.txt
var englishWords string

// vocabWeight scales index counts so that course terms win over general
// English words at the same edit distance.
const vocabWeight = 10

var englishCounts = sync.OnceValue(func() map[string]int {
	counts := make(map[string]int, 10000)
	sc := bufio.NewScanner(strings.NewReader(englishWords))
	for sc.Scan() {
		word, n, ok := strings.Cut(sc.Text(), " ")
		if !ok {
			continue
		}
		if c, err := strconv.Atoi(n); err == nil {
			counts[word] = c
		}
	}
	return counts
})

// Speller corrects query words against general English and the index
// vocabulary. Words either model knows are left alone; unknown words are
// replaced by the most likely candidate within two edits.
type Speller struct {
	model *fuzzy.Model
}

// NewSpeller trains a speller on the English word list plus the given
// index word frequencies.
func NewSpeller(vocab map[string]int) *Speller {
	counts := make(map[string]int, len(englishCounts())+len(vocab))
	for w, n := range englishCounts() {
		counts[w] = n
	}
	for w, n := range vocab {
		counts[strings.ToLower(w)] += n * vocabWeight
	}

	model := fuzzy.NewModel()
	model.SetThreshold(0)
	model.SetDepth(2)
	for w, n := range counts {
		model.SetCount(w, n, true)
	}
	return &Speller{model: model}
}

// Correct returns the lowercased query with each unknown word replaced by
// its most likely spelling. Stop words and words with no candidate within
// two edits are kept.
func (s *Speller) Correct(query string) string {
	words := tokenize(query)
	if s == nil {
		return strings.Join(words, " ")
	}
	for i, w := range words {
		if stopWords[w] || len(w) < 3 {
			continue
		}
		if c := s.model.SpellCheck(w); c != "" {
			words[i] = c
		}
	}
	return strings.Join(words, " ")
}
