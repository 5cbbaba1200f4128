// Package answer turns retrieved course passages into a cited answer with a
// chat model and validates what the model returns.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/llm"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// Refusal is the sentence the model is told to answer with when the context
// does not help.
const Refusal = "I could not find any helpful information in the database."

const synthesisTemplate = `You are a helpful assistant for students. Based on the following context, answer the query concisely and provide references to ALL the sources you used.
You must analyze the entire provided context and synthesize an answer using all relevant information. If the context includes multiple fragments, you should combine them into a complete answer rather than ignoring short segments.

- The references **must** be listed in their original format as provided in the metadata, except the semester.
- If multiple sources were used, list them all exactly as shown in the metadata.
- Do not replace sources with 'Provided context' or any other generalization.
- Use the **exact** pages, course name and lecture name from the metadata.
- Only include course name, lecture name and pages for the sources!

If you do not find useful or relevant information in the provided context, **DO NOT** make up an answer.
Simply respond with: '` + Refusal + `'

Example:
**Context:**
- 'Neural networks are widely used in deep learning. (Source: {'course': 'Machine Learning', 'lecture': 'Neural Networks', 'semester': 'WiSe 2023', 'page': '10-12', 'header': ''})'
- 'Backpropagation is a key algorithm for training deep neural networks. (Source: {'course': 'Machine Learning', 'lecture': 'Deep Learning Fundamentals', 'semester': 'WiSe 2023', 'page': '30-42', 'header': ''})'

**Query:**
'What is backpropagation?'

**Answer:**
'Backpropagation is a key algorithm for training deep neural networks by adjusting weights using gradient descent.'

**Sources:**
- Pages: 30-42, Course: Machine Learning, Lecture: Deep Learning Fundamentals

---

**Context:**
{{.context}}

**Query:**
{{.query}}`

// Synthesizer generates answers grounded in retrieved documents.
type Synthesizer struct {
	provider llm.Provider
	prompt   prompts.PromptTemplate
	strict   bool
	log      *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithStrictCitations rejects answers that are neither a refusal nor cite at
// least one source.
func WithStrictCitations() Option {
	return func(s *Synthesizer) { s.strict = true }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) { s.log = l }
}

// NewSynthesizer creates a synthesizer backed by provider.
func NewSynthesizer(provider llm.Provider, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		provider: provider,
		prompt:   prompts.NewPromptTemplate(synthesisTemplate, []string{"context", "query"}),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate answers query from docs. With no documents it returns
// retrieval.NoDocumentsAnswer without calling the model.
func (s *Synthesizer) Generate(ctx context.Context, query string, docs []retrieval.Document) (retrieval.Answer, error) {
	if len(docs) == 0 {
		return retrieval.Answer{Text: retrieval.NoDocumentsAnswer, NoAnswer: true}, nil
	}

	text, err := s.prompt.Format(map[string]any{
		"context": FormatContext(docs),
		"query":   query,
	})
	if err != nil {
		return retrieval.Answer{}, fmt.Errorf("render answer prompt: %w", err)
	}

	req := llm.Prompt("answer", text)
	req.Temperature = 0
	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return retrieval.Answer{}, fmt.Errorf("complete answer: %w", err)
	}

	ans, err := Validate(resp.Content, s.strict)
	if err != nil {
		s.log.Warn("model answer rejected", zap.Error(err), zap.Int("length", len(resp.Content)))
		return retrieval.Answer{}, err
	}
	s.log.Debug("answer generated",
		zap.Int("documents", len(docs)),
		zap.Int("citations", len(ans.Citations)),
		zap.Bool("no_answer", ans.NoAnswer),
	)
	return ans, nil
}

// FormatContext renders one line per document in the order given.
func FormatContext(docs []retrieval.Document) string {
	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = fmt.Sprintf("- %s (Source: %s)", d.Content, d.Metadata)
	}
	return strings.Join(lines, "\n")
}
