package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/llm"
	"github.com/ziadkadry99/coursebot/internal/metrics"
)

// ExpectedVariants is how many rephrasings the expansion prompt asks for.
const ExpectedVariants = 4

const expansionTemplate = `You are a precise AI language model assistant. Your task is to generate exactly 4 different variations of the given user query without adding or expanding its meaning.
- DO NOT add additional context.
- DO NOT assume or infer missing information.
- DO NOT include location, specific institutions, or implicit assumptions.
- Maintain the same length as the original query.
- Respond with ONLY the 4 reformulated queries, each on a separate line, with NO extra text.

Original query: {{.query}}`

// QueryExpander produces alternative phrasings of a query.
type QueryExpander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// Expander asks the chat model for rephrasings of a query.
type Expander struct {
	provider llm.Provider
	prompt   prompts.PromptTemplate
	log      *zap.Logger
}

// NewExpander creates an expander backed by provider.
func NewExpander(provider llm.Provider, log *zap.Logger) *Expander {
	if log == nil {
		log = zap.NewNop()
	}
	return &Expander{
		provider: provider,
		prompt:   prompts.NewPromptTemplate(expansionTemplate, []string{"query"}),
		log:      log,
	}
}

// Expand returns the model's variants, one per non-blank output line. The
// count is not enforced; a deviation from ExpectedVariants is only logged.
func (e *Expander) Expand(ctx context.Context, query string) ([]string, error) {
	text, err := e.prompt.Format(map[string]any{"query": query})
	if err != nil {
		return nil, fmt.Errorf("render expansion prompt: %w", err)
	}

	req := llm.Prompt("expand", text)
	req.Temperature = 0
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}

	variants := splitLines(resp.Content)
	metrics.ExpansionVariants.Observe(float64(len(variants)))
	if len(variants) != ExpectedVariants {
		e.log.Warn("unexpected number of query variants",
			zap.Int("want", ExpectedVariants),
			zap.Int("got", len(variants)),
		)
	}
	return variants, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
