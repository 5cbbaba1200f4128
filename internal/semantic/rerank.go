package semantic

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/ziadkadry99/coursebot/internal/llm"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// Reranker reorders candidates by relevance to the query. Implementations
// must return a permutation of a subset of the input.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []retrieval.Document) ([]retrieval.Document, error)
}

const rerankTemplate = `Rank the numbered passages below by how useful they are for answering the question.
Respond with ONLY the passage numbers, most relevant first, separated by commas. Omit passages that are irrelevant.

Question: {{.query}}

{{.passages}}`

var passageNumber = regexp.MustCompile(`\d+`)

// LLMReranker asks the chat model for a relevance ordering.
type LLMReranker struct {
	provider llm.Provider
	prompt   prompts.PromptTemplate
}

// NewLLMReranker creates a reranker backed by provider.
func NewLLMReranker(provider llm.Provider) *LLMReranker {
	return &LLMReranker{
		provider: provider,
		prompt:   prompts.NewPromptTemplate(rerankTemplate, []string{"query", "passages"}),
	}
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, docs []retrieval.Document) ([]retrieval.Document, error) {
	var sb strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, d.Content)
	}

	text, err := r.prompt.Format(map[string]any{"query": query, "passages": sb.String()})
	if err != nil {
		return nil, fmt.Errorf("render rerank prompt: %w", err)
	}

	resp, err := r.provider.Complete(ctx, llm.Prompt("rerank", text))
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	order := parseOrder(resp.Content, len(docs))
	if len(order) == 0 {
		return nil, fmt.Errorf("rerank: no passage numbers in response %q", resp.Content)
	}

	out := make([]retrieval.Document, 0, len(order))
	for _, idx := range order {
		out = append(out, docs[idx])
	}
	return out, nil
}

// parseOrder extracts distinct zero-based indexes in [0, n).
func parseOrder(s string, n int) []int {
	seen := make(map[int]bool)
	var order []int
	for _, m := range passageNumber.FindAllString(s, -1) {
		i, err := strconv.Atoi(m)
		if err != nil || i < 1 || i > n || seen[i-1] {
			continue
		}
		seen[i-1] = true
		order = append(order, i-1)
	}
	return order
}
