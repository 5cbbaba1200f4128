package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/vectordb"
)

// handleSearch returns the retrieved passages without generating an answer.
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, errResult := s.parseQuery(request)
	if errResult != nil {
		return errResult, nil
	}

	docs, err := s.pipeline.Retrieve(ctx, q)
	if err != nil {
		return s.toolError("search", err), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("No results found. The course material may not be indexed yet. Run `coursebot index` first."), nil
	}
	return mcp.NewToolResultText(vectordb.FormatDocuments(docs)), nil
}

// handleAsk runs the full pipeline and returns the answer.
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, errResult := s.parseQuery(request)
	if errResult != nil {
		return errResult, nil
	}

	ans, err := s.pipeline.ProcessQuery(ctx, q)
	if err != nil {
		return s.toolError("answer", err), nil
	}
	return mcp.NewToolResultText(formatAnswer(ans)), nil
}

func (s *Server) parseQuery(request mcp.CallToolRequest) (retrieval.Query, *mcp.CallToolResult) {
	text, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(text) == "" {
		return retrieval.Query{}, mcp.NewToolResultError("missing required parameter: query")
	}

	mode, err := retrieval.ParseMode(request.GetString("mode", string(retrieval.ModeSemantic)))
	if err != nil {
		return retrieval.Query{}, mcp.NewToolResultError(err.Error())
	}

	k := request.GetInt("k", s.defaultK)
	if k <= 0 {
		return retrieval.Query{}, mcp.NewToolResultError(retrieval.ErrInvalidK.Error())
	}

	filter := retrieval.Filter{}
	for _, f := range retrieval.Facets {
		if vals := request.GetStringSlice(string(f), nil); len(vals) > 0 {
			filter[f] = retrieval.OneOf(vals...)
		} else if v := request.GetString(string(f), ""); v != "" {
			filter[f] = retrieval.Scalar(v)
		}
	}

	return retrieval.Query{
		Text:   text,
		Mode:   mode,
		Filter: filter.Normalize(),
		Expand: request.GetBool("expand", false),
		K:      k,
	}, nil
}

// toolError reports a failure to the agent. Upstream and index details
// stay in the log.
func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	s.log.Warn("mcp tool failed", zap.String("op", op), zap.Error(err))
	switch {
	case errors.Is(err, retrieval.ErrInvalidMode), errors.Is(err, retrieval.ErrInvalidK), errors.Is(err, retrieval.ErrInvalidFilter):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, retrieval.ErrRetrievalDegraded):
		return mcp.NewToolResultError("The search service is temporarily unavailable. Please try again.")
	case errors.Is(err, retrieval.ErrMalformedAnswer):
		return mcp.NewToolResultError("The answer could not be generated. Please rephrase your question.")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s failed", op))
	}
}

func formatAnswer(ans retrieval.Answer) string {
	if len(ans.Citations) == 0 {
		return ans.Text
	}
	var sb strings.Builder
	sb.WriteString(ans.Text)
	sb.WriteString("\n\nCited pages:\n")
	for _, c := range ans.Citations {
		fmt.Fprintf(&sb, "- %s / %s, page %s\n", c.Course, c.Lecture, c.Page)
	}
	return sb.String()
}
