// Package mcp exposes course material search over the Model Context
// Protocol so agents can query the indexes directly.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Pipeline is the retrieval pipeline as the tools use it.
type Pipeline interface {
	ProcessQuery(ctx context.Context, q retrieval.Query) (retrieval.Answer, error)
	Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.Document, error)
}

// Server wraps an MCP server that exposes course material tools.
type Server struct {
	pipeline Pipeline
	defaultK int
	log      *zap.Logger
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server. defaultK applies when a call omits k.
func NewServer(pipeline Pipeline, defaultK int, log *zap.Logger) *Server {
	if defaultK <= 0 {
		defaultK = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		pipeline: pipeline,
		defaultK: defaultK,
		log:      log,
	}

	s.mcp = server.NewMCPServer(
		"coursebot",
		Version,
		server.WithToolCapabilities(false),
	)
	s.mcp.AddTool(searchTool, s.handleSearch)
	s.mcp.AddTool(askTool, s.handleAsk)

	return s
}

// Serve starts the MCP server on stdio. Stdout carries protocol messages;
// all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
