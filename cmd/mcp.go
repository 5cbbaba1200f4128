package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mcpserver "github.com/ziadkadry99/coursebot/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing course material search and question answering tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := buildEngine(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer eng.Close()

		mcpserver.Version = Version
		log.Info("coursebot MCP server started on stdio", zap.Int("default_k", cfg.Retrieval.TopK))

		return mcpserver.NewServer(eng.pipeline, cfg.Retrieval.TopK, log.Named("mcp")).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
