package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/coursebot/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "coursebot",
	Short: "Question answering over lecture material",
	Long: `coursebot indexes lecture slides and notes into a vector store and a
keyword index, then answers student questions from the retrieved passages
with page-level citations. It serves an HTTP API with a study mode that
compares both retrieval methods, and an MCP server for AI agents.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
