package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/vectordb"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from the indexed course material",
	Long: `Retrieves passages with the chosen mode and generates a cited answer.
With --retrieve-only the passages are printed without calling the model.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("mode", string(retrieval.ModeSemantic), "retrieval mode: semantic or lexical")
	queryCmd.Flags().Int("k", 0, "number of passages (default retrieval.top_k)")
	queryCmd.Flags().StringArray("filter", nil, "facet=value restriction, repeatable (course, lecture, semester)")
	queryCmd.Flags().Bool("expand", false, "expand the query into variants (semantic only)")
	queryCmd.Flags().Bool("retrieve-only", false, "print retrieved passages without generating an answer")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	modeStr, _ := cmd.Flags().GetString("mode")
	k, _ := cmd.Flags().GetInt("k")
	filterPairs, _ := cmd.Flags().GetStringArray("filter")
	expand, _ := cmd.Flags().GetBool("expand")
	retrieveOnly, _ := cmd.Flags().GetBool("retrieve-only")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	mode, err := retrieval.ParseMode(modeStr)
	if err != nil {
		return err
	}
	filter, err := parseFilters(filterPairs)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("k") {
		k = cfg.Retrieval.TopK
	}
	if !cmd.Flags().Changed("expand") {
		expand = cfg.Retrieval.QueryExpansion
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	q := retrieval.Query{Text: args[0], Mode: mode, Filter: filter, Expand: expand, K: k}

	if retrieveOnly {
		docs, err := eng.pipeline.Retrieve(ctx, q)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(queryDocumentsJSON(docs))
		}
		fmt.Print(vectordb.FormatDocuments(docs))
		return nil
	}

	ans, err := eng.pipeline.ProcessQuery(ctx, q)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(ans)
	}
	fmt.Println(ans.Text)
	return nil
}

type queryDocumentJSON struct {
	Rank     int                `json:"rank"`
	Metadata retrieval.Metadata `json:"metadata"`
	Summary  string             `json:"summary"`
}

func queryDocumentsJSON(docs []retrieval.Document) []queryDocumentJSON {
	out := make([]queryDocumentJSON, len(docs))
	for i, d := range docs {
		out[i] = queryDocumentJSON{Rank: i + 1, Metadata: d.Metadata, Summary: truncate(d.Content, 200)}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
