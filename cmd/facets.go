package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/coursebot/internal/lexical"
)

var facetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "List the courses, lectures and semesters available for filtering",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ix, err := lexical.Open(cfg.LexicalIndex)
		if err != nil {
			return fmt.Errorf("%w\nRun `coursebot index` first to build the indexes", err)
		}
		defer ix.Close()

		f, err := ix.Facets(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(f)
		}

		for _, c := range f.Courses {
			fmt.Println(c)
			for _, l := range f.Lectures[c] {
				fmt.Printf("  - %s\n", l)
			}
		}
		if len(f.Semesters) > 0 {
			fmt.Printf("\nSemesters: %s\n", strings.Join(f.Semesters, ", "))
		}
		return nil
	},
}

func init() {
	facetsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(facetsCmd)
}
