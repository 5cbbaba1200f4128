package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/corpus"
	"github.com/ziadkadry99/coursebot/internal/lexical"
	"github.com/ziadkadry99/coursebot/internal/progress"
	"github.com/ziadkadry99/coursebot/internal/vectordb"
)

const indexBatchSize = 128

var indexCmd = &cobra.Command{
	Use:   "index [corpus-dir]",
	Short: "Build the vector store and keyword index from course material",
	Long: `Reads JSONL passage dumps, Markdown and plain-text notes from the corpus
directory and rebuilds both indexes. Course, semester and lecture are taken
from the record metadata or, for notes, from the directory layout
course/[semester/]lecture/file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.CorpusDir = args[0]
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	passages, err := corpus.Load(ctx, corpus.Config{
		WalkConfig: corpus.WalkConfig{
			Root:    cfg.CorpusDir,
			Include: cfg.Include,
			Exclude: cfg.Exclude,
		},
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
	})
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	if len(passages) == 0 {
		return fmt.Errorf("no passages found under %s", cfg.CorpusDir)
	}
	log.Info("corpus loaded", zap.String("dir", cfg.CorpusDir), zap.Int("passages", len(passages)))

	embedder, err := createEmbedderFromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	if err := removeIndexes(cfg.LexicalIndex, cfg.VectorDir); err != nil {
		return err
	}

	reporter := progress.NewReporter()
	if err := buildLexical(ctx, cfg.LexicalIndex, passages, reporter); err != nil {
		return err
	}

	store, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	if err := buildVectors(ctx, store, passages, reporter); err != nil {
		return err
	}
	if err := store.Persist(ctx, cfg.VectorDir); err != nil {
		return fmt.Errorf("persisting vector store: %w", err)
	}

	fmt.Printf("Indexed %d passages (vectors: %s, keywords: %s)\n", len(passages), cfg.VectorDir, cfg.LexicalIndex)
	return nil
}

// removeIndexes deletes previous index files so a rebuild never appends
// duplicates.
func removeIndexes(lexicalPath, vectorDir string) error {
	paths := []string{
		lexicalPath, lexicalPath + "-wal", lexicalPath + "-shm",
		filepath.Join(vectorDir, vectordb.FileName),
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing old index %s: %w", p, err)
		}
	}
	return nil
}

func buildLexical(ctx context.Context, path string, passages []corpus.Passage, reporter progress.Reporter) error {
	ix, err := lexical.Create(path)
	if err != nil {
		return err
	}
	defer ix.Close()

	reporter.Start(len(passages), "keyword index")
	defer reporter.Finish()
	for start := 0; start < len(passages); start += indexBatchSize {
		end := min(start+indexBatchSize, len(passages))
		batch := make([]lexical.Passage, 0, end-start)
		for _, p := range passages[start:end] {
			batch = append(batch, p.Lexical())
		}
		if err := ix.Add(ctx, batch); err != nil {
			return fmt.Errorf("adding passages %d-%d to keyword index: %w", start, end, err)
		}
		reporter.Update(end, passages[end-1].Source)
	}
	return nil
}

func buildVectors(ctx context.Context, store vectordb.VectorStore, passages []corpus.Passage, reporter progress.Reporter) error {
	reporter.Start(len(passages), "embeddings")
	defer reporter.Finish()
	for start := 0; start < len(passages); start += indexBatchSize {
		end := min(start+indexBatchSize, len(passages))
		batch := make([]vectordb.Passage, 0, end-start)
		for _, p := range passages[start:end] {
			batch = append(batch, p.Vector())
		}
		if err := store.AddPassages(ctx, batch); err != nil {
			return fmt.Errorf("adding passages %d-%d to vector store: %w", start, end, err)
		}
		reporter.Update(end, passages[end-1].Source)
	}
	return nil
}
