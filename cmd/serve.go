package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/db"
	"github.com/ziadkadry99/coursebot/internal/server"
	"github.com/ziadkadry99/coursebot/internal/study"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, study sessions and chat websocket",
	Long:  `Starts the coursebot HTTP server with the query API, the retrieval study endpoints, the chat websocket and Prometheus metrics.`,
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

		var studies *study.Manager
		if cfg.Study.Enabled {
			if err := os.MkdirAll(filepath.Dir(cfg.StudyDB), 0o755); err != nil {
				return fmt.Errorf("creating study directory: %w", err)
			}
			database, err := db.Open(cfg.StudyDB)
			if err != nil {
				return fmt.Errorf("opening study database: %w", err)
			}
			defer database.Close()

			studies = study.NewManager(study.NewStore(database), eng.pipeline, study.Config{
				Tasks:  cfg.Study.Tasks,
				Seed:   cfg.Study.Seed,
				K:      cfg.Retrieval.TopK,
				Expand: cfg.Retrieval.QueryExpansion,
			}, log.Named("study"))
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		srv := server.New(server.Config{
			Port:     port,
			AllowAll: cfg.Server.AllowAllOrigins,
			DefaultK: cfg.Retrieval.TopK,
		}, eng.pipeline, eng.lexical, studies, log.Named("http"))

		go func() {
			<-ctx.Done()
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("shutdown", zap.Error(err))
			}
		}()

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
