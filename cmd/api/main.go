package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freeeve/chessgraph/annotator/internal/app"
	"github.com/freeeve/chessgraph/annotator/internal/config"
	"github.com/freeeve/chessgraph/annotator/internal/httpapi"
	"github.com/freeeve/chessgraph/annotator/internal/logx"
)

// loadConfig parses command line flags over the YAML and environment
// configuration.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("api", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "YAML config file")

		// Server
		addr = fs.String("addr", "", "listen address (overrides config)")
		db   = fs.String("db", "", "SQLite database path (overrides config)")

		// Stockfish
		stockfishPath = fs.String("stockfish", "", "path to Stockfish executable (overrides config)")
		evalWorkers   = fs.Int("eval-workers", 0, "number of Stockfish processes (0 = config)")
		evalDepth     = fs.Int("eval-depth", 0, "default search depth (0 = config)")

		// Ingest
		ingestDir = fs.String("ingest-dir", "", "directory to watch for PGN files (overrides config)")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *db != "" {
		cfg.DBPath = *db
	}
	if *stockfishPath != "" {
		cfg.Engine.Path = *stockfishPath
	}
	if *evalWorkers > 0 {
		cfg.Engine.Workers = *evalWorkers
	}
	if *evalDepth > 0 {
		cfg.Engine.Depth = *evalDepth
	}
	if *ingestDir != "" {
		cfg.Ingest.WatchDir = *ingestDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		bootLog := logx.NewLogger(logx.Options{Out: os.Stderr})
		bootLog.Fatal().Err(err).Msg("load config")
	}

	logger := logx.NewLogger(logx.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("start annotator")
	}
	logger.Info().
		Str("db", cfg.DBPath).
		Str("stockfish", cfg.Engine.Path).
		Int("workers", cfg.Engine.Workers).
		Int("depth", cfg.Engine.Depth).
		Msg("annotator ready")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(logger, a.Service, a.Cache, a.Stats),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // a single annotate call can run the engine for minutes
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	if cfg.Ingest.WatchDir != "" {
		worker, err := a.Ingest("")
		if err != nil {
			logger.Fatal().Err(err).Msg("create ingest worker")
		}
		go func() {
			if err := worker.Run(ctx); err != nil && err != context.Canceled {
				logger.Error().Err(err).Msg("ingest worker stopped")
			}
		}()
		logger.Info().
			Str("watch_dir", cfg.Ingest.WatchDir).
			Str("owner", cfg.Ingest.Owner).
			Msg("started ingest worker")
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	if err := a.Close(); err != nil {
		logger.Error().Err(err).Msg("close error")
	}
	logger.Info().Msg("shutdown complete")
}
