// Package app wires the annotator components from a Config.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessgraph/annotator/internal/annotate"
	"github.com/freeeve/chessgraph/annotator/internal/config"
	"github.com/freeeve/chessgraph/annotator/internal/eval"
	"github.com/freeeve/chessgraph/annotator/internal/ingest"
	"github.com/freeeve/chessgraph/annotator/internal/store"
)

// App holds the running components. Engine processes start on first use.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Store   store.Store
	Pool    *eval.Pool
	Cache   *eval.Cache
	Service *annotate.Service
}

// New opens the store and builds the engine pool, cache and annotation
// service.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	dial := eval.UCIDialer(cfg.Engine.Path, cfg.Engine.HashMB, cfg.Engine.Threads, cfg.Engine.Nice)
	return NewWithDialer(cfg, log, dial)
}

// NewWithDialer is New with a custom engine dialer.
func NewWithDialer(cfg *config.Config, log zerolog.Logger, dial eval.Dialer) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info().Str("path", cfg.DBPath).Msg("opened store")

	pool, err := eval.NewPool(eval.PoolConfig{
		Dial:       dial,
		Logger:     log.With().Str("component", "eval-pool").Logger(),
		NumWorkers: cfg.Engine.Workers,
		Depth:      cfg.Engine.Depth,
		Timeout:    cfg.Engine.Timeout,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create eval pool: %w", err)
	}

	cache := eval.NewCache(pool, cfg.Engine.Depth)
	if cfg.Engine.CacheFile != "" {
		n, err := cache.LoadFromFile(cfg.Engine.CacheFile)
		if err != nil {
			log.Warn().Err(err).Str("file", cfg.Engine.CacheFile).Msg("failed to load eval cache")
		} else {
			log.Info().Int("entries", n).Str("file", cfg.Engine.CacheFile).Msg("eval cache loaded")
		}
	}

	svc, err := annotate.NewService(annotate.Config{
		Store:           st,
		Evaluator:       cache,
		Logger:          log,
		PlyConcurrency:  cfg.Annotate.PlyConcurrency,
		GameConcurrency: cfg.Annotate.GameConcurrency,
		MaxBatchLimit:   cfg.Annotate.MaxBatchLimit,
	})
	if err != nil {
		pool.Close()
		st.Close()
		return nil, err
	}

	return &App{
		Config:  cfg,
		Log:     log,
		Store:   st,
		Pool:    pool,
		Cache:   cache,
		Service: svc,
	}, nil
}

// Ingest returns a PGN importer that assigns games to owner. An empty
// owner falls back to the configured ingest owner.
func (a *App) Ingest(owner string) (*ingest.Worker, error) {
	cfg := a.Config.Ingest
	if owner == "" {
		owner = cfg.Owner
	}
	return ingest.NewWorker(ingest.Config{
		WatchDir:     cfg.WatchDir,
		ProcessedDir: cfg.ProcessedDir,
		Owner:        owner,
		RatingMin:    cfg.RatingMin,
		PollInterval: cfg.PollInterval,
		Logger:       a.Log,
	}, a.Store)
}

// Stats reports engine and cache counters.
func (a *App) Stats() map[string]any {
	hits, misses := a.Cache.Stats()
	return map[string]any{
		"engine": a.Pool.Stats(),
		"cache": map[string]any{
			"entries": a.Cache.Len(),
			"hits":    hits,
			"misses":  misses,
		},
	}
}

// Close saves the eval cache when configured, stops idle engines and closes
// the store.
func (a *App) Close() error {
	if a.Config.Engine.CacheFile != "" {
		n, err := a.Cache.SaveToFile(a.Config.Engine.CacheFile)
		if err != nil {
			a.Log.Error().Err(err).Str("file", a.Config.Engine.CacheFile).Msg("failed to save eval cache")
		} else {
			a.Log.Info().Int("entries", n).Str("file", a.Config.Engine.CacheFile).Msg("eval cache saved")
		}
	}
	a.Pool.Close()
	return a.Store.Close()
}
