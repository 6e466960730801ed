// Package ingest imports PGN files into the game store, either on demand or
// by watching a folder.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessgraph/annotator/internal/store"
)

// Config configures the importer.
type Config struct {
	WatchDir     string         // Directory to watch for PGN files
	ProcessedDir string         // Directory to move processed files to
	Owner        string         // User that owns imported games
	RatingMin    int            // Skip games where either player is rated below this (0 = no filter)
	PollInterval time.Duration  // How often to check for new files
	Logger       zerolog.Logger // Logger
}

// Worker imports PGN files as unanalyzed games.
type Worker struct {
	cfg Config
	st  store.Store
	log zerolog.Logger
}

// NewWorker creates an importer. Watching is only available when WatchDir
// is set.
func NewWorker(cfg Config, st store.Store) (*Worker, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("ingest owner required")
	}
	if cfg.WatchDir != "" && cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	if cfg.WatchDir != "" {
		if err := os.MkdirAll(cfg.WatchDir, 0755); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cfg.ProcessedDir, 0755); err != nil {
			return nil, err
		}
	}

	return &Worker{
		cfg: cfg,
		st:  st,
		log: cfg.Logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// Run polls the watch directory until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.WatchDir == "" {
		return fmt.Errorf("no watch directory configured")
	}
	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Str("owner", w.cfg.Owner).
		Msg("ingest worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessNewFiles(ctx); err != nil {
				w.log.Warn().Err(err).Msg("process files failed")
			}
		}
	}
}

// ProcessNewFiles imports every PGN file in the watch directory, in name
// order, and moves each imported file to the processed directory. It
// returns the number of games imported.
func (w *Worker) ProcessNewFiles(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		return 0, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && isPGNFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return 0, nil
	}
	sort.Strings(files)
	w.log.Info().Int("files", len(files)).Msg("found PGN files")

	total := 0
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		src := filepath.Join(w.cfg.WatchDir, name)
		ids, err := w.ImportFile(ctx, src)
		total += len(ids)
		if err != nil {
			w.log.Error().Err(err).Str("file", name).Msg("ingest failed")
			continue
		}
		if err := os.Rename(src, filepath.Join(w.cfg.ProcessedDir, name)); err != nil {
			w.log.Warn().Err(err).Str("file", name).Msg("move to processed failed")
		}
	}
	return total, nil
}

// ImportFile stores every game of a .pgn or .pgn.zst file and returns the
// new game ids. Games imported before an error are kept.
func (w *Worker) ImportFile(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	start := time.Now()
	ids, skipped, err := w.Import(ctx, r)
	w.log.Info().
		Str("file", filepath.Base(path)).
		Int("games", len(ids)).
		Int("skipped", skipped).
		Dur("elapsed", time.Since(start)).
		Msg("file ingest complete")
	return ids, err
}

// Import reads PGN games from r and stores them. It returns the new ids
// and the number of games skipped by the rating filter.
func (w *Worker) Import(ctx context.Context, r io.Reader) (ids []string, skipped int, err error) {
	scanner := chess.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return ids, skipped, err
		}
		game := scanner.Next()
		if len(game.TagPairs()) == 0 && len(game.Moves()) == 0 {
			// trailing blank lines
			continue
		}
		if !w.ratingOK(game) {
			skipped++
			continue
		}

		id := uuid.NewString()
		err := w.st.CreateGame(ctx, store.Game{
			ID:     id,
			UserID: w.cfg.Owner,
			PGN:    game.String(),
		})
		if err != nil {
			return ids, skipped, err
		}
		ids = append(ids, id)
	}
	// The scanner reports io.EOF at a clean end of input.
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return ids, skipped, fmt.Errorf("read PGN: %w", err)
	}
	return ids, skipped, nil
}

func (w *Worker) ratingOK(game *chess.Game) bool {
	if w.cfg.RatingMin <= 0 {
		return true
	}
	return rating(game, "WhiteElo") >= w.cfg.RatingMin && rating(game, "BlackElo") >= w.cfg.RatingMin
}

func rating(game *chess.Game, tag string) int {
	pair := game.GetTagPair(tag)
	if pair == nil {
		return 0
	}
	return parseRating(pair.Value)
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		base := name[:len(name)-4]
		return filepath.Ext(base) == ".pgn"
	}
	return false
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}
