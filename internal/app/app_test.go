package app

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessgraph/annotator/internal/config"
	"github.com/freeeve/chessgraph/annotator/internal/eval"
	"github.com/freeeve/chessgraph/annotator/internal/store"
)

type constConn struct{ searches *int64 }

func (c constConn) Search(string, eval.SearchRequest) (eval.SearchResult, error) {
	atomic.AddInt64(c.searches, 1)
	return eval.SearchResult{Score: 25, Depth: 8, BestMove: "e2e4"}, nil
}

func (constConn) Close() {}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "annotator.db")
	cfg.Engine.CacheFile = filepath.Join(dir, "evals.csv.zst")
	cfg.Engine.Depth = 8
	return cfg
}

func TestApp_AnnotateAndReuseCache(t *testing.T) {
	cfg := testConfig(t)
	var searches int64
	dial := func() (eval.Conn, error) { return constConn{searches: &searches}, nil }
	ctx := context.Background()

	a, err := NewWithDialer(cfg, zerolog.Nop(), dial)
	require.NoError(t, err)
	require.NoError(t, a.Store.CreateGame(ctx, store.Game{ID: "g1", UserID: "alice", PGN: "1. e4 e5 2. Nf3"}))
	require.NoError(t, a.Store.CreateGame(ctx, store.Game{ID: "g2", UserID: "alice", PGN: "1. e4 e5 2. Nf3"}))

	set, err := a.Service.AnnotateGame(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, set.TotalMoves)
	// Four distinct positions: the start and one after each ply.
	assert.Equal(t, int64(4), atomic.LoadInt64(&searches))

	stats := a.Stats()
	assert.Contains(t, stats, "engine")
	assert.Contains(t, stats, "cache")
	require.NoError(t, a.Close())

	// The reopened app answers the identical game from the saved cache.
	b, err := NewWithDialer(cfg, zerolog.Nop(), dial)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 4, b.Cache.Len())

	set2, err := b.Service.AnnotateGame(ctx, "g2", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(4), atomic.LoadInt64(&searches))
	for i := range set.Annotations {
		assert.Equal(t, set.Annotations[i].EvalChange, set2.Annotations[i].EvalChange)
	}
}

func TestApp_Ingest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingest.Owner = "carol"
	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	w, err := a.Ingest("")
	require.NoError(t, err)
	require.NotNil(t, w)

	_, err = a.Ingest("dave")
	require.NoError(t, err)
}

func TestApp_IngestWithoutOwner(t *testing.T) {
	a, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Ingest("")
	assert.Error(t, err)
}
