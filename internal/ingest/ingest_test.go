package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessgraph/annotator/internal/rules"
	"github.com/freeeve/chessgraph/annotator/internal/store"
)

const twoGames = `[Event "Club"]
[Site "?"]
[Date "2024.01.01"]
[Round "1"]
[White "Alice"]
[Black "Bob"]
[Result "1-0"]
[WhiteElo "2100"]
[BlackElo "1900"]

1. e4 e5 2. Bc4 Nc6 3. Qh5 Nf6 4. Qxf7# 1-0

[Event "Club"]
[Site "?"]
[Date "2024.01.02"]
[Round "2"]
[White "Carol"]
[Black "Dave"]
[Result "1/2-1/2"]
[WhiteElo "2200"]
[BlackElo "2150"]

1. d4 d5 2. c4 e6 1/2-1/2
`

func newWorker(t *testing.T, cfg Config) (*Worker, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	cfg.Owner = "alice"
	cfg.Logger = zerolog.Nop()
	w, err := NewWorker(cfg, st)
	require.NoError(t, err)
	return w, st
}

func plyCounts(t *testing.T, st store.Store, ids []string) []int {
	t.Helper()
	var counts []int
	for _, id := range ids {
		g, err := st.GetGame(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "alice", g.UserID)
		assert.False(t, g.Analyzed)
		plies, err := rules.Replay(g.PGN)
		require.NoError(t, err, g.PGN)
		counts = append(counts, len(plies))
	}
	return counts
}

func TestImportFile(t *testing.T) {
	w, st := newWorker(t, Config{})
	path := filepath.Join(t.TempDir(), "games.pgn")
	require.NoError(t, os.WriteFile(path, []byte(twoGames), 0644))

	ids, err := w.ImportFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, []int{7, 4}, plyCounts(t, st, ids))
}

func TestImportFile_Zstd(t *testing.T) {
	w, st := newWorker(t, Config{})
	path := filepath.Join(t.TempDir(), "games.pgn.zst")

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte(twoGames), nil)
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(path, compressed, 0644))

	ids, err := w.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 4}, plyCounts(t, st, ids))
}

func TestImport_RatingFilter(t *testing.T) {
	w, _ := newWorker(t, Config{RatingMin: 2000})

	f, err := os.CreateTemp(t.TempDir(), "*.pgn")
	require.NoError(t, err)
	_, err = f.WriteString(twoGames)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ids, err := w.ImportFile(context.Background(), f.Name())
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestProcessNewFiles(t *testing.T) {
	dir := t.TempDir()
	w, st := newWorker(t, Config{WatchDir: dir})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pgn"), []byte(twoGames), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0644))

	n, err := w.ProcessNewFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = os.Stat(filepath.Join(dir, "processed", "a.pgn"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)

	games, err := st.ListUnanalyzed(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, games, 2)

	_, err = os.Stat(filepath.Join(dir, "a.pgn"))
	assert.True(t, os.IsNotExist(err), "imported file left in watch dir")

	for i := 0; i < 3; i++ {
		n, err = w.ProcessNewFiles(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	games, err = st.ListUnanalyzed(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, games, 2)
}

func TestImport_TrailingBlankLines(t *testing.T) {
	w, st := newWorker(t, Config{})

	ids, skipped, err := w.Import(context.Background(), strings.NewReader(twoGames+"\n\n\n"))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, []int{7, 4}, plyCounts(t, st, ids))
}

func TestImport_MalformedGame(t *testing.T) {
	w, st := newWorker(t, Config{})
	pgn := twoGames + `
[Event "Broken"]
[Result "*"]

1. e4 e5 2. Ke3 *
`
	ids, _, err := w.Import(context.Background(), strings.NewReader(pgn))
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	// Games before the broken one are kept.
	assert.Equal(t, []int{7, 4}, plyCounts(t, st, ids))
}

func TestIsPGNFile(t *testing.T) {
	tests := map[string]bool{
		"games.pgn":     true,
		"games.pgn.zst": true,
		"games.zst":     false,
		"games.txt":     false,
	}
	for name, want := range tests {
		if got := isPGNFile(name); got != want {
			t.Errorf("isPGNFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewWorker_RequiresOwner(t *testing.T) {
	_, err := NewWorker(Config{}, store.NewMemStore())
	assert.Error(t, err)
}
