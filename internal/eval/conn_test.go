package eval

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessgraph/annotator/internal/rules"
)

// scriptedEngine speaks enough UCI for uciConn: fixed-depth searches report
// the requested depth, timed searches report depths 1 to 3.
const scriptedEngine = `#!/bin/sh
while read -r line; do
  case "$line" in
    "go depth "*)
      d=${line#go depth }
      echo "info depth $d seldepth $d score cp 31 nodes 1000 pv e2e4 e7e5"
      echo "bestmove e2e4 ponder e7e5"
      ;;
    go*)
      echo "info depth 1 score cp 10 nodes 20 pv d2d4"
      echo "info depth 2 score cp 18 nodes 80 pv d2d4 d7d5"
      echo "info depth 3 score cp 31 nodes 400 pv e2e4 e7e5"
      echo "bestmove e2e4"
      ;;
    quit)
      exit 0
      ;;
  esac
done
`

func scriptedDialer(t *testing.T) Dialer {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("scripted engine needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(scriptedEngine), 0755))
	return UCIDialer(path, 16, 1, 0)
}

func TestUCIConn_SearchDepth(t *testing.T) {
	conn, err := scriptedDialer(t)()
	require.NoError(t, err)
	defer conn.Close()

	res, err := conn.Search(rules.StartFEN, SearchRequest{Depth: 12, SkillLevel: MaxSkill})
	require.NoError(t, err)
	assert.Equal(t, SearchResult{Score: 31, Depth: 12, BestMove: "e2e4"}, res)
}

func TestUCIConn_SearchMoveTime(t *testing.T) {
	conn, err := scriptedDialer(t)()
	require.NoError(t, err)
	defer conn.Close()

	res, err := conn.Search(rules.StartFEN, SearchRequest{MoveTime: 50 * time.Millisecond, SkillLevel: 5})
	require.NoError(t, err)
	assert.Equal(t, SearchResult{Score: 31, Depth: 3, BestMove: "e2e4"}, res)

	// The same process serves the next search after the skill change.
	res, err = conn.Search(rules.StartFEN, SearchRequest{Depth: 8, SkillLevel: MaxSkill})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Depth)
}

func TestPool_UCIEngine(t *testing.T) {
	p, err := NewPool(PoolConfig{
		Dial:       scriptedDialer(t),
		Logger:     zerolog.Nop(),
		NumWorkers: 1,
		Depth:      12,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	res, err := p.Evaluate(ctx, rules.StartFEN, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 0.31, res.Score, 1e-9)
	assert.Equal(t, 12, res.Depth)

	best, err := p.BestMove(ctx, rules.StartFEN, BestMoveOptions{SkillLevel: 20, MoveTime: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", best.Move)
	assert.InDelta(t, 0.31, best.Score, 1e-9)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Spawned)
	assert.Zero(t, stats.Failures)
}
