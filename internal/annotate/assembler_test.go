package annotate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessgraph/annotator/internal/eval"
	"github.com/freeeve/chessgraph/annotator/internal/rules"
)

const threePlies = "1. e4 e5 2. Nf3"

func replay(t *testing.T, pgn string) []rules.Ply {
	t.Helper()
	plies, err := rules.Replay(pgn)
	require.NoError(t, err)
	return plies
}

func TestAssembler_Annotations(t *testing.T) {
	plies := replay(t, threePlies)
	require.Len(t, plies, 3)

	ev := newFakeEvaluator()
	ev.scores[plies[0].Before.String()] = 0.2
	ev.scores[plies[0].After.String()] = 0.5
	ev.scores[plies[1].After.String()] = 0.45
	ev.scores[plies[2].After.String()] = -1.5
	ev.best[plies[0].Before.String()] = "e2e4"
	ev.best[plies[1].Before.String()] = "c7c5"

	anns, err := NewAssembler(ev, 10, 2).Assemble(context.Background(), "g1", plies)
	require.NoError(t, err)
	require.Len(t, anns, 3)

	first := anns[0]
	assert.Equal(t, "g1", first.GameID)
	assert.Equal(t, 0, first.Ply)
	assert.Equal(t, 1, first.MoveNumber)
	assert.Equal(t, "white", first.Color)
	assert.Equal(t, "e4", first.MoveSAN)
	assert.Equal(t, "e2e4", first.MoveUCI)
	assert.InDelta(t, 0.3, first.EvalChange, 1e-9)
	assert.Equal(t, string(Great), first.Classification)
	assert.True(t, first.IsBestMove)
	assert.False(t, first.IsBookMove)

	second := anns[1]
	assert.Equal(t, "black", second.Color)
	assert.Equal(t, 1, second.MoveNumber)
	assert.InDelta(t, 0.05, second.EvalChange, 1e-9)
	assert.Equal(t, string(Good), second.Classification)
	assert.False(t, second.IsBestMove)

	third := anns[2]
	assert.Equal(t, 2, third.MoveNumber)
	assert.InDelta(t, -1.95, third.EvalChange, 1e-9)
	assert.Equal(t, string(Mistake), third.Classification)
	assert.False(t, third.IsBestMove, "no best move reported for this position")

	for i := 1; i < len(anns); i++ {
		assert.Equal(t, anns[i-1].FENAfter, anns[i].FENBefore)
	}

	// Two evaluations per ply.
	assert.Equal(t, int64(6), ev.Calls())
}

func TestAssembler_OrderIndependentOfCompletion(t *testing.T) {
	plies := replay(t, "1. d4 d5 2. c4 e6 3. Nc3 Nf6 4. Bg5 Be7")
	ev := newFakeEvaluator()
	first := plies[0].Before.String()
	ev.delay = func(fen string) time.Duration {
		if fen == first {
			return 30 * time.Millisecond
		}
		return 0
	}

	anns, err := NewAssembler(ev, 0, 4).Assemble(context.Background(), "g1", plies)
	require.NoError(t, err)
	require.Len(t, anns, len(plies))
	for i, a := range anns {
		assert.Equal(t, i, a.Ply)
		assert.Equal(t, plies[i].SAN, a.MoveSAN)
	}
}

func TestAssembler_EngineFailureAbortsGame(t *testing.T) {
	plies := replay(t, threePlies)
	ev := newFakeEvaluator()
	ev.fail[plies[2].After.String()] = eval.ErrEngineTimeout

	anns, err := NewAssembler(ev, 0, 1).Assemble(context.Background(), "g1", plies)
	require.Error(t, err)
	assert.Nil(t, anns)
	assert.ErrorIs(t, err, eval.ErrEngineTimeout)

	var engineErr *EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, 2, engineErr.Ply)
}

func TestAssembler_NoPlies(t *testing.T) {
	ev := newFakeEvaluator()
	anns, err := NewAssembler(ev, 0, 2).Assemble(context.Background(), "g1", nil)
	require.NoError(t, err)
	assert.Empty(t, anns)
	assert.Zero(t, ev.Calls())
}
