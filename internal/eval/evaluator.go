package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freeeve/chessgraph/annotator/internal/rules"
)

var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineTimeout     = errors.New("engine timeout")
	ErrNoLegalMoves      = errors.New("no legal moves")
	ErrInvalidOptions    = errors.New("invalid engine options")

	// ErrInvalidPosition is shared with the rules package so callers can
	// test for either with errors.Is.
	ErrInvalidPosition = rules.ErrInvalidPosition
)

// MateScore is the pawn value reported for a forced mate. Nearer mates
// score slightly higher: a mate in n is worth MateScore - n/10.
const MateScore = 100.0

const (
	MinSkill = 0
	MaxSkill = 20
)

// Result is an engine evaluation. Score and MateIn are from White's point
// of view: positive favours White.
type Result struct {
	Score    float64 `json:"evaluation"`
	Depth    int     `json:"depth"`
	IsMate   bool    `json:"is_mate"`
	MateIn   *int    `json:"mate_in"`
	BestMove string  `json:"best_move,omitempty"`
}

// Options tune a single evaluation. Zero Depth means the evaluator default.
type Options struct {
	Depth int
}

// BestMoveOptions select engine strength for a best-move query.
type BestMoveOptions struct {
	SkillLevel int           // 0-20
	MoveTime   time.Duration // > 0
}

func (o BestMoveOptions) validate() error {
	if o.SkillLevel < MinSkill || o.SkillLevel > MaxSkill {
		return fmt.Errorf("%w: skill level %d outside %d..%d", ErrInvalidOptions, o.SkillLevel, MinSkill, MaxSkill)
	}
	if o.MoveTime <= 0 {
		return fmt.Errorf("%w: move time must be positive", ErrInvalidOptions)
	}
	return nil
}

// BestMoveResult is the engine's chosen move with its evaluation.
type BestMoveResult struct {
	Move   string  `json:"move"`
	Score  float64 `json:"evaluation"`
	IsMate bool    `json:"is_mate"`
	MateIn *int    `json:"mate_in"`
}

// Evaluator evaluates positions given as FEN. Implementations must bound
// every call in time and must not retry.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, opts Options) (Result, error)
	BestMove(ctx context.Context, fen string, opts BestMoveOptions) (BestMoveResult, error)
}

// mateScore converts a White-relative mate distance to pawns.
func mateScore(mateIn int, whiteWins bool) float64 {
	n := mateIn
	if n < 0 {
		n = -n
	}
	score := MateScore - float64(n)/10
	if !whiteWins {
		score = -score
	}
	return score
}

// terminalResult evaluates a position with no legal moves without the
// engine: checkmate is a lost mate-in-0 for the side to move, stalemate is
// level.
func terminalResult(fen string, mated bool) Result {
	if !mated {
		return Result{}
	}
	zero := 0
	whiteWins := rules.Position(fen).SideToMove() == rules.Black
	return Result{
		Score:  mateScore(0, whiteWins),
		IsMate: true,
		MateIn: &zero,
	}
}
