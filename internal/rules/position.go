// Package rules wraps the chess rules libraries: replaying recorded games,
// validating positions and applying single moves.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

var (
	ErrInvalidRecord   = errors.New("invalid game record")
	ErrIllegalMove     = errors.New("illegal move")
	ErrInvalidPosition = errors.New("invalid position")
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is a complete board state in FEN form. Values are never mutated;
// replaying a move produces a new Position.
type Position string

func (p Position) String() string { return string(p) }

// SideToMove reports the colour to move in p.
func (p Position) SideToMove() Color {
	fields := strings.Fields(string(p))
	if len(fields) > 1 && fields[1] == "b" {
		return Black
	}
	return White
}

// Color is the side making a move.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// State parses fen into a mutable board. Callers own the returned value.
func State(fen string) (*pgn.GameState, error) {
	if strings.TrimSpace(fen) == "" {
		return nil, fmt.Errorf("%w: empty FEN", ErrInvalidPosition)
	}
	if err := checkKings(fen); err != nil {
		return nil, err
	}
	gs, err := pgn.NewGame(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPosition, fen, err)
	}
	if gs == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPosition, fen)
	}
	return gs, nil
}

// checkKings requires exactly one king per side; the board parser accepts
// any placement.
func checkKings(fen string) error {
	placement, _, _ := strings.Cut(strings.TrimSpace(fen), " ")
	white, black := strings.Count(placement, "K"), strings.Count(placement, "k")
	if white != 1 || black != 1 {
		return fmt.Errorf("%w: %q: want one king per side, got %d white and %d black",
			ErrInvalidPosition, fen, white, black)
	}
	return nil
}

// Key returns the packed position key for fen. Positions that differ only
// in move clocks share a key.
func Key(fen string) (string, error) {
	gs, err := State(fen)
	if err != nil {
		return "", err
	}
	return gs.Pack().String(), nil
}

// Terminal reports whether the side to move has no legal moves, and if so
// whether it is checkmated (otherwise stalemated).
func Terminal(fen string) (over, mated bool, err error) {
	gs, err := State(fen)
	if err != nil {
		return false, false, err
	}
	if len(pgn.GenerateLegalMoves(gs)) > 0 {
		return false, false, nil
	}
	return true, gs.IsInCheck(), nil
}
