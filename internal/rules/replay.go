package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// Ply is one half-move of a replayed game.
type Ply struct {
	Index      int // 0-based half-move index
	MoveNumber int // 1-based, shared by a White/Black pair
	Color      Color
	SAN        string
	UCI        string
	Before     Position
	After      Position
}

// Replay walks the mainline of a PGN record from its starting position
// (the FEN tag, or the standard start) and returns one Ply per half-move in
// order. The board is advanced strictly sequentially; each Ply's After is
// the next Ply's Before.
//
// Unparseable records fail with ErrInvalidRecord, moves that are not legal
// in their position with ErrIllegalMove.
func Replay(text string) ([]Ply, error) {
	rec, err := parseRecord(text)
	if err != nil {
		return nil, err
	}

	startFEN := StartFEN
	if fen, ok := rec.tags["FEN"]; ok && strings.TrimSpace(fen) != "" {
		startFEN = fen
	}
	pos, err := State(startFEN)
	if err != nil {
		return nil, fmt.Errorf("%w: FEN tag: %v", ErrInvalidRecord, err)
	}

	plies := make([]Ply, 0, len(rec.moves))
	before := Position(pos.ToFEN())
	moveNumber := 1

	for i, token := range rec.moves {
		mv, err := legalSAN(pos, token)
		if err != nil {
			return nil, fmt.Errorf("%w: ply %d %q in %s: %v", ErrIllegalMove, i+1, token, before, err)
		}

		color := before.SideToMove()
		san := sanOf(pos, mv)
		uci := uciOf(mv)

		if err := pgn.ApplyMove(pos, mv); err != nil {
			return nil, fmt.Errorf("%w: ply %d %q: %v", ErrIllegalMove, i+1, token, err)
		}
		after := Position(pos.ToFEN())

		plies = append(plies, Ply{
			Index:      i,
			MoveNumber: moveNumber,
			Color:      color,
			SAN:        san,
			UCI:        uci,
			Before:     before,
			After:      after,
		})

		if color == Black {
			moveNumber++
		}
		before = after
	}
	return plies, nil
}

// legalSAN resolves a SAN token and confirms it is among the legal moves.
func legalSAN(pos *pgn.GameState, token string) (pgn.Mv, error) {
	san := strings.TrimRight(token, "+#")
	mv, err := pgn.ParseSAN(pos, san)
	if err != nil {
		return mv, err
	}
	for _, legal := range pgn.GenerateLegalMoves(pos) {
		if sameMove(legal, mv) {
			return legal, nil
		}
	}
	return mv, errors.New("not a legal move")
}
