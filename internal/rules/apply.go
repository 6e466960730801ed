package rules

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/notnil/chess"
)

// MoveResult is the board after a single move plus its game status.
type MoveResult struct {
	FEN         string   `json:"fen"`
	IsCheck     bool     `json:"is_check"`
	IsCheckmate bool     `json:"is_checkmate"`
	IsStalemate bool     `json:"is_stalemate"`
	IsGameOver  bool     `json:"is_game_over"`
	LegalMoves  []string `json:"legal_moves"`
}

// ApplyMove plays one coordinate-notation move on fen. Game-over covers
// checkmate, stalemate and the automatic draw rules (insufficient material,
// seventy-five moves).
func ApplyMove(fen, move string) (MoveResult, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return MoveResult{}, err
	}

	move = strings.ToLower(strings.TrimSpace(move))
	var played *chess.Move
	for _, m := range game.ValidMoves() {
		if m.String() == move {
			played = m
			break
		}
	}
	if played == nil {
		return MoveResult{}, fmt.Errorf("%w: %q in %s", ErrIllegalMove, move, fen)
	}
	if err := game.Move(played); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %q: %v", ErrIllegalMove, move, err)
	}

	method := game.Method()
	return MoveResult{
		FEN:         game.Position().String(),
		IsCheck:     played.HasTag(chess.Check),
		IsCheckmate: method == chess.Checkmate,
		IsStalemate: method == chess.Stalemate,
		IsGameOver:  game.Outcome() != chess.NoOutcome,
		LegalMoves:  uciMoves(game.ValidMoves()),
	}, nil
}

// GameState is a fresh game from the standard starting position.
type GameState struct {
	ID         string   `json:"id"`
	FEN        string   `json:"fen"`
	LegalMoves []string `json:"legal_moves"`
	IsGameOver bool     `json:"is_game_over"`
}

// NewGameState starts a new game with a random id.
func NewGameState() GameState {
	game := chess.NewGame()
	return GameState{
		ID:         uuid.NewString(),
		FEN:        game.Position().String(),
		LegalMoves: uciMoves(game.ValidMoves()),
	}
}

func gameFromFEN(fen string) (*chess.Game, error) {
	if err := checkKings(fen); err != nil {
		return nil, err
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPosition, fen, err)
	}
	return chess.NewGame(opt), nil
}

func uciMoves(moves []*chess.Move) []string {
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.String())
	}
	return out
}
