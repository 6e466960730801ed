// Package store persists games and their move annotations.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a game does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps failures of the underlying database.
	ErrPersistence = errors.New("persistence error")

	// ErrAlreadyAnalyzed is returned by CommitAnnotations when another writer
	// committed the game first. Nothing is written in that case.
	ErrAlreadyAnalyzed = errors.New("game already analyzed")
)

// Game is a recorded game owned by one user. PGN holds either a full PGN
// record or bare movetext.
type Game struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PGN       string    `json:"pgn"`
	Analyzed  bool      `json:"analyzed"`
	CreatedAt time.Time `json:"created_at"`
}

// MoveAnnotation is the analysis of one ply. EvalBefore/EvalAfter are in
// pawns from White's side; EvalChange is from the mover's side.
type MoveAnnotation struct {
	GameID         string  `json:"game_id"`
	Ply            int     `json:"ply"`
	MoveNumber     int     `json:"move_number"`
	MoveSAN        string  `json:"move_san"`
	MoveUCI        string  `json:"move_uci"`
	Color          string  `json:"color"`
	FENBefore      string  `json:"fen_before"`
	FENAfter       string  `json:"fen_after"`
	EvalBefore     float64 `json:"evaluation_before"`
	EvalAfter      float64 `json:"evaluation_after"`
	EvalChange     float64 `json:"evaluation_change"`
	Classification string  `json:"classification"`
	IsBestMove     bool    `json:"is_best_move"`
	IsBookMove     bool    `json:"is_book_move"`
}

// Store is the persistence collaborator of the annotation pipeline.
type Store interface {
	CreateGame(ctx context.Context, g Game) error
	GetGame(ctx context.Context, id string) (Game, error)
	SetAnalyzed(ctx context.Context, id string, analyzed bool) error

	// ListUnanalyzed returns up to limit games with analyzed=false, oldest
	// first. limit <= 0 returns all of them.
	ListUnanalyzed(ctx context.Context, limit int) ([]Game, error)

	// ListAnalyzed returns the ids of analyzed games, oldest first.
	ListAnalyzed(ctx context.Context) ([]string, error)

	// InsertAnnotations writes all rows or none.
	InsertAnnotations(ctx context.Context, gameID string, anns []MoveAnnotation) error

	// ListAnnotations returns a game's rows ordered by move number and ply.
	ListAnnotations(ctx context.Context, gameID string) ([]MoveAnnotation, error)

	// CommitAnnotations inserts all rows and flips analyzed from false to
	// true atomically. If the game is already analyzed nothing is written
	// and ErrAlreadyAnalyzed is returned.
	CommitAnnotations(ctx context.Context, gameID string, anns []MoveAnnotation) error

	Close() error
}
