package annotate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessgraph/annotator/internal/eval"
	"github.com/freeeve/chessgraph/annotator/internal/rules"
	"github.com/freeeve/chessgraph/annotator/internal/store"
)

var (
	// ErrForbidden is returned when the requester does not own the game.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidLimit is returned for a batch limit outside 1..MaxBatchLimit.
	ErrInvalidLimit = errors.New("invalid batch limit")
)

// AnnotationSet is the complete, ordered analysis of one game.
type AnnotationSet struct {
	GameID      string                 `json:"game_id"`
	TotalMoves  int                    `json:"total_moves"`
	Annotations []store.MoveAnnotation `json:"annotations"`
}

// BatchResult lists the games a batch annotated successfully.
type BatchResult struct {
	ProcessedGames int      `json:"processed_games"`
	GameIDs        []string `json:"game_ids"`
}

// Config configures the annotation service.
type Config struct {
	Store     store.Store
	Evaluator eval.Evaluator
	Logger    zerolog.Logger

	Depth           int // search depth per position, 0 for the evaluator default
	PlyConcurrency  int // plies evaluated at once within a game (default 2)
	GameConcurrency int // games annotated at once within a batch (default 1)
	MaxBatchLimit   int // largest accepted batch limit (default 50)
}

// Service runs the annotation pipeline.
type Service struct {
	cfg       Config
	store     store.Store
	assembler *Assembler
	log       zerolog.Logger

	mu    sync.Mutex
	locks map[string]*gameLock
}

type gameLock struct {
	sync.Mutex
	refs int
}

// NewService creates an annotation service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator required")
	}
	if cfg.PlyConcurrency == 0 {
		cfg.PlyConcurrency = 2
	}
	if cfg.GameConcurrency == 0 {
		cfg.GameConcurrency = 1
	}
	if cfg.MaxBatchLimit == 0 {
		cfg.MaxBatchLimit = 50
	}

	return &Service{
		cfg:       cfg,
		store:     cfg.Store,
		assembler: NewAssembler(cfg.Evaluator, cfg.Depth, cfg.PlyConcurrency),
		log:       cfg.Logger.With().Str("component", "annotate").Logger(),
		locks:     make(map[string]*gameLock),
	}, nil
}

// lock serializes work on one game and returns its unlock function.
func (s *Service) lock(gameID string) func() {
	s.mu.Lock()
	l, ok := s.locks[gameID]
	if !ok {
		l = &gameLock{}
		s.locks[gameID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, gameID)
		}
		s.mu.Unlock()
	}
}

// load fetches a game and checks that requester owns it.
func (s *Service) load(ctx context.Context, gameID, requester string) (store.Game, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return store.Game{}, err
	}
	if g.UserID != requester {
		return store.Game{}, fmt.Errorf("game %s: %w", gameID, ErrForbidden)
	}
	return g, nil
}

// AnnotateGame returns the annotation set of a game, computing and
// committing it on first use. Once a game is analyzed the stored set is
// returned without engine calls or writes.
func (s *Service) AnnotateGame(ctx context.Context, gameID, requester string) (*AnnotationSet, error) {
	unlock := s.lock(gameID)
	defer unlock()

	g, err := s.load(ctx, gameID, requester)
	if err != nil {
		return nil, err
	}
	if g.Analyzed {
		return s.stored(ctx, gameID)
	}

	start := time.Now()
	plies, err := rules.Replay(g.PGN)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}

	anns, err := s.assembler.Assemble(ctx, gameID, plies)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}

	if err := s.store.CommitAnnotations(ctx, gameID, anns); err != nil {
		if errors.Is(err, store.ErrAlreadyAnalyzed) {
			s.log.Info().Str("game_id", gameID).Msg("game committed by another writer")
			return s.stored(ctx, gameID)
		}
		return nil, err
	}

	s.log.Info().
		Str("game_id", gameID).
		Int("plies", len(anns)).
		Dur("dur", time.Since(start)).
		Msg("game annotated")

	return &AnnotationSet{GameID: gameID, TotalMoves: len(anns), Annotations: anns}, nil
}

// GetAnnotations returns the stored annotations of a game. A game that has
// not been analyzed yet has an empty set.
func (s *Service) GetAnnotations(ctx context.Context, gameID, requester string) (*AnnotationSet, error) {
	if _, err := s.load(ctx, gameID, requester); err != nil {
		return nil, err
	}
	return s.stored(ctx, gameID)
}

func (s *Service) stored(ctx context.Context, gameID string) (*AnnotationSet, error) {
	anns, err := s.store.ListAnnotations(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if anns == nil {
		anns = []store.MoveAnnotation{}
	}
	return &AnnotationSet{GameID: gameID, TotalMoves: len(anns), Annotations: anns}, nil
}
