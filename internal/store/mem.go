package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and one-off runs.
type MemStore struct {
	mu    sync.RWMutex
	seq   int
	games map[string]*memGame
	anns  map[string][]MoveAnnotation
}

type memGame struct {
	Game
	seq int
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		games: make(map[string]*memGame),
		anns:  make(map[string][]MoveAnnotation),
	}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) CreateGame(_ context.Context, g Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return fmt.Errorf("%w: create game: duplicate id %s", ErrPersistence, g.ID)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	m.seq++
	m.games[g.ID] = &memGame{Game: g, seq: m.seq}
	return nil
}

func (m *MemStore) GetGame(_ context.Context, id string) (Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return Game{}, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return g.Game, nil
}

func (m *MemStore) SetAnalyzed(_ context.Context, id string, analyzed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	g.Analyzed = analyzed
	return nil
}

// sorted returns games matching keep in creation order. Caller holds mu.
func (m *MemStore) sorted(keep func(*memGame) bool) []*memGame {
	var out []*memGame
	for _, g := range m.games {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (m *MemStore) ListUnanalyzed(_ context.Context, limit int) ([]Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var games []Game
	for _, g := range m.sorted(func(g *memGame) bool { return !g.Analyzed }) {
		if limit > 0 && len(games) == limit {
			break
		}
		games = append(games, g.Game)
	}
	return games, nil
}

func (m *MemStore) ListAnalyzed(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, g := range m.sorted(func(g *memGame) bool { return g.Analyzed }) {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

func (m *MemStore) InsertAnnotations(_ context.Context, gameID string, anns []MoveAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[gameID]; !ok {
		return fmt.Errorf("%w: insert annotations: unknown game %s", ErrPersistence, gameID)
	}
	if err := checkPlies(gameID, m.anns[gameID], anns); err != nil {
		return err
	}
	m.anns[gameID] = append(m.anns[gameID], withGameID(gameID, anns)...)
	return nil
}

func (m *MemStore) CommitAnnotations(_ context.Context, gameID string, anns []MoveAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	if g.Analyzed {
		return fmt.Errorf("game %s: %w", gameID, ErrAlreadyAnalyzed)
	}
	if err := checkPlies(gameID, nil, anns); err != nil {
		return err
	}
	m.anns[gameID] = withGameID(gameID, anns)
	g.Analyzed = true
	return nil
}

func (m *MemStore) ListAnnotations(_ context.Context, gameID string) ([]MoveAnnotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]MoveAnnotation{}, m.anns[gameID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MoveNumber != out[j].MoveNumber {
			return out[i].MoveNumber < out[j].MoveNumber
		}
		return out[i].Ply < out[j].Ply
	})
	return out, nil
}

// checkPlies rejects a ply stored twice for one game, as the SQLite
// primary key does.
func checkPlies(gameID string, existing, anns []MoveAnnotation) error {
	seen := make(map[int]bool, len(existing)+len(anns))
	for _, a := range existing {
		seen[a.Ply] = true
	}
	for _, a := range anns {
		if seen[a.Ply] {
			return fmt.Errorf("%w: game %s: duplicate ply %d", ErrPersistence, gameID, a.Ply)
		}
		seen[a.Ply] = true
	}
	return nil
}

func withGameID(gameID string, anns []MoveAnnotation) []MoveAnnotation {
	out := make([]MoveAnnotation, len(anns))
	for i, a := range anns {
		a.GameID = gameID
		out[i] = a
	}
	return out
}
