package annotate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ProcessUnannotated annotates up to limit games that have not been
// analyzed yet. A game that fails is logged and left out of the result;
// only a failure to list candidates fails the batch. Successful ids are
// returned in candidate order.
func (s *Service) ProcessUnannotated(ctx context.Context, limit int, requester string) (*BatchResult, error) {
	if limit < 1 || limit > s.cfg.MaxBatchLimit {
		return nil, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidLimit, limit, s.cfg.MaxBatchLimit)
	}

	games, err := s.store.ListUnanalyzed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed games: %w", err)
	}
	result := &BatchResult{GameIDs: []string{}}
	if len(games) == 0 {
		return result, nil
	}

	numWorkers := s.cfg.GameConcurrency
	if numWorkers > len(games) {
		numWorkers = len(games)
	}
	s.log.Info().Int("games", len(games)).Int("workers", numWorkers).Msg("batch started")
	start := time.Now()

	type gameResult struct {
		index int
		id    string
		err   error
	}

	jobs := make(chan int, len(games))
	results := make(chan gameResult, len(games))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				id := games[idx].ID
				if err := ctx.Err(); err != nil {
					results <- gameResult{index: idx, id: id, err: err}
					continue
				}
				_, err := s.AnnotateGame(ctx, id, requester)
				results <- gameResult{index: idx, id: id, err: err}
			}
		}()
	}

	for i := range games {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ok := make([]bool, len(games))
	var failed int
	for r := range results {
		if r.err != nil {
			s.log.Error().Err(r.err).Str("game_id", r.id).Msg("annotate failed")
			failed++
			continue
		}
		ok[r.index] = true
	}

	for i, g := range games {
		if ok[i] {
			result.GameIDs = append(result.GameIDs, g.ID)
		}
	}
	result.ProcessedGames = len(result.GameIDs)

	s.log.Info().
		Int("processed", result.ProcessedGames).
		Int("failed", failed).
		Dur("dur", time.Since(start)).
		Msg("batch complete")
	return result, nil
}
