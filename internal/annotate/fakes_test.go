package annotate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freeeve/chessgraph/annotator/internal/eval"
)

// fakeEvaluator scores positions from a table and counts engine calls.
type fakeEvaluator struct {
	mu     sync.Mutex
	scores map[string]float64 // FEN -> White-relative score
	best   map[string]string  // FEN -> best move
	fail   map[string]error   // FEN -> error
	delay  func(fen string) time.Duration

	calls int64
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{
		scores: make(map[string]float64),
		best:   make(map[string]string),
		fail:   make(map[string]error),
	}
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, fen string, opts eval.Options) (eval.Result, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay != nil {
		select {
		case <-time.After(f.delay(fen)):
		case <-ctx.Done():
			return eval.Result{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[fen]; err != nil {
		return eval.Result{}, err
	}
	return eval.Result{Score: f.scores[fen], Depth: opts.Depth, BestMove: f.best[fen]}, nil
}

func (f *fakeEvaluator) BestMove(context.Context, string, eval.BestMoveOptions) (eval.BestMoveResult, error) {
	return eval.BestMoveResult{}, errors.New("not used")
}

func (f *fakeEvaluator) Calls() int64 {
	return atomic.LoadInt64(&f.calls)
}
