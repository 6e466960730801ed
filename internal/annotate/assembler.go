package annotate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chessgraph/annotator/internal/eval"
	"github.com/freeeve/chessgraph/annotator/internal/rules"
	"github.com/freeeve/chessgraph/annotator/internal/store"
)

// EngineError reports the ply whose evaluation failed. No annotations are
// produced for a game when it is returned.
type EngineError struct {
	Ply int
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("evaluate ply %d: %v", e.Ply, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Assembler evaluates replayed plies and builds their annotations.
type Assembler struct {
	eval        eval.Evaluator
	depth       int
	concurrency int
}

// NewAssembler returns an Assembler evaluating up to concurrency plies at a
// time. depth 0 leaves the search depth to the evaluator.
func NewAssembler(ev eval.Evaluator, depth, concurrency int) *Assembler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Assembler{eval: ev, depth: depth, concurrency: concurrency}
}

// Assemble returns one annotation per ply, in ply order. Any evaluation
// failure aborts the whole game with an *EngineError.
func (a *Assembler) Assemble(ctx context.Context, gameID string, plies []rules.Ply) ([]store.MoveAnnotation, error) {
	out := make([]store.MoveAnnotation, len(plies))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range plies {
		ply := plies[i]
		g.Go(func() error {
			before, after, err := a.evaluatePair(ctx, ply)
			if err != nil {
				return &EngineError{Ply: ply.Index, Err: err}
			}
			out[i] = annotation(gameID, ply, before, after)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// evaluatePair evaluates the positions before and after a ply concurrently.
func (a *Assembler) evaluatePair(ctx context.Context, ply rules.Ply) (before, after eval.Result, err error) {
	opts := eval.Options{Depth: a.depth}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		before, err = a.eval.Evaluate(ctx, ply.Before.String(), opts)
		return err
	})
	g.Go(func() error {
		var err error
		after, err = a.eval.Evaluate(ctx, ply.After.String(), opts)
		return err
	})
	err = g.Wait()
	return before, after, err
}

func annotation(gameID string, ply rules.Ply, before, after eval.Result) store.MoveAnnotation {
	change := EvalChange(ply.Color, before.Score, after.Score)
	return store.MoveAnnotation{
		GameID:         gameID,
		Ply:            ply.Index,
		MoveNumber:     ply.MoveNumber,
		MoveSAN:        ply.SAN,
		MoveUCI:        ply.UCI,
		Color:          string(ply.Color),
		FENBefore:      ply.Before.String(),
		FENAfter:       ply.After.String(),
		EvalBefore:     before.Score,
		EvalAfter:      after.Score,
		EvalChange:     change,
		Classification: string(Classify(change)),
		IsBestMove:     before.BestMove != "" && before.BestMove == ply.UCI,
		IsBookMove:     false,
	}
}
