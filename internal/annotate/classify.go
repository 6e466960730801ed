// Package annotate turns recorded games into per-move annotations: replay,
// evaluate each position, judge each move by its evaluation swing and
// persist the result exactly once per game.
package annotate

import "github.com/freeeve/chessgraph/annotator/internal/rules"

// Classification is a move quality label.
type Classification string

const (
	Blunder    Classification = "blunder"
	Mistake    Classification = "mistake"
	Inaccuracy Classification = "inaccuracy"
	Good       Classification = "good"
	Great      Classification = "great"
	Excellent  Classification = "excellent"
)

// Thresholds in pawns, from the mover's point of view. Each bound belongs to
// the bucket above it.
const (
	blunderBelow    = -2.0
	mistakeBelow    = -1.0
	inaccuracyBelow = -0.5
	goodBelow       = 0.1
	greatBelow      = 0.5
)

// Classify labels an evaluation change.
func Classify(change float64) Classification {
	switch {
	case change < blunderBelow:
		return Blunder
	case change < mistakeBelow:
		return Mistake
	case change < inaccuracyBelow:
		return Inaccuracy
	case change < goodBelow:
		return Good
	case change < greatBelow:
		return Great
	default:
		return Excellent
	}
}

// EvalChange returns how much a move improved the mover's position, given
// White-relative evaluations before and after it.
func EvalChange(mover rules.Color, before, after float64) float64 {
	if mover == rules.Black {
		return before - after
	}
	return after - before
}
