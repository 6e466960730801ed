package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/freeeve/chessgraph/annotator/internal/annotate"
)

// printer writes command results as JSON or text.
type printer struct {
	format string
	w      io.Writer
}

func (p printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) annotationSet(set *annotate.AnnotationSet) error {
	if p.format == "json" {
		return p.json(set)
	}
	fmt.Fprintf(p.w, "game %s: %d moves\n", set.GameID, set.TotalMoves)
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MOVE\tSAN\tBEFORE\tAFTER\tCHANGE\tCLASS\tBEST")
	for _, a := range set.Annotations {
		num := fmt.Sprintf("%d.", a.MoveNumber)
		if a.Color == "black" {
			num = fmt.Sprintf("%d...", a.MoveNumber)
		}
		best := ""
		if a.IsBestMove {
			best = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%+.2f\t%+.2f\t%+.2f\t%s\t%s\n",
			num, a.MoveSAN, a.EvalBefore, a.EvalAfter, a.EvalChange, a.Classification, best)
	}
	return tw.Flush()
}

func (p printer) batch(res *annotate.BatchResult) error {
	if p.format == "json" {
		return p.json(res)
	}
	fmt.Fprintf(p.w, "processed %d games\n", res.ProcessedGames)
	for _, id := range res.GameIDs {
		fmt.Fprintln(p.w, id)
	}
	return nil
}

func (p printer) ids(verb string, ids []string) error {
	if p.format == "json" {
		return p.json(map[string]any{"count": len(ids), "game_ids": ids})
	}
	fmt.Fprintf(p.w, "%s %d games\n", verb, len(ids))
	for _, id := range ids {
		fmt.Fprintln(p.w, id)
	}
	return nil
}
