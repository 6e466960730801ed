package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

var exportHeader = []string{
	"game_id", "ply", "move_number", "color", "move_san", "move_uci",
	"eval_before", "eval_after", "eval_change", "classification",
	"is_best_move", "is_book_move", "fen_before", "fen_after",
}

// ExportCSV writes the annotations of every analyzed game to w, one row per
// ply, games in creation order. It returns the number of rows written.
func ExportCSV(ctx context.Context, s Store, w io.Writer) (int, error) {
	ids, err := s.ListAnalyzed(ctx)
	if err != nil {
		return 0, err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		anns, err := s.ListAnnotations(ctx, id)
		if err != nil {
			return rows, err
		}
		for _, a := range anns {
			row := []string{
				a.GameID,
				strconv.Itoa(a.Ply),
				strconv.Itoa(a.MoveNumber),
				a.Color,
				a.MoveSAN,
				a.MoveUCI,
				formatEval(a.EvalBefore),
				formatEval(a.EvalAfter),
				formatEval(a.EvalChange),
				a.Classification,
				strconv.FormatBool(a.IsBestMove),
				strconv.FormatBool(a.IsBookMove),
				a.FENBefore,
				a.FENAfter,
			}
			if err := writer.Write(row); err != nil {
				return rows, fmt.Errorf("write row: %w", err)
			}
			rows++
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("csv writer: %w", err)
	}
	return rows, nil
}

// ExportFile writes ExportCSV output to path, zstd-compressed when path
// ends in .zst.
func ExportFile(ctx context.Context, s Store, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			return 0, err
		}
		w = zw
	}

	rows, err := ExportCSV(ctx, s, w)
	if err != nil {
		if zw != nil {
			zw.Close()
		}
		return rows, err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return rows, err
		}
	}
	return rows, f.Close()
}

func formatEval(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
