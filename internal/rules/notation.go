package rules

import "github.com/freeeve/pgn/v3"

const (
	files = "abcdefgh"
	ranks = "12345678"
)

// uciOf converts a move to coordinate notation (e.g. "e2e4", "e7e8q").
func uciOf(mv pgn.Mv) string {
	from, to := int(mv.From), int(mv.To)
	// Castling is always written as the king's two-square step.
	if mv.Flags == 4 {
		if to > from {
			to = from + 2
		} else {
			to = from - 2
		}
	}
	uci := string(files[from%8]) + string(ranks[from/8]) +
		string(files[to%8]) + string(ranks[to/8])

	switch mv.Promo {
	case pgn.PromoQueen:
		uci += "q"
	case pgn.PromoRook:
		uci += "r"
	case pgn.PromoBishop:
		uci += "b"
	case pgn.PromoKnight:
		uci += "n"
	}
	return uci
}

// sanOf renders mv in standard algebraic notation for the position it is
// played from, including disambiguation and check/mate suffixes.
func sanOf(pos *pgn.GameState, mv pgn.Mv) string {
	san := sanBody(pos, mv)

	after := pos.Pack().Unpack()
	if after != nil {
		_ = pgn.ApplyMove(after, mv)
		if after.IsInCheck() {
			if len(pgn.GenerateLegalMoves(after)) == 0 {
				san += "#"
			} else {
				san += "+"
			}
		}
	}
	return san
}

func sanBody(pos *pgn.GameState, mv pgn.Mv) string {
	// flag 4 marks castling
	if mv.Flags == 4 {
		if mv.To > mv.From {
			return "O-O"
		}
		return "O-O-O"
	}

	fromFile := int(mv.From) % 8
	fromRank := int(mv.From) / 8
	toSquare := string(files[int(mv.To)%8]) + string(ranks[int(mv.To)/8])

	piece := pos.PieceAt(mv.From)
	isPawn := piece == 'P' || piece == 'p'
	// flag 2 marks en passant
	isCapture := pos.PieceAt(mv.To) != 0 || (isPawn && mv.Flags == 2)

	if isPawn {
		san := toSquare
		if isCapture {
			san = string(files[fromFile]) + "x" + toSquare
		}
		switch mv.Promo {
		case pgn.PromoQueen:
			san += "=Q"
		case pgn.PromoRook:
			san += "=R"
		case pgn.PromoBishop:
			san += "=B"
		case pgn.PromoKnight:
			san += "=N"
		}
		return san
	}

	pieceChar := piece
	if piece >= 'a' && piece <= 'z' {
		pieceChar = piece - 32
	}

	// Disambiguate against every other piece of the same type that can
	// reach the target square.
	var rivals, sameFile, sameRank int
	for _, other := range pgn.GenerateLegalMoves(pos) {
		if other.To != mv.To || other.From == mv.From {
			continue
		}
		otherPiece := pos.PieceAt(other.From)
		if otherPiece >= 'a' && otherPiece <= 'z' {
			otherPiece -= 32
		}
		if otherPiece != pieceChar {
			continue
		}
		rivals++
		if int(other.From)%8 == fromFile {
			sameFile++
		}
		if int(other.From)/8 == fromRank {
			sameRank++
		}
	}

	san := string(pieceChar)
	switch {
	case rivals == 0:
	case sameFile == 0:
		san += string(files[fromFile])
	case sameRank == 0:
		san += string(ranks[fromRank])
	default:
		san += string(files[fromFile]) + string(ranks[fromRank])
	}
	if isCapture {
		san += "x"
	}
	return san + toSquare
}

// sameMove compares the parts of a move that identify it on the board.
func sameMove(a, b pgn.Mv) bool {
	return a.From == b.From && a.To == b.To && a.Promo == b.Promo
}
