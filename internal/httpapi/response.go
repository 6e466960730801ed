package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/freeeve/chessgraph/annotator/internal/annotate"
	"github.com/freeeve/chessgraph/annotator/internal/eval"
	"github.com/freeeve/chessgraph/annotator/internal/rules"
	"github.com/freeeve/chessgraph/annotator/internal/store"
)

type moveRequest struct {
	FEN  string `json:"fen"`
	Move string `json:"move"`
}

type bestMoveRequest struct {
	FEN        string   `json:"fen"`
	SkillLevel *int     `json:"skill_level"`
	MoveTime   *float64 `json:"move_time"` // seconds
}

type evaluateRequest struct {
	FEN   string `json:"fen"`
	Depth *int   `json:"depth"`
}

type evaluateResponse struct {
	FEN string `json:"fen"`
	eval.Result
}

type batchRequest struct {
	Limit *int `json:"limit"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// badRequest reports whether err was caused by the request itself.
func badRequest(err error) bool {
	for _, target := range []error{
		rules.ErrInvalidRecord,
		rules.ErrIllegalMove,
		rules.ErrInvalidPosition,
		eval.ErrNoLegalMoves,
		eval.ErrInvalidOptions,
		annotate.ErrInvalidLimit,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeError maps a pipeline error to a status. Collaborator failures are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "game not found", http.StatusNotFound)
	case errors.Is(err, annotate.ErrForbidden):
		http.Error(w, "unauthorized access to this game", http.StatusForbidden)
	case badRequest(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error().
			Err(err).
			Str("rid", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
