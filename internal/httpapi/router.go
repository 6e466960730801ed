package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessgraph/annotator/internal/annotate"
	"github.com/freeeve/chessgraph/annotator/internal/eval"
	"github.com/freeeve/chessgraph/annotator/internal/rules"
)

const maxBodyBytes = 1 << 20

const (
	defaultSkillLevel = eval.MaxSkill
	defaultMoveTime   = 1.0 // seconds
	defaultBatchLimit = 10
)

// Annotator is the annotation pipeline as seen by the HTTP layer.
type Annotator interface {
	AnnotateGame(ctx context.Context, gameID, requester string) (*annotate.AnnotationSet, error)
	GetAnnotations(ctx context.Context, gameID, requester string) (*annotate.AnnotationSet, error)
	ProcessUnannotated(ctx context.Context, limit int, requester string) (*annotate.BatchResult, error)
}

// Handler serves the game API.
type Handler struct {
	annotator Annotator
	evaluator eval.Evaluator
	stats     func() map[string]any
	log       zerolog.Logger
}

// NewRouter creates the HTTP router. stats is optional and backs /v1/stats.
func NewRouter(log zerolog.Logger, annotator Annotator, evaluator eval.Evaluator, stats func() map[string]any) http.Handler {
	h := &Handler{
		annotator: annotator,
		evaluator: evaluator,
		stats:     stats,
		log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /readyz", h.health)
	mux.HandleFunc("GET /v1/stats", h.statsHandler)

	mux.HandleFunc("POST /v1/game/move", h.move)
	mux.HandleFunc("POST /v1/game/best-move", h.bestMove)
	mux.HandleFunc("POST /v1/game/evaluate", h.evaluate)
	mux.HandleFunc("GET /v1/game/new-game", h.newGame)

	mux.HandleFunc("POST /v1/game/process-unannotated", RequireUser(h.processUnannotated))
	mux.HandleFunc("POST /v1/game/{id}/annotate", RequireUser(h.annotate))
	mux.HandleFunc("GET /v1/game/{id}/annotations", RequireUser(h.annotations))

	return CORS(RequestID(AccessLog(log, Authenticate(mux))))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) statsHandler(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, h.stats())
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func requireFEN(w http.ResponseWriter, fen string) bool {
	if strings.TrimSpace(fen) == "" {
		http.Error(w, "missing fen", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decode(w, r, &req) || !requireFEN(w, req.FEN) {
		return
	}
	if req.Move == "" {
		http.Error(w, "missing move", http.StatusBadRequest)
		return
	}

	res, err := rules.ApplyMove(req.FEN, req.Move)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) bestMove(w http.ResponseWriter, r *http.Request) {
	var req bestMoveRequest
	if !decode(w, r, &req) || !requireFEN(w, req.FEN) {
		return
	}

	opts := eval.BestMoveOptions{
		SkillLevel: defaultSkillLevel,
		MoveTime:   time.Duration(defaultMoveTime * float64(time.Second)),
	}
	if req.SkillLevel != nil {
		opts.SkillLevel = *req.SkillLevel
	}
	if req.MoveTime != nil {
		if *req.MoveTime <= 0 {
			http.Error(w, "move_time must be positive", http.StatusBadRequest)
			return
		}
		opts.MoveTime = time.Duration(*req.MoveTime * float64(time.Second))
	}

	res, err := h.evaluator.BestMove(r.Context(), req.FEN, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decode(w, r, &req) || !requireFEN(w, req.FEN) {
		return
	}

	var opts eval.Options
	if req.Depth != nil {
		if *req.Depth < 1 {
			http.Error(w, "depth must be positive", http.StatusBadRequest)
			return
		}
		opts.Depth = *req.Depth
	}

	res, err := h.evaluator.Evaluate(r.Context(), req.FEN, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, evaluateResponse{FEN: req.FEN, Result: res})
}

func (h *Handler) newGame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, rules.NewGameState())
}

func (h *Handler) annotate(w http.ResponseWriter, r *http.Request) {
	set, err := h.annotator.AnnotateGame(r.Context(), r.PathValue("id"), UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, set)
}

func (h *Handler) annotations(w http.ResponseWriter, r *http.Request) {
	set, err := h.annotator.GetAnnotations(r.Context(), r.PathValue("id"), UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, set.Annotations)
}

func (h *Handler) processUnannotated(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	limit := defaultBatchLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	res, err := h.annotator.ProcessUnannotated(r.Context(), limit, UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}
