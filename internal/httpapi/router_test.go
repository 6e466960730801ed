package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessgraph/annotator/internal/annotate"
	"github.com/freeeve/chessgraph/annotator/internal/eval"
	"github.com/freeeve/chessgraph/annotator/internal/rules"
	"github.com/freeeve/chessgraph/annotator/internal/store"
)

// stubEvaluator returns a constant evaluation.
type stubEvaluator struct {
	err      error
	bestOpts eval.BestMoveOptions
}

func (s *stubEvaluator) Evaluate(_ context.Context, fen string, opts eval.Options) (eval.Result, error) {
	if s.err != nil {
		return eval.Result{}, s.err
	}
	if _, err := rules.State(fen); err != nil {
		return eval.Result{}, err
	}
	return eval.Result{Score: 0.3, Depth: max(opts.Depth, 18), BestMove: "e2e4"}, nil
}

func (s *stubEvaluator) BestMove(_ context.Context, fen string, opts eval.BestMoveOptions) (eval.BestMoveResult, error) {
	s.bestOpts = opts
	if s.err != nil {
		return eval.BestMoveResult{}, s.err
	}
	return eval.BestMoveResult{Move: "e2e4", Score: 0.3}, nil
}

type fixture struct {
	handler http.Handler
	store   *store.MemStore
	eval    *stubEvaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemStore()
	ev := &stubEvaluator{}
	svc, err := annotate.NewService(annotate.Config{Store: st, Evaluator: ev, Logger: zerolog.Nop()})
	require.NoError(t, err)

	stats := func() map[string]any { return map[string]any{"games": 0} }
	return &fixture{
		handler: NewRouter(zerolog.Nop(), svc, ev, stats),
		store:   st,
		eval:    ev,
	}
}

func (f *fixture) addGame(t *testing.T, id, owner, pgn string) {
	t.Helper()
	require.NoError(t, f.store.CreateGame(context.Background(), store.Game{
		ID: id, UserID: owner, PGN: pgn, CreatedAt: time.Now().UTC(),
	}))
}

func (f *fixture) do(method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMove(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/game/move", "", `{"fen":"`+rules.StartFEN+`","move":"e2e4"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res rules.MoveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.LegalMoves, 20)
	assert.False(t, res.IsGameOver)

	rec = f.do(http.MethodPost, "/v1/game/move", "", `{"fen":"`+rules.StartFEN+`","move":"e2e5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/game/move", "", `{"fen":"bogus","move":"e2e4"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/game/move", "", `{"fen":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBestMove(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/game/best-move", "", `{"fen":"`+rules.StartFEN+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, eval.MaxSkill, f.eval.bestOpts.SkillLevel)
	assert.Equal(t, time.Second, f.eval.bestOpts.MoveTime)

	rec = f.do(http.MethodPost, "/v1/game/best-move", "", `{"fen":"`+rules.StartFEN+`","skill_level":5,"move_time":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.eval.bestOpts.SkillLevel)
	assert.Equal(t, 500*time.Millisecond, f.eval.bestOpts.MoveTime)

	rec = f.do(http.MethodPost, "/v1/game/best-move", "", `{"fen":"`+rules.StartFEN+`","move_time":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.eval.err = eval.ErrNoLegalMoves
	rec = f.do(http.MethodPost, "/v1/game/best-move", "", `{"fen":"`+rules.StartFEN+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.eval.err = eval.ErrEngineUnavailable
	rec = f.do(http.MethodPost, "/v1/game/best-move", "", `{"fen":"`+rules.StartFEN+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error\n", rec.Body.String())
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/game/evaluate", "", `{"fen":"`+rules.StartFEN+`","depth":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, rules.StartFEN, body["fen"])
	assert.Equal(t, 0.3, body["evaluation"])
	assert.Equal(t, float64(20), body["depth"])
	assert.Nil(t, body["mate_in"])

	rec = f.do(http.MethodPost, "/v1/game/evaluate", "", `{"fen":"not a fen"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/game/evaluate", "", `{"fen":"`+rules.StartFEN+`","depth":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.eval.err = eval.ErrEngineTimeout
	rec = f.do(http.MethodPost, "/v1/game/evaluate", "", `{"fen":"`+rules.StartFEN+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewGame(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/game/new-game", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, rules.StartFEN, body["fen"])
	assert.Equal(t, false, body["is_game_over"])
}

func TestAnnotate(t *testing.T) {
	f := newFixture(t)
	f.addGame(t, "g1", "alice", "1. e4 e5")

	rec := f.do(http.MethodPost, "/v1/game/g1/annotate", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/v1/game/g1/annotate", "bob", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/game/nope/annotate", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/v1/game/g1/annotate", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var set annotate.AnnotationSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	assert.Equal(t, "g1", set.GameID)
	assert.Equal(t, 2, set.TotalMoves)
	assert.Equal(t, "e4", set.Annotations[0].MoveSAN)
	assert.True(t, set.Annotations[0].IsBestMove)

	rec = f.do(http.MethodGet, "/v1/game/g1/annotations", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var anns []store.MoveAnnotation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &anns))
	assert.Equal(t, set.Annotations, anns)
}

func TestAnnotate_BadRecord(t *testing.T) {
	f := newFixture(t)
	f.addGame(t, "g1", "alice", "1. e4 e5 2. Ke3")

	req := httptest.NewRequest(http.MethodPost, "/v1/game/g1/annotate", nil)
	req.Header.Set("Authorization", "Bearer alice")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "illegal move")
}

func TestProcessUnannotated(t *testing.T) {
	f := newFixture(t)
	f.addGame(t, "g1", "alice", "1. e4 e5")
	f.addGame(t, "g2", "alice", "1. e4 {broken")

	rec := f.do(http.MethodPost, "/v1/game/process-unannotated", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res annotate.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.ProcessedGames)
	assert.Equal(t, []string{"g1"}, res.GameIDs)

	rec = f.do(http.MethodPost, "/v1/game/process-unannotated", "alice", `{"limit":51}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/game/process-unannotated", "", `{"limit":5}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/game/move", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"games":0}`, rec.Body.String())
}
