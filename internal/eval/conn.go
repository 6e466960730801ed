package eval

import (
	"errors"
	"fmt"
	"time"

	"github.com/freeeve/uci"
)

// SearchRequest is one engine search. MoveTime, when set, replaces Depth.
type SearchRequest struct {
	Depth      int
	MoveTime   time.Duration
	SkillLevel int
}

// SearchResult is the raw engine answer, scored for the side to move.
type SearchResult struct {
	Score    int // centipawns, or moves to mate when Mate is set
	Mate     bool
	Depth    int
	BestMove string
}

// Conn is a single engine process. A Conn is used by one goroutine at a
// time; Close may be called while a Search is in flight to abort it.
type Conn interface {
	Search(fen string, req SearchRequest) (SearchResult, error)
	Close()
}

// Dialer starts a new engine process.
type Dialer func() (Conn, error)

// uciConn drives a UCI engine such as Stockfish.
type uciConn struct {
	engine *uci.Engine
	skill  int
}

// UCIDialer returns a Dialer that launches the engine at path with the
// given hash/threads and optional nice value.
func UCIDialer(path string, hashMB, threads, nice int) Dialer {
	return func() (Conn, error) {
		engine, err := uci.NewEngine(path)
		if err != nil {
			return nil, fmt.Errorf("create engine: %w", err)
		}

		opts := uci.Options{
			Hash:    hashMB,
			Threads: threads,
			MultiPV: 1,
			Ponder:  false,
			OwnBook: false,
		}
		if err := engine.SetOptions(opts); err != nil {
			engine.Close()
			return nil, fmt.Errorf("set options: %w", err)
		}

		if nice > 0 {
			if err := engine.SetNice(nice); err != nil {
				engine.Close()
				return nil, fmt.Errorf("set nice: %w", err)
			}
		}
		return &uciConn{engine: engine, skill: MaxSkill}, nil
	}
}

func (c *uciConn) Search(fen string, req SearchRequest) (SearchResult, error) {
	if req.SkillLevel != c.skill {
		if err := c.engine.SendOption("Skill Level", req.SkillLevel); err != nil {
			return SearchResult{}, fmt.Errorf("set skill level: %w", err)
		}
		c.skill = req.SkillLevel
	}

	if err := c.engine.SetFEN(fen); err != nil {
		return SearchResult{}, fmt.Errorf("set FEN: %w", err)
	}

	var results *uci.Results
	var err error
	if req.MoveTime > 0 {
		// The reached depth is unknown up front, so keep every depth and
		// take the deepest below.
		results, err = c.engine.Go(0, "", req.MoveTime.Milliseconds())
	} else {
		results, err = c.engine.GoDepth(req.Depth, uci.HighestDepthOnly)
	}
	if err != nil {
		return SearchResult{}, fmt.Errorf("stockfish search: %w", err)
	}
	if results == nil || len(results.Results) == 0 {
		return SearchResult{}, errors.New("no results from engine")
	}

	best := results.Results[0]
	for _, r := range results.Results {
		if r.Depth > best.Depth {
			best = r
		}
	}

	return SearchResult{
		Score:    best.Score,
		Mate:     best.Mate,
		Depth:    best.Depth,
		BestMove: results.BestMove,
	}, nil
}

func (c *uciConn) Close() {
	c.engine.Close()
}
