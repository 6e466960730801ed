package eval

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessgraph/annotator/internal/rules"
)

// PoolConfig configures the engine pool.
type PoolConfig struct {
	Dial       Dialer
	Logger     zerolog.Logger
	NumWorkers int           // engine processes (default 1)
	Depth      int           // default search depth (default 18)
	Timeout    time.Duration // per call, including waiting for an engine (default 30s)
}

// Pool evaluates positions on a bounded set of long-lived engine processes.
// Engines are started lazily and replaced after a failure or timeout.
type Pool struct {
	cfg PoolConfig
	log zerolog.Logger

	slots chan struct{} // one token per engine process allowed
	idle  chan Conn

	// Stats
	evaluated int64
	timeouts  int64
	failures  int64
	spawned   int64
}

// NewPool creates an engine pool. No process is started until first use.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("engine dialer required")
	}
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = 1
	}
	if cfg.Depth == 0 {
		cfg.Depth = 18
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	p := &Pool{
		cfg:   cfg,
		log:   cfg.Logger,
		slots: make(chan struct{}, cfg.NumWorkers),
		idle:  make(chan Conn, cfg.NumWorkers),
	}
	for i := 0; i < cfg.NumWorkers; i++ {
		p.slots <- struct{}{}
	}
	return p, nil
}

// PoolStats holds pool counters.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Idle      int   `json:"idle"`
	Evaluated int64 `json:"evaluated"`
	Timeouts  int64 `json:"timeouts"`
	Failures  int64 `json:"failures"`
	Spawned   int64 `json:"spawned"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.cfg.NumWorkers,
		Idle:      len(p.idle),
		Evaluated: atomic.LoadInt64(&p.evaluated),
		Timeouts:  atomic.LoadInt64(&p.timeouts),
		Failures:  atomic.LoadInt64(&p.failures),
		Spawned:   atomic.LoadInt64(&p.spawned),
	}
}

// Evaluate scores fen to the requested (or default) depth.
func (p *Pool) Evaluate(ctx context.Context, fen string, opts Options) (Result, error) {
	over, mated, err := rules.Terminal(fen)
	if err != nil {
		return Result{}, err
	}
	if over {
		return terminalResult(fen, mated), nil
	}

	depth := opts.Depth
	if depth <= 0 {
		depth = p.cfg.Depth
	}

	res, err := p.search(ctx, fen, SearchRequest{Depth: depth, SkillLevel: MaxSkill}, p.cfg.Timeout)
	if err != nil {
		return Result{}, err
	}
	atomic.AddInt64(&p.evaluated, 1)

	out := normalize(fen, res)
	p.log.Debug().
		Str("fen", fen).
		Float64("score", out.Score).
		Bool("mate", out.IsMate).
		Int("depth", out.Depth).
		Msg("evaluated")
	return out, nil
}

// BestMove asks the engine for its move at a reduced strength.
func (p *Pool) BestMove(ctx context.Context, fen string, opts BestMoveOptions) (BestMoveResult, error) {
	if err := opts.validate(); err != nil {
		return BestMoveResult{}, err
	}
	over, _, err := rules.Terminal(fen)
	if err != nil {
		return BestMoveResult{}, err
	}
	if over {
		return BestMoveResult{}, ErrNoLegalMoves
	}

	req := SearchRequest{MoveTime: opts.MoveTime, SkillLevel: opts.SkillLevel}
	res, err := p.search(ctx, fen, req, p.cfg.Timeout+opts.MoveTime)
	if err != nil {
		return BestMoveResult{}, err
	}
	if res.BestMove == "" || res.BestMove == "(none)" {
		return BestMoveResult{}, ErrNoLegalMoves
	}

	out := normalize(fen, res)
	return BestMoveResult{
		Move:   res.BestMove,
		Score:  out.Score,
		IsMate: out.IsMate,
		MateIn: out.MateIn,
	}, nil
}

// normalize converts a side-to-move engine score to White's perspective.
func normalize(fen string, res SearchResult) Result {
	score := res.Score
	if rules.Position(fen).SideToMove() == rules.Black {
		score = -score
	}

	out := Result{Depth: res.Depth, BestMove: res.BestMove}
	if out.BestMove == "(none)" {
		out.BestMove = ""
	}
	if res.Mate {
		mateIn := score
		out.IsMate = true
		out.MateIn = &mateIn
		out.Score = mateScore(mateIn, mateIn > 0)
		return out
	}
	out.Score = float64(score) / 100
	return out
}

type searchOutcome struct {
	res SearchResult
	err error
}

// search runs one request on an engine, bounded by timeout.
func (p *Pool) search(ctx context.Context, fen string, req SearchRequest, timeout time.Duration) (SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.acquire(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	done := make(chan searchOutcome, 1)
	go func() {
		res, err := conn.Search(fen, req)
		done <- searchOutcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			atomic.AddInt64(&p.failures, 1)
			p.discard(conn)
			return SearchResult{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, o.err)
		}
		p.release(conn)
		return o.res, nil
	case <-ctx.Done():
		// The engine is mid-search and cannot be reused; stop it and
		// give its slot back once the search goroutine has returned.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			atomic.AddInt64(&p.timeouts, 1)
		}
		go func() {
			conn.Close()
			<-done
			p.slots <- struct{}{}
		}()
		p.log.Warn().Str("fen", fen).Dur("timeout", timeout).Msg("engine call abandoned")
		return SearchResult{}, ctxError(ctx)
	}
}

// acquire waits for a free slot and returns an idle engine, starting a new
// process when none is idle.
func (p *Pool) acquire(ctx context.Context) (Conn, error) {
	select {
	case <-p.slots:
	case <-ctx.Done():
		return nil, ctxError(ctx)
	}

	select {
	case conn := <-p.idle:
		return conn, nil
	default:
	}

	conn, err := p.cfg.Dial()
	if err != nil {
		p.slots <- struct{}{}
		atomic.AddInt64(&p.failures, 1)
		p.log.Error().Err(err).Msg("failed to start engine")
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	atomic.AddInt64(&p.spawned, 1)
	return conn, nil
}

func (p *Pool) release(conn Conn) {
	p.idle <- conn
	p.slots <- struct{}{}
}

func (p *Pool) discard(conn Conn) {
	go conn.Close()
	p.slots <- struct{}{}
}

// Close stops all idle engines. In-flight calls finish on their own.
func (p *Pool) Close() {
	for {
		select {
		case conn := <-p.idle:
			conn.Close()
		default:
			return
		}
	}
}

func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, ctx.Err())
	}
	return ctx.Err()
}
