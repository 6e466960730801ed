package eval

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/freeeve/chessgraph/annotator/internal/rules"
)

type cacheKey struct {
	pos   string // packed position
	depth int
}

// Cache is a read-through evaluation cache in front of another Evaluator.
// Entries are keyed by packed position and depth, so transpositions and
// positions differing only in move clocks share one engine call.
// Concurrent misses for the same key are collapsed into a single call.
type Cache struct {
	next         Evaluator
	defaultDepth int

	mu      sync.RWMutex
	entries map[cacheKey]Result
	group   singleflight.Group

	hits   int64
	misses int64
}

// NewCache wraps next. defaultDepth resolves Options.Depth == 0 so that
// explicit and implicit requests for the same depth share entries.
func NewCache(next Evaluator, defaultDepth int) *Cache {
	return &Cache{
		next:         next,
		defaultDepth: defaultDepth,
		entries:      make(map[cacheKey]Result),
	}
}

// Evaluate returns a cached result or evaluates through the wrapped
// Evaluator. Failures are not cached.
func (c *Cache) Evaluate(ctx context.Context, fen string, opts Options) (Result, error) {
	pos, err := rules.Key(fen)
	if err != nil {
		return Result{}, err
	}
	if opts.Depth <= 0 {
		opts.Depth = c.defaultDepth
	}
	key := cacheKey{pos: pos, depth: opts.Depth}

	c.mu.RLock()
	res, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		atomic.AddInt64(&c.hits, 1)
		return res, nil
	}

	// The flight outlives any one caller: a cancelled caller leaves, the
	// rest keep waiting. The wrapped evaluator bounds it in time.
	flight := context.WithoutCancel(ctx)
	ch := c.group.DoChan(pos+"/"+strconv.Itoa(opts.Depth), func() (any, error) {
		// A flight for this key may have finished since the read above.
		c.mu.RLock()
		res, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return res, nil
		}
		res, err := c.next.Evaluate(flight, fen, opts)
		if err != nil {
			return Result{}, err
		}
		c.Put(pos, opts.Depth, res)
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		atomic.AddInt64(&c.misses, 1)
		return r.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// BestMove depends on strength and time and is never cached.
func (c *Cache) BestMove(ctx context.Context, fen string, opts BestMoveOptions) (BestMoveResult, error) {
	return c.next.BestMove(ctx, fen, opts)
}

// Put stores a result for a packed position key.
func (c *Cache) Put(pos string, depth int, res Result) {
	c.mu.Lock()
	c.entries[cacheKey{pos: pos, depth: depth}] = res
	c.mu.Unlock()
}

// Len returns the number of cached evaluations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

var cacheHeader = []string{"position", "depth", "score", "is_mate", "mate_in", "best_move"}

// LoadFromFile loads evaluations from a CSV file written by SaveToFile
// (optionally zstd-compressed, by .zst suffix). A missing file loads
// nothing.
func (c *Cache) LoadFromFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return 0, err
		}
		defer zr.Close()
		reader = zr
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = len(cacheHeader)

	if _, err := csvReader.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("read header: %w", err)
	}

	count := 0
	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read row: %w", err)
		}

		depth, err := strconv.Atoi(row[1])
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			continue
		}
		res := Result{Score: score, Depth: depth, IsMate: row[3] == "1", BestMove: row[5]}
		if row[4] != "" {
			mateIn, err := strconv.Atoi(row[4])
			if err != nil {
				continue
			}
			res.MateIn = &mateIn
		}
		c.Put(row[0], depth, res)
		count++
	}
	return count, nil
}

// SaveToFile writes all entries as CSV, zstd-compressed when path ends in
// .zst. Rows are sorted so the output is stable.
func (c *Cache) SaveToFile(path string) (int, error) {
	c.mu.RLock()
	keys := make([]cacheKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pos != keys[j].pos {
			return keys[i].pos < keys[j].pos
		}
		return keys[i].depth < keys[j].depth
	})

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp)

	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return 0, err
		}
		w = zw
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(cacheHeader); err != nil {
		f.Close()
		return 0, err
	}

	c.mu.RLock()
	for _, k := range keys {
		res := c.entries[k]
		mate := "0"
		if res.IsMate {
			mate = "1"
		}
		mateIn := ""
		if res.MateIn != nil {
			mateIn = strconv.Itoa(*res.MateIn)
		}
		row := []string{
			k.pos,
			strconv.Itoa(k.depth),
			strconv.FormatFloat(res.Score, 'f', -1, 64),
			mate,
			mateIn,
			res.BestMove,
		}
		if err := writer.Write(row); err != nil {
			c.mu.RUnlock()
			f.Close()
			return 0, err
		}
	}
	c.mu.RUnlock()

	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return 0, err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return len(keys), nil
}
