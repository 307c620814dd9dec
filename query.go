package orby

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orbyio/orby/cell"
	"github.com/orbyio/orby/internal/lane"
)

// Rows below this threshold are scanned sequentially; forking workers for a
// few thousand comparisons costs more than it saves.
const minParallelScan = 4096

// Query scans one lane with a predicate and returns full rows for every
// match, in ascending index order. limit > 0 caps the result to the first
// limit matches by index; limit <= 0 returns all matches. Tombstoned slots
// are skipped without invoking the predicate.
func (o *Orby) Query(ctx context.Context, laneIdx int, pred Predicate, limit int) ([]Row, error) {
	start := time.Now()

	rows, err := o.query(ctx, laneIdx, pred, limit)

	o.metrics.RecordQuery(len(rows), time.Since(start), err)
	o.logger.LogQuery(ctx, laneIdx, limit, len(rows), err)
	return rows, err
}

func (o *Orby) query(ctx context.Context, laneIdx int, pred Predicate, limit int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pred == nil {
		return nil, ErrNilPredicate
	}
	if laneIdx < 0 || laneIdx >= o.laneCount {
		return nil, &IndexOutOfRangeError{Index: laneIdx, Bound: o.laneCount}
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return nil, ErrClosed
	}

	matches, err := o.scanMatches(ctx, o.lanes[laneIdx], pred, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(matches))
	for k, i := range matches {
		rows[k] = o.rowAt(i)
	}
	return rows, nil
}

// FindIndices is Query without materialization: it returns the matching
// indices instead of rows.
func (o *Orby) FindIndices(ctx context.Context, laneIdx int, pred Predicate, limit int) ([]int, error) {
	start := time.Now()

	matches, err := o.findIndices(ctx, laneIdx, pred, limit)

	o.metrics.RecordQuery(len(matches), time.Since(start), err)
	o.logger.LogQuery(ctx, laneIdx, limit, len(matches), err)
	return matches, err
}

func (o *Orby) findIndices(ctx context.Context, laneIdx int, pred Predicate, limit int) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pred == nil {
		return nil, ErrNilPredicate
	}
	if laneIdx < 0 || laneIdx >= o.laneCount {
		return nil, &IndexOutOfRangeError{Index: laneIdx, Bound: o.laneCount}
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return nil, ErrClosed
	}
	return o.scanMatches(ctx, o.lanes[laneIdx], pred, limit)
}

// FindBy returns rows whose cell in laneIdx equals any of the keys, in
// ascending index order, capped by limit (0 means all).
func (o *Orby) FindBy(ctx context.Context, laneIdx int, keys []cell.Cell, limit int) ([]Row, error) {
	switch len(keys) {
	case 0:
		return nil, nil
	case 1:
		key := keys[0]
		return o.Query(ctx, laneIdx, func(c cell.Cell) bool { return c == key }, limit)
	default:
		set := make(map[cell.Cell]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		return o.Query(ctx, laneIdx, func(c cell.Cell) bool {
			_, ok := set[c]
			return ok
		}, limit)
	}
}

// FindRange returns rows whose cell in laneIdx falls within [lo, hi]
// under unsigned 128-bit ordering.
func (o *Orby) FindRange(ctx context.Context, laneIdx int, lo, hi cell.Cell, limit int) ([]Row, error) {
	return o.Query(ctx, laneIdx, func(c cell.Cell) bool {
		return c.Compare(lo) >= 0 && c.Compare(hi) <= 0
	}, limit)
}

// At returns the row at a physical index. Tombstoned slots yield
// ErrNotFound; indices outside the occupied range yield
// *IndexOutOfRangeError.
func (o *Orby) At(index int) (Row, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return nil, ErrClosed
	}
	if index < 0 || index >= o.length {
		return nil, &IndexOutOfRangeError{Index: index, Bound: o.length}
	}
	if !o.occupied.Contains(uint32(index)) {
		return nil, ErrNotFound
	}
	return o.rowAt(index), nil
}

// Take returns up to limit live rows, newest first. In ring mode "newest"
// walks backwards from the cursor through the wrap; in bounded mode it
// walks down from the end of the occupied range.
func (o *Orby) Take(limit int) []Row {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed || limit <= 0 || o.length == 0 {
		return nil
	}

	rows := make([]Row, 0, limit)
	i := o.cursor - 1
	if i < 0 {
		i = o.length - 1
	}
	for seen := 0; seen < o.length && len(rows) < limit; seen++ {
		if o.occupied.Contains(uint32(i)) {
			rows = append(rows, o.rowAt(i))
		}
		i--
		if i < 0 {
			i = o.length - 1
		}
	}
	return rows
}

// scanMatches runs the predicate across the occupied range and returns
// matching indices ascending. Large ranges are split into fixed chunks
// scanned by a worker per core; with a limit, workers cooperatively stop
// once every chunk before the limit-satisfying one has finished, so the
// result is identical to a sequential scan. Callers hold at least the read
// lock.
func (o *Orby) scanMatches(ctx context.Context, target *lane.Lane, pred Predicate, limit int) ([]int, error) {
	n := o.length
	if n == 0 {
		return nil, nil
	}
	if n < minParallelScan {
		return o.scanSequential(target, pred, limit, n), nil
	}

	const chunkSize = 2048
	numChunks := (n + chunkSize - 1) / chunkSize
	results := make([][]int, numChunks)

	// Chunks report completion; once the complete prefix of chunks holds
	// enough matches, chunks past the cutoff may be abandoned. Chunks at or
	// before the cutoff always finish, which keeps results deterministic.
	var (
		trackMu       sync.Mutex
		done          = make([]bool, numChunks)
		prefixDone    int
		prefixMatches int
		cutoff        atomic.Int64
	)
	cutoff.Store(int64(numChunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for ci := 0; ci < numChunks; ci++ {
		ci := ci
		g.Go(func() error {
			if int64(ci) > cutoff.Load() {
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			lo := ci * chunkSize
			hi := min(lo+chunkSize, n)
			var found []int
			for i := lo; i < hi; i++ {
				if !o.occupied.Contains(uint32(i)) {
					continue
				}
				if pred(target.Get(i)) {
					found = append(found, i)
				}
			}
			results[ci] = found

			if limit > 0 {
				trackMu.Lock()
				done[ci] = true
				for prefixDone < numChunks && done[prefixDone] {
					prefixMatches += len(results[prefixDone])
					prefixDone++
				}
				if prefixMatches >= limit && int64(prefixDone-1) < cutoff.Load() {
					cutoff.Store(int64(prefixDone - 1))
				}
				trackMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []int
	for ci := 0; ci < numChunks; ci++ {
		out = append(out, results[ci]...)
		if limit > 0 && len(out) >= limit {
			out = out[:limit]
			break
		}
	}
	return out, nil
}

func (o *Orby) scanSequential(target *lane.Lane, pred Predicate, limit, n int) []int {
	var out []int
	for i := 0; i < n; i++ {
		if !o.occupied.Contains(uint32(i)) {
			continue
		}
		if pred(target.Get(i)) {
			out = append(out, i)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}
