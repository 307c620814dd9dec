package orby

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orbyio/orby/cell"
)

// Delete removes the row at a physical index.
//
// With compaction enabled every later row shifts left by one in all lanes,
// the freed tail slot is zeroed and the cursor lands on the new end of the
// occupied range; indices of later rows change. Without compaction the slot
// is zeroed in place and tombstoned; all indices stay stable and the cursor
// does not move.
func (o *Orby) Delete(ctx context.Context, index int) error {
	start := time.Now()

	err := o.delete(ctx, index)

	o.metrics.RecordDelete(time.Since(start), err)
	o.logger.LogDelete(ctx, index, err)
	return err
}

func (o *Orby) delete(ctx context.Context, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if index < 0 || index >= o.length {
		return &IndexOutOfRangeError{Index: index, Bound: o.length}
	}

	o.deleteLocked(index)
	if o.log != nil {
		return o.log.AppendDelete(index)
	}
	return nil
}

func (o *Orby) deleteLocked(index int) {
	if o.compaction {
		o.compactOut(index)
		return
	}
	for _, l := range o.lanes {
		l.Zero(index)
	}
	o.occupied.Remove(uint32(index))
}

// compactOut shifts the suffix after index left by one in every lane.
// Lanes are independent slabs, so the shifts run in parallel. Compacting
// stores hold no tombstones, which keeps the occupancy range dense.
func (o *Orby) compactOut(index int) {
	var g errgroup.Group
	for _, l := range o.lanes {
		l := l
		g.Go(func() error {
			l.ShiftLeft(index, o.length)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // shift workers cannot fail

	o.length--
	o.occupied.Remove(uint32(o.length))
	o.cursor = o.length
}

// PurgeByKey removes every live row whose cell in laneIdx equals key and
// returns the number removed. Under compaction the matches are removed
// highest index first so earlier shifts cannot invalidate later ones.
func (o *Orby) PurgeByKey(ctx context.Context, laneIdx int, key cell.Cell) (int, error) {
	start := time.Now()

	removed, err := o.purgeByKey(ctx, laneIdx, key)

	o.metrics.RecordDelete(time.Since(start), err)
	o.logger.LogPurge(ctx, laneIdx, removed, err)
	return removed, err
}

func (o *Orby) purgeByKey(ctx context.Context, laneIdx int, key cell.Cell) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if laneIdx < 0 || laneIdx >= o.laneCount {
		return 0, &IndexOutOfRangeError{Index: laneIdx, Bound: o.laneCount}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, ErrClosed
	}

	removed := o.purgeByKeyLocked(laneIdx, key)
	if o.log != nil && removed > 0 {
		if err := o.log.AppendPurge(laneIdx, key); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (o *Orby) purgeByKeyLocked(laneIdx int, key cell.Cell) int {
	matches := o.matchKeyLocked(laneIdx, key)
	for k := len(matches) - 1; k >= 0; k-- {
		o.deleteLocked(matches[k])
	}
	return len(matches)
}

// matchKeyLocked returns ascending indices of live rows whose cell in
// laneIdx equals key. Callers hold the lock.
func (o *Orby) matchKeyLocked(laneIdx int, key cell.Cell) []int {
	target := o.lanes[laneIdx]
	var matches []int
	for i := 0; i < o.length; i++ {
		if !o.occupied.Contains(uint32(i)) {
			continue
		}
		if target.Get(i) == key {
			matches = append(matches, i)
		}
	}
	return matches
}

// UpdateByKey rewrites every live row whose cell in laneIdx equals key with
// the given row, in place, and returns the number rewritten. Indices and
// cursor never move.
func (o *Orby) UpdateByKey(ctx context.Context, laneIdx int, key cell.Cell, row Row) (int, error) {
	start := time.Now()

	updated, err := o.updateByKey(ctx, laneIdx, key, row)

	o.metrics.RecordUpdate(time.Since(start), err)
	if err != nil {
		o.logger.ErrorContext(ctx, "update failed", "lane", laneIdx, "error", err)
	} else {
		o.logger.DebugContext(ctx, "update completed", "lane", laneIdx, "updated", updated)
	}
	return updated, err
}

func (o *Orby) updateByKey(ctx context.Context, laneIdx int, key cell.Cell, row Row) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if laneIdx < 0 || laneIdx >= o.laneCount {
		return 0, &IndexOutOfRangeError{Index: laneIdx, Bound: o.laneCount}
	}
	if len(row) != o.laneCount {
		return 0, &ShapeMismatchError{Expected: o.laneCount, Actual: len(row)}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, ErrClosed
	}

	updated := o.updateByKeyLocked(laneIdx, key, row)
	if o.log != nil && updated > 0 {
		if err := o.log.AppendUpdate(laneIdx, key, row); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func (o *Orby) updateByKeyLocked(laneIdx int, key cell.Cell, row Row) int {
	matches := o.matchKeyLocked(laneIdx, key)
	for _, i := range matches {
		o.setRowAt(i, row)
	}
	return len(matches)
}

// Upsert rewrites rows matching key in laneIdx, or inserts row at the
// cursor when no live row matches. It returns the number of rows updated;
// zero means the row was inserted.
func (o *Orby) Upsert(ctx context.Context, laneIdx int, key cell.Cell, row Row) (int, error) {
	start := time.Now()

	updated, err := o.upsert(ctx, laneIdx, key, row)

	o.metrics.RecordUpdate(time.Since(start), err)
	if err != nil {
		o.logger.ErrorContext(ctx, "upsert failed", "lane", laneIdx, "error", err)
	} else {
		o.logger.DebugContext(ctx, "upsert completed", "lane", laneIdx, "updated", updated)
	}
	return updated, err
}

func (o *Orby) upsert(ctx context.Context, laneIdx int, key cell.Cell, row Row) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if laneIdx < 0 || laneIdx >= o.laneCount {
		return 0, &IndexOutOfRangeError{Index: laneIdx, Bound: o.laneCount}
	}
	if len(row) != o.laneCount {
		return 0, &ShapeMismatchError{Expected: o.laneCount, Actual: len(row)}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, ErrClosed
	}

	if updated := o.updateByKeyLocked(laneIdx, key, row); updated > 0 {
		if o.log != nil {
			if err := o.log.AppendUpdate(laneIdx, key, row); err != nil {
				return updated, err
			}
		}
		return updated, nil
	}

	if _, err := o.insertRowsLocked([]Row{row}); err != nil {
		return 0, err
	}
	if o.log != nil {
		if err := o.log.AppendInsert(cellRows([]Row{row})); err != nil {
			return 0, err
		}
	}
	return 0, nil
}
