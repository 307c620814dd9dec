package orby

import (
	"context"
	"time"

	"github.com/orbyio/orby/cell"
)

// InsertBatch writes rows at the shared cursor, one slot per row, the same
// index in every lane. It returns the number of rows committed.
//
// The whole batch is shape-checked first; a malformed row rejects the batch
// with nothing written. In ring mode the batch always commits fully,
// overwriting the oldest rows once the store wraps. In bounded mode the
// batch commits row by row until the store fills, then returns a
// *CapacityExceededError alongside the count of rows that did commit.
func (o *Orby) InsertBatch(ctx context.Context, rows []Row) (int, error) {
	start := time.Now()

	inserted, err := o.insertBatch(ctx, rows)

	o.metrics.RecordBatchInsert(len(rows), len(rows)-inserted, time.Since(start))
	o.logger.LogBatchInsert(ctx, len(rows), inserted, err)
	return inserted, err
}

func (o *Orby) insertBatch(ctx context.Context, rows []Row) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := o.validateShape(rows); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, ErrClosed
	}

	inserted, err := o.insertRowsLocked(rows)
	if o.log != nil && inserted > 0 {
		if lerr := o.log.AppendInsert(cellRows(rows[:inserted])); lerr != nil && err == nil {
			// The rows are committed in memory; surface the logging failure
			// instead of pretending durability.
			err = lerr
		}
	}
	return inserted, err
}

// insertRowsLocked writes pre-validated rows. Callers hold the write lock.
func (o *Orby) insertRowsLocked(rows []Row) (int, error) {
	inserted := 0
	for _, row := range rows {
		if o.full() {
			return inserted, &CapacityExceededError{Capacity: o.capacity, Inserted: inserted}
		}
		pos := o.cursor
		o.setRowAt(pos, row)
		o.occupied.Add(uint32(pos))
		o.advanceCursor()
		inserted++
	}
	return inserted, nil
}

// Truncate clears the store and optionally refills it from rows in a single
// exclusive section. More rows than capacity is rejected up front.
func (o *Orby) Truncate(ctx context.Context, rows []Row) error {
	start := time.Now()

	err := o.truncate(ctx, rows)

	o.metrics.RecordDelete(time.Since(start), err)
	if err != nil {
		o.logger.ErrorContext(ctx, "truncate failed", "error", err)
	} else {
		o.logger.InfoContext(ctx, "truncate completed", "refilled", len(rows))
	}
	return err
}

func (o *Orby) truncate(ctx context.Context, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rows) > o.capacity {
		return &CapacityExceededError{Capacity: o.capacity, Inserted: 0}
	}
	if err := o.validateShape(rows); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	o.truncateLocked()
	if _, err := o.insertRowsLocked(rows); err != nil {
		return err
	}

	if o.log != nil {
		if err := o.log.AppendTruncate(); err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := o.log.AppendInsert(cellRows(rows)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orby) truncateLocked() {
	for _, l := range o.lanes {
		l.ZeroAll()
	}
	o.occupied.Clear()
	o.cursor = 0
	o.length = 0
}

// cellRows adapts []Row to the row slice type the operation log records.
func cellRows(rows []Row) [][]cell.Cell {
	out := make([][]cell.Cell, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
