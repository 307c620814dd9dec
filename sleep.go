package orby

import (
	"context"
	"fmt"
	"time"

	"github.com/orbyio/orby/aof"
	"github.com/orbyio/orby/vault"
)

// Sleep persists every lane to the vault behind a full fsync barrier: all
// lane files are written to temp files and synced before any of them
// replaces the previous generation, then the directory entry itself is
// synced. On success the operation log is reset; the vault is now the
// checkpoint.
//
// Sleep holds the write lock for the duration, so it cannot interleave
// with mutations.
func (o *Orby) Sleep(ctx context.Context) error {
	start := time.Now()

	err := o.sleep(ctx)

	o.metrics.RecordSleep(time.Since(start), err)
	if o.vault != nil {
		o.logger.LogSleep(ctx, o.vault.Dir(), err)
	}
	return err
}

func (o *Orby) sleep(ctx context.Context) error {
	if o.vault == nil {
		return ErrNoVault
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	return o.sleepLocked(ctx)
}

func (o *Orby) sleepLocked(ctx context.Context) error {
	if err := o.vault.Write(ctx, o.laneBytesLocked()); err != nil {
		return err
	}
	if o.log != nil {
		if err := o.log.Reset(); err != nil {
			return fmt.Errorf("vault synced but log checkpoint failed: %w", err)
		}
	}
	return nil
}

// SnapshotTo writes the engine state to a single self-describing file.
// Unlike the vault it records length and cursor exactly, so a restore does
// not depend on cell contents.
func (o *Orby) SnapshotTo(ctx context.Context, path string, compress bool) error {
	err := o.snapshotTo(ctx, path, compress)
	o.logger.LogSnapshot(ctx, path, err)
	return err
}

func (o *Orby) snapshotTo(ctx context.Context, path string, compress bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}

	meta := vault.SnapshotMeta{
		Name:       o.name,
		Capacity:   o.capacity,
		Length:     o.length,
		Cursor:     o.cursor,
		Lanes:      o.laneCount,
		Compressed: compress,
	}
	return vault.WriteSnapshot(o.fsys, path, meta, o.laneBytesLocked())
}

// Close syncs the vault when one is configured, closes the operation log
// and marks the engine closed. Close is idempotent.
func (o *Orby) Close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}

	var err error
	if o.vault != nil {
		err = o.sleepLocked(ctx)
	}
	if o.log != nil {
		if cerr := o.log.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	o.closed = true
	return err
}

// loadVault fills the lanes from the configured vault and rebuilds the
// bookkeeping the headerless lane files cannot carry. It returns whether a
// vault was found.
func (o *Orby) loadVault(ctx context.Context) (bool, error) {
	loaded, err := o.vault.Load(ctx, o.laneBytesLocked())
	if err != nil || !loaded {
		return loaded, err
	}
	o.rebuildState()
	return true, nil
}

// rebuildState reconstructs occupancy, length and cursor from cell
// contents. A row is live when any of its cells is non-zero; the occupied
// range ends at the highest live row. An all-zero row therefore cannot be
// distinguished from a tombstone across a reload.
func (o *Orby) rebuildState() {
	o.occupied.Clear()
	highest := -1
	for i := 0; i < o.capacity; i++ {
		live := false
		for _, l := range o.lanes {
			if !l.Get(i).IsZero() {
				live = true
				break
			}
		}
		if live {
			o.occupied.Add(uint32(i))
			highest = i
		}
	}
	o.length = highest + 1
	if o.mode == ModeRing {
		o.cursor = o.length % o.capacity
	} else {
		o.cursor = o.length
	}
}

// restoreSnapshot fills the lanes from a snapshot file. The snapshot's
// geometry must match the engine's.
func (o *Orby) restoreSnapshot(path string) error {
	meta, err := vault.ReadSnapshot(o.fsys, path, o.laneBytesLocked())
	if err != nil {
		return err
	}
	if meta.Capacity != o.capacity || meta.Lanes != o.laneCount {
		return &ConfigError{
			Field:  "restore",
			Reason: fmt.Sprintf("snapshot geometry %dx%d does not match engine %dx%d", meta.Capacity, meta.Lanes, o.capacity, o.laneCount),
		}
	}
	o.length = meta.Length
	o.cursor = meta.Cursor
	o.occupied.Clear()
	for i := 0; i < o.length; i++ {
		live := false
		for _, l := range o.lanes {
			if !l.Get(i).IsZero() {
				live = true
				break
			}
		}
		if live {
			o.occupied.Add(uint32(i))
		}
	}
	return nil
}

// applyLogEntry replays one operation log record against in-memory state.
// Replay bypasses the public methods so nothing is re-logged.
func (o *Orby) applyLogEntry(e aof.Entry) error {
	switch e.Op {
	case aof.OpInsert:
		_, err := o.insertRowsLocked([]Row{Row(e.Row)})
		return err
	case aof.OpDelete:
		if int(e.Index) >= o.length {
			return nil // deleted row was never vaulted; nothing to undo
		}
		o.deleteLocked(int(e.Index))
		return nil
	case aof.OpPurge:
		o.purgeByKeyLocked(int(e.Lane), e.Key)
		return nil
	case aof.OpUpdate:
		o.updateByKeyLocked(int(e.Lane), e.Key, Row(e.Row))
		return nil
	case aof.OpTruncate:
		o.truncateLocked()
		return nil
	default:
		return fmt.Errorf("replay: unknown op %s", e.Op)
	}
}
