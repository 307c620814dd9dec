package orby

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/orbyio/orby/aof"
	"github.com/orbyio/orby/cell"
	"github.com/orbyio/orby/internal/fs"
	"github.com/orbyio/orby/internal/lane"
	"github.com/orbyio/orby/vault"
)

// Row is one logical record: exactly one cell per lane, in lane order.
type Row []cell.Cell

// Predicate tests one cell during a lane scan.
type Predicate func(c cell.Cell) bool

// Mode selects the addressing discipline once capacity is reached.
type Mode int

const (
	// ModeRing wraps the cursor and overwrites the oldest rows.
	ModeRing Mode = iota
	// ModeBounded rejects inserts once the store is full.
	ModeBounded
)

func (m Mode) String() string {
	switch m {
	case ModeRing:
		return "ring"
	case ModeBounded:
		return "bounded"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Orby is a fixed-capacity columnar store of 128-bit cells. Each lane holds
// one column; all lanes share a single cursor, so cells written in the same
// insert occupy the same index in every lane.
//
// All exported methods are safe for concurrent use. Reads share the lock;
// mutations are exclusive. Parallelism happens inside operations (chunked
// query scans, per-lane vault IO), never across them.
type Orby struct {
	mu sync.RWMutex

	name       string
	capacity   int
	laneCount  int
	mode       Mode
	compaction bool

	lanes  []*lane.Lane
	cursor int
	length int // rows ever written live in [0, length)

	// occupied tracks live rows; tombstoned slots keep their index but
	// leave the bitmap.
	occupied *roaring.Bitmap

	vault   *vault.Vault
	log     *aof.Log
	fsys    fs.FileSystem
	logger  *Logger
	metrics MetricsCollector

	closed bool
}

// Name returns the engine name.
func (o *Orby) Name() string { return o.name }

// Cap returns the fixed per-lane capacity in rows.
func (o *Orby) Cap() int { return o.capacity }

// Lanes returns the number of lanes (cells per row).
func (o *Orby) Lanes() int { return o.laneCount }

// Mode returns the addressing mode.
func (o *Orby) Mode() Mode { return o.mode }

// Len returns the number of occupied physical slots, including tombstoned
// ones. In ring mode it grows to capacity and stays there.
func (o *Orby) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.length
}

// LiveCount returns the number of live rows, excluding tombstones.
func (o *Orby) LiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return int(o.occupied.GetCardinality())
}

// Cursor returns the index the next insert will write to.
func (o *Orby) Cursor() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cursor
}

// IsEmpty reports whether no live rows exist.
func (o *Orby) IsEmpty() bool {
	return o.LiveCount() == 0
}

// Meta is a point-in-time description of an engine.
type Meta struct {
	Name       string
	Capacity   int
	Lanes      int
	Mode       Mode
	Compaction bool
	Length     int
	LiveCount  int
	Cursor     int
}

// Meta returns a consistent snapshot of the engine's configuration and
// counters.
func (o *Orby) Meta() Meta {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Meta{
		Name:       o.name,
		Capacity:   o.capacity,
		Lanes:      o.laneCount,
		Mode:       o.mode,
		Compaction: o.compaction,
		Length:     o.length,
		LiveCount:  int(o.occupied.GetCardinality()),
		Cursor:     o.cursor,
	}
}

// rowAt materializes the row at physical index i. Callers hold the lock.
func (o *Orby) rowAt(i int) Row {
	row := make(Row, o.laneCount)
	for j, l := range o.lanes {
		row[j] = l.Get(i)
	}
	return row
}

// setRowAt writes a row vertically across all lanes. Callers hold the lock.
func (o *Orby) setRowAt(i int, row Row) {
	for j, l := range o.lanes {
		l.Set(i, row[j])
	}
}

// advanceCursor commits one written slot. Callers hold the lock and have
// verified a bounded store is not full.
func (o *Orby) advanceCursor() {
	if o.mode == ModeRing {
		o.cursor = (o.cursor + 1) % o.capacity
		if o.length < o.capacity {
			o.length++
		}
		return
	}
	o.cursor++
	o.length = o.cursor
}

// full reports whether a bounded store has no free slot. Ring stores are
// never full. Callers hold the lock.
func (o *Orby) full() bool {
	return o.mode == ModeBounded && o.cursor >= o.capacity
}

// validateShape checks every row of a batch before any write happens, so a
// malformed batch commits nothing.
func (o *Orby) validateShape(rows []Row) error {
	for i, row := range rows {
		if len(row) != o.laneCount {
			return &ShapeMismatchError{Expected: o.laneCount, Actual: len(row), Row: i}
		}
	}
	return nil
}

// laneBytesLocked returns the raw little-endian byte view of every lane.
// The views alias lane memory; callers hold the lock for the duration of
// any IO on them.
func (o *Orby) laneBytesLocked() [][]byte {
	bufs := make([][]byte, o.laneCount)
	for i, l := range o.lanes {
		bufs[i] = l.Bytes()
	}
	return bufs
}
