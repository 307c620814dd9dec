// Package cell defines the fixed-width 128-bit value type stored in lanes.
package cell

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Size is the wire size of a Cell in bytes.
const Size = 16

// Cell is a 128-bit unsigned fixed-width value. It is immutable once written
// to a lane. The zero Cell doubles as the on-disk empty/tombstone sentinel;
// occupancy is tracked separately by the engine, so a stored zero remains a
// legal value.
//
// Field order is Lo-first so that on little-endian hosts the in-memory layout
// of a Cell slab matches the little-endian u128 wire format byte for byte.
type Cell struct {
	Lo uint64
	Hi uint64
}

// Zero is the empty/tombstone sentinel.
var Zero = Cell{}

// New creates a Cell from its high and low 64-bit halves.
func New(hi, lo uint64) Cell {
	return Cell{Hi: hi, Lo: lo}
}

// FromUint64 creates a Cell holding a small value.
func FromUint64(v uint64) Cell {
	return Cell{Lo: v}
}

// FromBytes decodes a Cell from 16 little-endian bytes.
func FromBytes(b [Size]byte) Cell {
	return Cell{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// FromUUID creates a Cell from a UUID, preserving its canonical big-endian
// byte order in the 128-bit value.
func FromUUID(u uuid.UUID) Cell {
	return Cell{
		Hi: binary.BigEndian.Uint64(u[0:8]),
		Lo: binary.BigEndian.Uint64(u[8:16]),
	}
}

// Bytes returns the 16-byte little-endian encoding of the Cell.
func (c Cell) Bytes() [Size]byte {
	var b [Size]byte
	binary.LittleEndian.PutUint64(b[0:8], c.Lo)
	binary.LittleEndian.PutUint64(b[8:16], c.Hi)
	return b
}

// AppendBytes appends the little-endian encoding of the Cell to dst.
func (c Cell) AppendBytes(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, c.Lo)
	return binary.LittleEndian.AppendUint64(dst, c.Hi)
}

// UUID returns the Cell interpreted as a UUID.
func (c Cell) UUID() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[0:8], c.Hi)
	binary.BigEndian.PutUint64(u[8:16], c.Lo)
	return u
}

// IsZero reports whether the Cell is the empty sentinel.
func (c Cell) IsZero() bool {
	return c.Lo == 0 && c.Hi == 0
}

// Compare returns -1, 0 or 1 comparing c and o as unsigned 128-bit integers.
func (c Cell) Compare(o Cell) int {
	switch {
	case c.Hi < o.Hi:
		return -1
	case c.Hi > o.Hi:
		return 1
	case c.Lo < o.Lo:
		return -1
	case c.Lo > o.Lo:
		return 1
	default:
		return 0
	}
}

// String returns the Cell as a 32-digit hex literal.
func (c Cell) String() string {
	return fmt.Sprintf("0x%016x%016x", c.Hi, c.Lo)
}
