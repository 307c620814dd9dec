package lane

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbyio/orby/cell"
)

func TestLaneSetGet(t *testing.T) {
	l := New(4)
	require.Equal(t, 4, l.Cap())

	c := cell.New(1, 2)
	l.Set(2, c)
	assert.Equal(t, c, l.Get(2))
	assert.Equal(t, cell.Zero, l.Get(0))
}

func TestLaneZero(t *testing.T) {
	l := New(3)
	l.Set(1, cell.FromUint64(7))
	l.Zero(1)
	assert.Equal(t, cell.Zero, l.Get(1))
}

func TestLaneZeroAll(t *testing.T) {
	l := New(3)
	for i := 0; i < 3; i++ {
		l.Set(i, cell.FromUint64(uint64(i+1)))
	}
	l.ZeroAll()
	for i := 0; i < 3; i++ {
		assert.True(t, l.Get(i).IsZero(), "slot %d", i)
	}
}

func TestLaneShiftLeft(t *testing.T) {
	l := New(5)
	for i := 0; i < 4; i++ {
		l.Set(i, cell.FromUint64(uint64((i+1)*10)))
	}

	// Remove index 1 from the occupied range [0, 4).
	l.ShiftLeft(1, 4)

	assert.Equal(t, cell.FromUint64(10), l.Get(0))
	assert.Equal(t, cell.FromUint64(30), l.Get(1))
	assert.Equal(t, cell.FromUint64(40), l.Get(2))
	assert.Equal(t, cell.Zero, l.Get(3))
}

func TestLaneShiftLeftLast(t *testing.T) {
	l := New(3)
	l.Set(0, cell.FromUint64(1))
	l.Set(1, cell.FromUint64(2))

	l.ShiftLeft(1, 2)

	assert.Equal(t, cell.FromUint64(1), l.Get(0))
	assert.Equal(t, cell.Zero, l.Get(1))
}

func TestLaneBytesLayout(t *testing.T) {
	l := New(2)
	l.Set(0, cell.FromUint64(1))
	l.Set(1, cell.New(2, 3))

	b := l.Bytes()
	require.Len(t, b, 2*cell.Size)

	// Little-endian cells back to back.
	assert.Equal(t, byte(1), b[0])
	assert.Equal(t, byte(3), b[16])
	assert.Equal(t, byte(2), b[24])
}

func TestLaneBytesAliasesCells(t *testing.T) {
	l := New(1)
	b := l.Bytes()
	b[0] = 42
	assert.Equal(t, cell.FromUint64(42), l.Get(0))
}
