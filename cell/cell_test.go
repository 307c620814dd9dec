package cell

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellBytesRoundTrip(t *testing.T) {
	c := New(0xDEADBEEFCAFEBABE, 0x0123456789ABCDEF)
	got := FromBytes(c.Bytes())
	assert.Equal(t, c, got)
}

func TestCellByteLayout(t *testing.T) {
	// Lo occupies the first eight bytes, little-endian.
	c := FromUint64(1)
	b := c.Bytes()
	assert.Equal(t, byte(1), b[0])
	for i := 1; i < Size; i++ {
		assert.Equal(t, byte(0), b[i], "byte %d", i)
	}
}

func TestCellUUIDRoundTrip(t *testing.T) {
	u := uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")
	c := FromUUID(u)
	assert.Equal(t, u, c.UUID())
}

func TestCellIsZero(t *testing.T) {
	assert.True(t, Zero.IsZero())
	assert.True(t, Cell{}.IsZero())
	assert.False(t, FromUint64(1).IsZero())
	assert.False(t, New(1, 0).IsZero())
}

func TestCellCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Cell
		want int
	}{
		{"equal", New(1, 2), New(1, 2), 0},
		{"lo decides", New(0, 1), New(0, 2), -1},
		{"hi dominates lo", New(1, 0), New(0, ^uint64(0)), 1},
		{"zero smallest", Zero, New(0, 1), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
		})
	}
}

func TestCellAppendBytes(t *testing.T) {
	a := FromUint64(7)
	b := FromUint64(9)
	buf := a.AppendBytes(nil)
	buf = b.AppendBytes(buf)
	require.Len(t, buf, 2*Size)

	var first, second [Size]byte
	copy(first[:], buf[:Size])
	copy(second[:], buf[Size:])
	assert.Equal(t, a, FromBytes(first))
	assert.Equal(t, b, FromBytes(second))
}
