// Package lane implements the fixed-capacity contiguous Cell array backing
// one dimension of the engine.
//
// A Lane is a raw slab: it knows nothing about cursors, occupancy or
// policies. The engine owns those and drives lanes strictly through indexed
// access, suffix shifts and byte views.
package lane

import (
	"fmt"
	"unsafe"

	"github.com/orbyio/orby/cell"
)

// init verifies the host is little-endian: Bytes exposes the Cell slab as
// its on-disk little-endian encoding without copying, which is only correct
// when memory order matches wire order.
func init() {
	var test uint16 = 0x0001
	if *(*byte)(unsafe.Pointer(&test)) != 1 {
		panic("orby/lane: big-endian hosts are not supported")
	}
}

// Lane is one dimension's fixed-length, zero-initialized sequence of Cells.
type Lane struct {
	cells []cell.Cell
}

// New creates a Lane with the given capacity, all slots zeroed.
func New(capacity int) *Lane {
	if capacity <= 0 {
		panic(fmt.Sprintf("orby/lane: invalid capacity %d", capacity))
	}
	return &Lane{cells: make([]cell.Cell, capacity)}
}

// Cap returns the fixed capacity of the lane.
func (l *Lane) Cap() int {
	return len(l.cells)
}

// Get returns the Cell at index i.
func (l *Lane) Get(i int) cell.Cell {
	return l.cells[i]
}

// Set writes c at index i.
func (l *Lane) Set(i int, c cell.Cell) {
	l.cells[i] = c
}

// Zero clears the slot at index i to the empty sentinel.
func (l *Lane) Zero(i int) {
	l.cells[i] = cell.Zero
}

// ZeroAll clears every slot.
func (l *Lane) ZeroAll() {
	clear(l.cells)
}

// ShiftLeft moves cells[from+1:to] one position left and zeroes the vacated
// slot at to-1. It implements compacting deletion of the row at from within
// the occupied range [0, to).
func (l *Lane) ShiftLeft(from, to int) {
	if from < 0 || to > len(l.cells) || from >= to {
		return
	}
	copy(l.cells[from:to-1], l.cells[from+1:to])
	l.cells[to-1] = cell.Zero
}

// Bytes returns the lane's slab as its little-endian wire encoding, exactly
// Cap()*cell.Size bytes. The view aliases lane memory in both directions:
// persistence reads it during sleep and copies into it during load.
func (l *Lane) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&l.cells[0])), len(l.cells)*cell.Size)
}
