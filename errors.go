package orby

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine is closed")

	// ErrNotFound indicates the addressed slot holds no live row.
	ErrNotFound = errors.New("not found")

	// ErrNilPredicate is returned when a query predicate is nil.
	ErrNilPredicate = errors.New("predicate must not be nil")

	// ErrNoVault is returned by Sleep when no vault directory is configured.
	ErrNoVault = errors.New("no vault configured")
)

// ConfigError indicates an invalid builder configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// ShapeMismatchError indicates a row whose cell count differs from the
// engine's lane count. Row is the offending row's position within the
// batch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ShapeMismatchError struct {
	Expected int
	Actual   int
	Row      int
	cause    error
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch at row %d: expected %d cells, got %d", e.Row, e.Expected, e.Actual)
}

func (e *ShapeMismatchError) Unwrap() error { return e.cause }

// CapacityExceededError indicates a bounded engine ran out of space.
// Inserted reports how many rows of the batch were committed before the
// store filled; those rows remain committed.
type CapacityExceededError struct {
	Capacity int
	Inserted int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity %d exceeded after inserting %d rows", e.Capacity, e.Inserted)
}

// IndexOutOfRangeError indicates an index outside the valid range [0, Bound).
type IndexOutOfRangeError struct {
	Index int
	Bound int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Bound)
}

// InsufficientMemoryError indicates the configured geometry does not fit
// within the memory budget.
type InsufficientMemoryError struct {
	RequiredBytes  uint64
	AvailableBytes uint64
}

func (e *InsufficientMemoryError) Error() string {
	return fmt.Sprintf("insufficient memory: lanes require %d bytes, budget is %d bytes", e.RequiredBytes, e.AvailableBytes)
}
