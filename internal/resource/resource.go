// Package resource guards host resources: it validates lane allocations
// against available memory and throttles background vault IO.
package resource

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// MemoryBudget describes the outcome of a memory safety check.
type MemoryBudget struct {
	RequiredBytes  uint64
	AvailableBytes uint64
	Fits           bool
}

// CheckMemory verifies that required bytes fit within limit. When limit is
// zero, the host's available memory scaled by usageRatio is used instead.
// The probe failing (containers without /proc, exotic platforms) disables
// the check rather than refusing to start.
func CheckMemory(required uint64, limit uint64, usageRatio float64) MemoryBudget {
	if limit == 0 {
		vm, err := mem.VirtualMemory()
		if err != nil || vm.Available == 0 {
			return MemoryBudget{RequiredBytes: required, Fits: true}
		}
		limit = uint64(float64(vm.Available) * usageRatio)
	}
	return MemoryBudget{
		RequiredBytes:  required,
		AvailableBytes: limit,
		Fits:           required <= limit,
	}
}

// Config holds limits for a Controller.
type Config struct {
	// MaxWriters bounds concurrent vault write workers. Defaults to 1 when
	// not positive.
	MaxWriters int64
	// IOLimitBytesPerSec throttles vault IO. Zero means unlimited.
	IOLimitBytesPerSec int64
}

// Controller throttles background IO and bounds write-worker concurrency.
// A nil Controller is valid and imposes no limits.
type Controller struct {
	writers   *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a Controller from cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxWriters <= 0 {
		cfg.MaxWriters = 1
	}
	c := &Controller{
		writers: semaphore.NewWeighted(cfg.MaxWriters),
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireWriter reserves a write-worker slot, blocking until one is free.
func (c *Controller) AcquireWriter(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.writers.Acquire(ctx, 1)
}

// ReleaseWriter returns a write-worker slot.
func (c *Controller) ReleaseWriter() {
	if c == nil {
		return
	}
	c.writers.Release(1)
}

// WaitIO blocks until n bytes of IO budget are available.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}
	// rate.Limiter caps a single reservation at its burst; split large
	// requests so lane files bigger than the burst still pass.
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
