// Package orby provides an embedded columnar index engine for fixed-width
// 128-bit cells.
//
// This file implements the fluent builder API for creating and configuring
// engine instances. The builder is immutable - each method returns a new
// builder with the updated configuration.
package orby

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/orbyio/orby/aof"
	"github.com/orbyio/orby/cell"
	"github.com/orbyio/orby/internal/fs"
	"github.com/orbyio/orby/internal/lane"
	"github.com/orbyio/orby/internal/resource"
	"github.com/orbyio/orby/vault"
)

// SnapshotExt is the file extension restore treats as a snapshot.
const SnapshotExt = ".orby"

// LogExt is the file extension restore treats as an operation log.
const LogExt = ".aof"

// New creates an engine builder with the given name. The name tags log
// output and becomes the vault subdirectory.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. This ensures thread-safety and prevents accidental
// state sharing.
//
// Example:
//
//	eng, err := orby.New("sessions").
//	    Capacity(1_000_000).
//	    Lanes(3).
//	    Ring().
//	    WithVault("/var/lib/orby").
//	    Build(ctx)
func New(name string) Builder {
	return Builder{
		name:       name,
		capacity:   10_000,
		lanes:      2,
		mode:       ModeRing,
		autoload:   true,
		strict:     true,
		usageRatio: 0.8,
		fsys:       fs.Default,
	}
}

// Builder is an immutable fluent builder for engine instances.
type Builder struct {
	name        string
	capacity    int
	lanes       int
	mode        Mode
	compaction  bool
	vaultDir    string
	aofPath     string
	aofOptFns   []func(*aof.Options)
	restorePath string
	autoload    bool
	strict      bool
	memoryLimit uint64
	usageRatio  float64
	ioLimit     int64
	logger      *Logger
	metrics     MetricsCollector
	fsys        fs.FileSystem
}

// Capacity sets the fixed number of row slots per lane.
// Default: 10000.
func (b Builder) Capacity(n int) Builder {
	b.capacity = n
	return b
}

// Lanes sets the number of lanes (cells per row).
// Default: 2.
func (b Builder) Lanes(n int) Builder {
	b.lanes = n
	return b
}

// Ring makes the cursor wrap at capacity, overwriting the oldest rows.
// This is the default.
func (b Builder) Ring() Builder {
	b.mode = ModeRing
	return b
}

// Bounded makes inserts fail with *CapacityExceededError once full.
func (b Builder) Bounded() Builder {
	b.mode = ModeBounded
	return b
}

// WithCompaction selects compacting deletes: rows after a deleted index
// shift left, keeping the store dense at the cost of index stability.
// Default: false (tombstoning).
func (b Builder) WithCompaction(enabled bool) Builder {
	b.compaction = enabled
	return b
}

// WithVault enables durable lane files under dir/<name>.
func (b Builder) WithVault(dir string) Builder {
	b.vaultDir = dir
	return b
}

// WithAOF enables an operation log at path. Mutations since the last Sleep
// are replayed from it on startup.
func (b Builder) WithAOF(path string, optFns ...func(*aof.Options)) Builder {
	b.aofPath = path
	b.aofOptFns = optFns
	return b
}

// WithAutoload controls loading the vault during Build.
// Default: true.
func (b Builder) WithAutoload(enabled bool) Builder {
	b.autoload = enabled
	return b
}

// WithStrictCheck controls the memory safety check and vault integrity
// validation. Default: true.
func (b Builder) WithStrictCheck(enabled bool) Builder {
	b.strict = enabled
	return b
}

// WithMemoryLimit caps lane memory at an explicit byte budget instead of a
// share of the host's available memory.
func (b Builder) WithMemoryLimit(bytes uint64) Builder {
	b.memoryLimit = bytes
	return b
}

// WithUsageRatio sets the share of available host memory the lanes may
// occupy when no explicit limit is set. Default: 0.8.
func (b Builder) WithUsageRatio(ratio float64) Builder {
	b.usageRatio = ratio
	return b
}

// WithIOLimit throttles vault writes to the given bytes per second.
// Default: unlimited.
func (b Builder) WithIOLimit(bytesPerSec int64) Builder {
	b.ioLimit = bytesPerSec
	return b
}

// RestoreFrom primes the engine from path during Build instead of the
// autoloaded vault: a *.orby file restores a snapshot, a directory loads a
// foreign vault, a *.aof file replays an operation log.
func (b Builder) RestoreFrom(path string) Builder {
	b.restorePath = path
	return b
}

// WithLogger sets the structured logger.
// Default: logging disabled.
func (b Builder) WithLogger(logger *Logger) Builder {
	b.logger = logger
	return b
}

// WithLogLevel enables text logging to stderr at the given level.
func (b Builder) WithLogLevel(level slog.Level) Builder {
	b.logger = NewTextLogger(level)
	return b
}

// WithMetrics sets the metrics collector.
// Default: metrics disabled.
func (b Builder) WithMetrics(collector MetricsCollector) Builder {
	b.metrics = collector
	return b
}

// WithFS overrides the filesystem, primarily for fault-injection tests.
func (b Builder) WithFS(fsys fs.FileSystem) Builder {
	b.fsys = fsys
	return b
}

// Build validates the configuration, allocates the lanes and primes state
// from the vault, a restore source and the operation log.
func (b Builder) Build(ctx context.Context) (*Orby, error) {
	if b.name == "" {
		return nil, &ConfigError{Field: "name", Reason: "must not be empty"}
	}
	if b.capacity <= 0 {
		return nil, &ConfigError{Field: "capacity", Reason: "must be positive"}
	}
	if b.lanes <= 0 {
		return nil, &ConfigError{Field: "lanes", Reason: "must be positive"}
	}
	if b.usageRatio <= 0 || b.usageRatio > 1 {
		return nil, &ConfigError{Field: "usageRatio", Reason: "must be in (0, 1]"}
	}
	fsys := b.fsys
	if fsys == nil {
		fsys = fs.Default
	}
	logger := b.logger
	if logger == nil {
		logger = NoopLogger()
	}
	logger = logger.WithName(b.name)
	metrics := b.metrics
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}

	required := uint64(b.capacity) * uint64(b.lanes) * cell.Size
	if b.strict {
		if budget := resource.CheckMemory(required, b.memoryLimit, b.usageRatio); !budget.Fits {
			return nil, &InsufficientMemoryError{
				RequiredBytes:  budget.RequiredBytes,
				AvailableBytes: budget.AvailableBytes,
			}
		}
	}

	lanes := make([]*lane.Lane, b.lanes)
	for i := range lanes {
		lanes[i] = lane.New(b.capacity)
	}

	o := &Orby{
		name:       b.name,
		capacity:   b.capacity,
		laneCount:  b.lanes,
		mode:       b.mode,
		compaction: b.compaction,
		lanes:      lanes,
		occupied:   roaring.New(),
		fsys:       fsys,
		logger:     logger,
		metrics:    metrics,
	}

	if b.vaultDir != "" {
		ctrl := resource.NewController(resource.Config{
			MaxWriters:         int64(min(runtime.GOMAXPROCS(0), b.lanes)),
			IOLimitBytesPerSec: b.ioLimit,
		})
		o.vault = vault.New(filepath.Join(b.vaultDir, b.name), b.capacity, b.lanes, func(opts *vault.Options) {
			opts.FS = fsys
			opts.Controller = ctrl
			opts.Strict = b.strict
		})
	}

	switch {
	case b.restorePath != "":
		if err := o.restoreFrom(ctx, b.restorePath); err != nil {
			return nil, err
		}
	case o.vault != nil && b.autoload:
		loaded, err := o.loadVault(ctx)
		logger.LogLoad(ctx, o.vault.Dir(), loaded, err)
		if err != nil {
			return nil, err
		}
	}

	if b.aofPath != "" {
		optFns := append([]func(*aof.Options){func(opts *aof.Options) {
			opts.FS = fsys
		}}, b.aofOptFns...)
		log, err := aof.Open(b.aofPath, b.lanes, optFns...)
		if err != nil {
			return nil, err
		}
		replayed, err := log.Replay(o.applyLogEntry)
		logger.LogReplay(ctx, replayed, err)
		if err != nil {
			log.Close()
			return nil, err
		}
		o.log = log
	}

	return o, nil
}

// restoreFrom primes state from an explicit source, dispatching on shape:
// snapshot file, vault directory or operation log.
func (o *Orby) restoreFrom(ctx context.Context, path string) error {
	switch {
	case strings.HasSuffix(path, SnapshotExt):
		return o.restoreSnapshot(path)
	case strings.HasSuffix(path, LogExt):
		log, err := aof.Open(path, o.laneCount, func(opts *aof.Options) {
			opts.FS = o.fsys
		})
		if err != nil {
			return err
		}
		defer log.Close()
		_, err = log.Replay(o.applyLogEntry)
		return err
	default:
		info, err := o.fsys.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return &ConfigError{Field: "restore", Reason: "path is neither a snapshot, a log nor a vault directory"}
		}
		src := vault.New(path, o.capacity, o.laneCount, func(opts *vault.Options) {
			opts.FS = o.fsys
		})
		loaded, err := src.Load(ctx, o.laneBytesLocked())
		if err != nil {
			return err
		}
		if !loaded {
			return &ConfigError{Field: "restore", Reason: "vault directory holds no lane files"}
		}
		o.rebuildState()
		return nil
	}
}
