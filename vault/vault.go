// Package vault persists lane slabs to disk, one file per lane, and loads
// them back on startup.
//
// The on-disk layout is deliberately dumb: lane_<i>.bin holds exactly
// capacity*16 bytes of little-endian cells, nothing else. All bookkeeping
// (cursor, occupancy) is reconstructed from cell contents on load. Writes
// go through a temp-file generation that is fully synced before any rename,
// so a crash mid-write never mixes two generations.
package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/orbyio/orby/cell"
	"github.com/orbyio/orby/internal/fs"
	"github.com/orbyio/orby/internal/mmap"
	"github.com/orbyio/orby/internal/resource"
)

const (
	laneFilePattern = "lane_%d.bin"
	tmpSuffix       = ".tmp"
)

// Options customizes a Vault.
type Options struct {
	// FS is the filesystem the vault operates on. Defaults to the local
	// filesystem.
	FS fs.FileSystem
	// Controller throttles write IO and bounds worker concurrency. Nil
	// means unthrottled with up to GOMAXPROCS workers.
	Controller *resource.Controller
	// Strict makes Load reject lane files with unexpected sizes instead of
	// reading what fits.
	Strict bool
}

// DefaultOptions returns the default vault options.
func DefaultOptions() Options {
	return Options{
		FS:     fs.Default,
		Strict: true,
	}
}

// Vault mirrors a fixed set of lanes into a directory.
type Vault struct {
	dir      string
	capacity int
	lanes    int
	fsys     fs.FileSystem
	ctrl     *resource.Controller
	strict   bool
}

// New creates a Vault rooted at dir for the given lane geometry. The
// directory is created lazily on the first write.
func New(dir string, capacity, lanes int, optFns ...func(*Options)) *Vault {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	return &Vault{
		dir:      dir,
		capacity: capacity,
		lanes:    lanes,
		fsys:     opts.FS,
		ctrl:     opts.Controller,
		strict:   opts.Strict,
	}
}

// Dir returns the vault directory.
func (v *Vault) Dir() string { return v.dir }

// LaneFile returns the path of the file backing lane i.
func (v *Vault) LaneFile(i int) string {
	return filepath.Join(v.dir, fmt.Sprintf(laneFilePattern, i))
}

func (v *Vault) laneSize() int64 {
	return int64(v.capacity) * cell.Size
}

// Write persists the given lane slabs. Each element of laneBytes must be
// exactly capacity*16 bytes. Lanes are written in parallel to temp files;
// only after every temp file is fsynced are they renamed over the previous
// generation and the directory synced. A failure during the write phase
// leaves the previous generation untouched on disk.
func (v *Vault) Write(ctx context.Context, laneBytes [][]byte) error {
	if len(laneBytes) != v.lanes {
		return fmt.Errorf("vault: expected %d lanes, got %d", v.lanes, len(laneBytes))
	}
	for i, b := range laneBytes {
		if int64(len(b)) != v.laneSize() {
			return fmt.Errorf("vault: lane %d has %d bytes, expected %d", i, len(b), v.laneSize())
		}
	}
	if err := v.fsys.MkdirAll(v.dir, 0o755); err != nil {
		return &WriteError{Lane: 0, cause: err}
	}

	errs := make([]error, v.lanes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range laneBytes {
		i := i
		g.Go(func() error {
			errs[i] = v.writeLaneTemp(gctx, i, laneBytes[i])
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers report through errs

	if failed, completed := splitOutcome(errs); failed >= 0 {
		v.removeTempFiles()
		return &WriteError{Lane: failed, Completed: completed, cause: errs[failed]}
	}

	// Every temp file is durable; flip the generation.
	for i := range laneBytes {
		if err := v.fsys.Rename(v.LaneFile(i)+tmpSuffix, v.LaneFile(i)); err != nil {
			v.removeTempFiles()
			return &WriteError{Lane: i, Completed: seq(v.lanes), cause: err}
		}
	}
	return fs.SyncDir(v.fsys, v.dir)
}

func (v *Vault) writeLaneTemp(ctx context.Context, i int, data []byte) error {
	if err := v.ctrl.AcquireWriter(ctx); err != nil {
		return err
	}
	defer v.ctrl.ReleaseWriter()

	if err := v.ctrl.WaitIO(ctx, len(data)); err != nil {
		return err
	}
	f, err := v.fsys.OpenFile(v.LaneFile(i)+tmpSuffix, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (v *Vault) removeTempFiles() {
	for i := 0; i < v.lanes; i++ {
		_ = v.fsys.Remove(v.LaneFile(i) + tmpSuffix)
	}
}

// splitOutcome returns the lowest failed lane index (-1 if none) and the
// sorted list of lanes that completed.
func splitOutcome(errs []error) (int, []int) {
	failed := -1
	var completed []int
	for i, err := range errs {
		if err != nil {
			if failed < 0 {
				failed = i
			}
			continue
		}
		completed = append(completed, i)
	}
	sort.Ints(completed)
	return failed, completed
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

// Load reads the vault into the given lane slabs. It returns (false, nil)
// when the vault directory does not exist or contains no lane files, which
// means a first run. A present but inconsistent vault (missing lane file,
// wrong size) yields a *CorruptError in strict mode.
func (v *Vault) Load(ctx context.Context, laneBytes [][]byte) (bool, error) {
	if len(laneBytes) != v.lanes {
		return false, fmt.Errorf("vault: expected %d lanes, got %d", v.lanes, len(laneBytes))
	}
	if _, err := v.fsys.Stat(v.dir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	present := 0
	for i := 0; i < v.lanes; i++ {
		info, err := v.fsys.Stat(v.LaneFile(i))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, &CorruptError{Lane: i, Reason: "stat failed", cause: err}
		}
		present++
		if v.strict && info.Size() != v.laneSize() {
			return false, &CorruptError{
				Lane:   i,
				Reason: fmt.Sprintf("size %d, expected %d", info.Size(), v.laneSize()),
			}
		}
	}
	if present == 0 {
		return false, nil
	}
	if present < v.lanes && v.strict {
		for i := 0; i < v.lanes; i++ {
			if _, err := v.fsys.Stat(v.LaneFile(i)); os.IsNotExist(err) {
				return false, &CorruptError{Lane: i, Reason: "lane file missing"}
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range laneBytes {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return v.loadLane(i, laneBytes[i])
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	return true, nil
}

func (v *Vault) loadLane(i int, dst []byte) error {
	f, err := v.fsys.OpenFile(v.LaneFile(i), os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) && !v.strict {
			return nil
		}
		return &CorruptError{Lane: i, Reason: "open failed", cause: err}
	}
	defer f.Close()

	// Map the file when the backing filesystem is the real one; a single
	// copy out of the page cache beats read syscalls for large lanes.
	if osf, ok := f.(*os.File); ok {
		if info, err := osf.Stat(); err == nil && info.Size() == v.laneSize() {
			if data, merr := mmap.Map(osf, int(info.Size())); merr == nil {
				copy(dst, data)
				return mmap.Unmap(data)
			}
		}
	}

	if _, err := io.ReadFull(f, dst); err != nil {
		if !v.strict && (err == io.ErrUnexpectedEOF || err == io.EOF) {
			return nil
		}
		return &CorruptError{Lane: i, Reason: "short read", cause: err}
	}
	return nil
}

// Destroy removes all lane files and the vault directory.
func (v *Vault) Destroy() error {
	for i := 0; i < v.lanes; i++ {
		if err := v.fsys.Remove(v.LaneFile(i)); err != nil && !os.IsNotExist(err) {
			return err
		}
		_ = v.fsys.Remove(v.LaneFile(i) + tmpSuffix)
	}
	if err := v.fsys.Remove(v.dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
