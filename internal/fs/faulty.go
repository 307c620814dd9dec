package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault")

// Fault describes failure behavior for files whose path matches a rule.
type Fault struct {
	// FailAfterBytes fails writes once this many bytes have been written to
	// the file. Negative disables the limit.
	FailAfterBytes int64
	// FailOnSync makes Sync return an error.
	FailOnSync bool
	// Err is the error to inject; defaults to ErrInjected.
	Err error
}

// FaultyFS wraps a FileSystem and injects errors into matching files.
type FaultyFS struct {
	inner FileSystem

	mu         sync.Mutex
	rules      map[string]Fault // path substring -> fault
	failRename map[string]error // path substring -> error
}

// NewFaultyFS creates a FaultyFS wrapping fsys (or Default when nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{
		inner:      fsys,
		rules:      make(map[string]Fault),
		failRename: make(map[string]error),
	}
}

// FailWrites makes writes to files whose path contains pattern fail after
// limit bytes (0 fails the first write).
func (f *FaultyFS) FailWrites(pattern string, limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = Fault{FailAfterBytes: limit, Err: ErrInjected}
}

// FailSync makes Sync fail on files whose path contains pattern.
func (f *FaultyFS) FailSync(pattern string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = Fault{FailAfterBytes: -1, FailOnSync: true, Err: ErrInjected}
}

// FailRename makes Rename fail when the new path contains pattern.
func (f *FaultyFS) FailRename(pattern string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRename[pattern] = ErrInjected
}

func (f *FaultyFS) faultFor(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			return rule, true
		}
	}
	return Fault{}, false
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.inner.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	fault, ok := f.faultFor(name)
	if !ok {
		return file, nil
	}
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	return &faultyFile{File: file, fault: fault}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.inner.Remove(name) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.inner.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.inner.MkdirAll(path, perm)
}
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.inner.ReadDir(name) }
func (f *FaultyFS) Truncate(name string, size int64) error     { return f.inner.Truncate(name, size) }

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	for pattern, err := range f.failRename {
		if strings.Contains(newpath, pattern) {
			f.mu.Unlock()
			return err
		}
	}
	f.mu.Unlock()
	return f.inner.Rename(oldpath, newpath)
}

type faultyFile struct {
	File
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if ff.fault.FailAfterBytes >= 0 && ff.written+int64(len(p)) > ff.fault.FailAfterBytes {
		return 0, ff.fault.Err
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.Err
	}
	return ff.File.Sync()
}
