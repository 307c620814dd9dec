// Package aof implements an append-only operation log. Every mutation is
// recorded as a compact binary record so the engine can rebuild in-memory
// state that the vault's headerless lane files cannot express on their own
// (exact cursor position, tombstones on all-zero rows, operations since the
// last vault sync).
//
// Records may be zstd-compressed; each Open appends a fresh frame, and
// replay decodes the concatenated frames back to back. A torn tail from a
// crash mid-append is tolerated: replay stops at the last complete record.
package aof

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/orbyio/orby/cell"
	"github.com/orbyio/orby/internal/fs"
)

const (
	magic      = "ORBYAOF1"
	version    = 1
	headerSize = 16

	flagCompressed = 1 << 0
)

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("aof: log closed")

// DurabilityMode controls when appends reach stable storage.
type DurabilityMode int

const (
	// DurabilityAsync flushes records to the OS on every append but leaves
	// fsync to the kernel. A host crash can lose the last few records.
	DurabilityAsync DurabilityMode = iota
	// DurabilitySync fsyncs after every append.
	DurabilitySync
)

// Options customizes a Log.
type Options struct {
	FS         fs.FileSystem
	Durability DurabilityMode
	// Compress enables zstd compression for newly created logs. An existing
	// log keeps whatever the header says.
	Compress bool
	// CompressionLevel is a zstd level; zero means the encoder default.
	CompressionLevel int
}

// DefaultOptions returns the default log options.
func DefaultOptions() Options {
	return Options{
		FS:         fs.Default,
		Durability: DurabilityAsync,
	}
}

// Log is an append-only operation log bound to a fixed lane count.
type Log struct {
	mu sync.Mutex

	path  string
	lanes int
	fsys  fs.FileSystem
	opts  Options

	file       fs.File
	enc        *zstd.Encoder
	buf        *bufio.Writer
	compressed bool
	seq        uint64
	closed     bool
}

// Open opens or creates the log at path for a store with the given lane
// count. Opening an existing log validates its header and positions for
// append; it does not replay (see [Log.Replay]).
func Open(path string, lanes int, optFns ...func(*Options)) (*Log, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if lanes <= 0 {
		return nil, fmt.Errorf("aof: lane count must be positive, got %d", lanes)
	}

	f, err := opts.FS.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	l := &Log{
		path:       path,
		lanes:      lanes,
		fsys:       opts.FS,
		opts:       opts,
		file:       f,
		compressed: opts.Compress,
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := l.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := l.readHeader(); err != nil {
			f.Close()
			return nil, err
		}
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := l.resetWriter(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) writeHeader() error {
	header := make([]byte, headerSize)
	copy(header[:8], magic)
	header[8] = version
	if l.compressed {
		header[9] = flagCompressed
	}
	binary.LittleEndian.PutUint32(header[10:], uint32(l.lanes))
	if _, err := l.file.Write(header); err != nil {
		return err
	}
	return l.file.Sync()
}

func (l *Log) readHeader() error {
	header := make([]byte, headerSize)
	if _, err := l.file.ReadAt(header, 0); err != nil {
		return fmt.Errorf("aof: reading header: %w", err)
	}
	if string(header[:8]) != magic {
		return fmt.Errorf("aof: %s is not an operation log", l.path)
	}
	if header[8] != version {
		return fmt.Errorf("aof: unsupported log version %d", header[8])
	}
	if got := int(binary.LittleEndian.Uint32(header[10:])); got != l.lanes {
		return fmt.Errorf("aof: log has %d lanes, store has %d", got, l.lanes)
	}
	// The file's flag wins over the requested option.
	l.compressed = header[9]&flagCompressed != 0
	return nil
}

// resetWriter rebuilds the append chain at the file's current offset. With
// compression each call starts a new zstd frame.
func (l *Log) resetWriter() error {
	if l.compressed {
		level := zstd.SpeedDefault
		if l.opts.CompressionLevel != 0 {
			level = zstd.EncoderLevelFromZstd(l.opts.CompressionLevel)
		}
		enc, err := zstd.NewWriter(l.file, zstd.WithEncoderLevel(level))
		if err != nil {
			return err
		}
		l.enc = enc
		l.buf = bufio.NewWriter(enc)
		return nil
	}
	l.enc = nil
	l.buf = bufio.NewWriter(l.file)
	return nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// LastSeq returns the sequence number of the most recent append.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// AppendInsert records rows appended at the cursor, one record per row.
func (l *Log) AppendInsert(rows [][]cell.Cell) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	// Validate up front so a malformed row cannot leave a torn record in
	// the write buffer.
	for _, row := range rows {
		if len(row) != l.lanes {
			return fmt.Errorf("aof: row has %d cells, log expects %d", len(row), l.lanes)
		}
	}
	for _, row := range rows {
		l.seq++
		if err := encodeEntry(l.buf, Entry{Op: OpInsert, Seq: l.seq, Row: row}, l.lanes); err != nil {
			return err
		}
	}
	return l.commit()
}

// AppendDelete records a positional delete.
func (l *Log) AppendDelete(index int) error {
	return l.appendOne(Entry{Op: OpDelete, Index: uint64(index)})
}

// AppendPurge records a key-match purge on one lane.
func (l *Log) AppendPurge(lane int, key cell.Cell) error {
	return l.appendOne(Entry{Op: OpPurge, Lane: uint32(lane), Key: key})
}

// AppendUpdate records a key-match row rewrite.
func (l *Log) AppendUpdate(lane int, key cell.Cell, row []cell.Cell) error {
	return l.appendOne(Entry{Op: OpUpdate, Lane: uint32(lane), Key: key, Row: row})
}

// AppendTruncate records a full reset.
func (l *Log) AppendTruncate() error {
	return l.appendOne(Entry{Op: OpTruncate})
}

func (l *Log) appendOne(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if e.Op == OpUpdate && len(e.Row) != l.lanes {
		return fmt.Errorf("aof: row has %d cells, log expects %d", len(e.Row), l.lanes)
	}
	l.seq++
	e.Seq = l.seq
	if err := encodeEntry(l.buf, e, l.lanes); err != nil {
		return err
	}
	return l.commit()
}

func (l *Log) commit() error {
	if err := l.buf.Flush(); err != nil {
		return err
	}
	if l.enc != nil {
		if err := l.enc.Flush(); err != nil {
			return err
		}
	}
	if l.opts.Durability == DurabilitySync {
		return l.file.Sync()
	}
	return nil
}

// Replay decodes the log from the beginning and invokes fn for each record
// in order. A torn final record is skipped silently; a callback error
// aborts the replay. Replay uses an independent read handle, so it is safe
// on an open log as long as no appends run concurrently.
func (l *Log) Replay(fn func(Entry) error) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	// Make buffered records visible to the read handle.
	if err := l.commit(); err != nil {
		return 0, err
	}

	f, err := l.fsys.OpenFile(l.path, os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.Seek(headerSize, io.SeekStart); err != nil {
		return 0, err
	}

	var r io.Reader = bufio.NewReader(f)
	if l.compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return 0, err
		}
		defer dec.Close()
		r = dec
	}

	count := 0
	for {
		e, err := decodeEntry(r, l.lanes)
		if err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return count, err
		}
		if err := fn(e); err != nil {
			return count, err
		}
		count++
		if e.Seq > l.seq {
			l.seq = e.Seq
		}
	}
	return count, nil
}

// Reset truncates the log after a successful vault sync: everything the
// log protected is now durable in the lane files.
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err := l.closeWriter(); err != nil {
		return err
	}
	if err := l.fsys.Truncate(l.path, 0); err != nil {
		return err
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	l.seq = 0
	if err := l.writeHeader(); err != nil {
		return err
	}
	return l.resetWriter()
}

func (l *Log) closeWriter() error {
	if err := l.buf.Flush(); err != nil {
		return err
	}
	if l.enc != nil {
		if err := l.enc.Close(); err != nil {
			return err
		}
		l.enc = nil
	}
	return nil
}

// Close flushes, terminates the compression frame if any, fsyncs and
// closes the log. Further appends return ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.closeWriter(); err != nil {
		l.file.Close()
		return err
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
