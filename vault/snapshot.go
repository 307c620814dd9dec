package vault

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/orbyio/orby/cell"
	"github.com/orbyio/orby/internal/fs"
)

// Snapshot layout: a fixed 4096-byte header followed by the lane slabs in
// lane order. The body is optionally an lz4 frame. Unlike the vault, a
// snapshot is a single self-describing file and carries enough metadata to
// restore cursor position exactly, including trailing all-zero rows.
const (
	snapshotMagic      = "ORBY_SNAP_V1_LE " // 16 bytes
	snapshotHeaderSize = 4096

	offCapacity = 16
	offLength   = 24
	offCursor   = 32
	offLanes    = 40
	offFlags    = 44
	offName     = 64

	maxNameLen = 255

	flagCompressed = 1 << 0
)

// SnapshotMeta describes the engine state captured in a snapshot.
type SnapshotMeta struct {
	Name       string
	Capacity   int
	Length     int
	Cursor     int
	Lanes      int
	Compressed bool
}

// WriteSnapshot writes a single-file snapshot to path via a temp file and
// rename. laneBytes must hold meta.Lanes slabs of meta.Capacity*16 bytes.
func WriteSnapshot(fsys fs.FileSystem, path string, meta SnapshotMeta, laneBytes [][]byte) error {
	if fsys == nil {
		fsys = fs.Default
	}
	if len(laneBytes) != meta.Lanes {
		return fmt.Errorf("vault: snapshot expected %d lanes, got %d", meta.Lanes, len(laneBytes))
	}
	want := int64(meta.Capacity) * cell.Size
	for i, b := range laneBytes {
		if int64(len(b)) != want {
			return fmt.Errorf("vault: snapshot lane %d has %d bytes, expected %d", i, len(b), want)
		}
	}
	if len(meta.Name) > maxNameLen {
		return fmt.Errorf("vault: snapshot name exceeds %d bytes", maxNameLen)
	}

	tmp := path + tmpSuffix
	f, err := fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := writeSnapshotTo(f, meta, laneBytes); err != nil {
		f.Close()
		_ = fsys.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = fsys.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return fsys.Rename(tmp, path)
}

func writeSnapshotTo(w io.Writer, meta SnapshotMeta, laneBytes [][]byte) error {
	header := make([]byte, snapshotHeaderSize)
	copy(header[:16], snapshotMagic)
	binary.LittleEndian.PutUint64(header[offCapacity:], uint64(meta.Capacity))
	binary.LittleEndian.PutUint64(header[offLength:], uint64(meta.Length))
	binary.LittleEndian.PutUint64(header[offCursor:], uint64(meta.Cursor))
	binary.LittleEndian.PutUint32(header[offLanes:], uint32(meta.Lanes))
	if meta.Compressed {
		header[offFlags] = flagCompressed
	}
	header[offName] = byte(len(meta.Name))
	copy(header[offName+1:], meta.Name)

	if _, err := w.Write(header); err != nil {
		return err
	}

	body := w
	var zw *lz4.Writer
	if meta.Compressed {
		zw = lz4.NewWriter(w)
		body = zw
	}
	for _, b := range laneBytes {
		if _, err := body.Write(b); err != nil {
			return err
		}
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}

// ReadSnapshotMeta reads and validates only the snapshot header.
func ReadSnapshotMeta(fsys fs.FileSystem, path string) (SnapshotMeta, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return SnapshotMeta{}, err
	}
	defer f.Close()
	return readSnapshotHeader(f, path)
}

// ReadSnapshot restores a snapshot into laneBytes, which must match the
// geometry recorded in the header.
func ReadSnapshot(fsys fs.FileSystem, path string, laneBytes [][]byte) (SnapshotMeta, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return SnapshotMeta{}, err
	}
	defer f.Close()

	meta, err := readSnapshotHeader(f, path)
	if err != nil {
		return SnapshotMeta{}, err
	}
	if len(laneBytes) != meta.Lanes {
		return SnapshotMeta{}, &SnapshotError{
			Path:   path,
			Reason: fmt.Sprintf("holds %d lanes, engine has %d", meta.Lanes, len(laneBytes)),
		}
	}
	want := int64(meta.Capacity) * cell.Size
	for i, b := range laneBytes {
		if int64(len(b)) != want {
			return SnapshotMeta{}, &SnapshotError{
				Path:   path,
				Reason: fmt.Sprintf("capacity %d does not match lane %d buffer", meta.Capacity, i),
			}
		}
	}

	var body io.Reader = f
	if meta.Compressed {
		body = lz4.NewReader(f)
	}
	for i, b := range laneBytes {
		if _, err := io.ReadFull(body, b); err != nil {
			return SnapshotMeta{}, &SnapshotError{Path: path, Reason: fmt.Sprintf("truncated lane %d", i), cause: err}
		}
	}
	return meta, nil
}

func readSnapshotHeader(r io.Reader, path string) (SnapshotMeta, error) {
	header := make([]byte, snapshotHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return SnapshotMeta{}, &SnapshotError{Path: path, Reason: "truncated header", cause: err}
	}
	if string(header[:16]) != snapshotMagic {
		return SnapshotMeta{}, &SnapshotError{Path: path, Reason: "bad magic"}
	}
	nameLen := int(header[offName])
	meta := SnapshotMeta{
		Capacity:   int(binary.LittleEndian.Uint64(header[offCapacity:])),
		Length:     int(binary.LittleEndian.Uint64(header[offLength:])),
		Cursor:     int(binary.LittleEndian.Uint64(header[offCursor:])),
		Lanes:      int(binary.LittleEndian.Uint32(header[offLanes:])),
		Compressed: header[offFlags]&flagCompressed != 0,
		Name:       string(header[offName+1 : offName+1+nameLen]),
	}
	if meta.Capacity <= 0 || meta.Lanes <= 0 {
		return SnapshotMeta{}, &SnapshotError{Path: path, Reason: "invalid geometry in header"}
	}
	if meta.Length < 0 || meta.Length > meta.Capacity || meta.Cursor > meta.Capacity {
		return SnapshotMeta{}, &SnapshotError{Path: path, Reason: "inconsistent length or cursor"}
	}
	return meta, nil
}
