package aof

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/orbyio/orby/cell"
)

// Op tags a log record.
type Op uint8

const (
	OpInsert Op = iota + 1
	OpDelete
	OpPurge
	OpUpdate
	OpTruncate
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpPurge:
		return "purge"
	case OpUpdate:
		return "update"
	case OpTruncate:
		return "truncate"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Entry is one logical mutation. Which fields are meaningful depends on Op:
//
//	OpInsert:   Row
//	OpDelete:   Index
//	OpPurge:    Lane, Key
//	OpUpdate:   Lane, Key, Row
//	OpTruncate: nothing
type Entry struct {
	Op    Op
	Seq   uint64
	Index uint64
	Lane  uint32
	Key   cell.Cell
	Row   []cell.Cell
}

// Records are [op:1][seq:8][payload]; payload layout is fixed per op given
// the lane count in the header, so no per-record length prefix is needed.
func encodeEntry(w *bufio.Writer, e Entry, lanes int) error {
	if err := w.WriteByte(byte(e.Op)); err != nil {
		return err
	}
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], e.Seq)
	if _, err := w.Write(u64[:]); err != nil {
		return err
	}

	switch e.Op {
	case OpInsert:
		return writeRow(w, e.Row, lanes)
	case OpDelete:
		binary.LittleEndian.PutUint64(u64[:], e.Index)
		_, err := w.Write(u64[:])
		return err
	case OpPurge:
		return writeLaneKey(w, e.Lane, e.Key)
	case OpUpdate:
		if err := writeLaneKey(w, e.Lane, e.Key); err != nil {
			return err
		}
		return writeRow(w, e.Row, lanes)
	case OpTruncate:
		return nil
	default:
		return fmt.Errorf("aof: cannot encode %s", e.Op)
	}
}

func writeRow(w *bufio.Writer, row []cell.Cell, lanes int) error {
	if len(row) != lanes {
		return fmt.Errorf("aof: row has %d cells, log expects %d", len(row), lanes)
	}
	var buf [cell.Size]byte
	for _, c := range row {
		buf = c.Bytes()
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeLaneKey(w *bufio.Writer, lane uint32, key cell.Cell) error {
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], lane)
	if _, err := w.Write(u32[:]); err != nil {
		return err
	}
	kb := key.Bytes()
	_, err := w.Write(kb[:])
	return err
}

// decodeEntry reads one record. io.EOF on a clean record boundary means the
// log ended; io.ErrUnexpectedEOF means a torn tail.
func decodeEntry(r io.Reader, lanes int) (Entry, error) {
	var head [9]byte
	if _, err := io.ReadFull(r, head[:1]); err != nil {
		return Entry{}, err
	}
	if _, err := io.ReadFull(r, head[1:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Entry{}, err
	}
	e := Entry{
		Op:  Op(head[0]),
		Seq: binary.LittleEndian.Uint64(head[1:]),
	}

	switch e.Op {
	case OpInsert:
		row, err := readRow(r, lanes)
		if err != nil {
			return Entry{}, err
		}
		e.Row = row
	case OpDelete:
		var u64 [8]byte
		if _, err := readFullTorn(r, u64[:]); err != nil {
			return Entry{}, err
		}
		e.Index = binary.LittleEndian.Uint64(u64[:])
	case OpPurge:
		if err := readLaneKey(r, &e); err != nil {
			return Entry{}, err
		}
	case OpUpdate:
		if err := readLaneKey(r, &e); err != nil {
			return Entry{}, err
		}
		row, err := readRow(r, lanes)
		if err != nil {
			return Entry{}, err
		}
		e.Row = row
	case OpTruncate:
	default:
		return Entry{}, fmt.Errorf("aof: unknown op %d at seq %d", head[0], e.Seq)
	}
	return e, nil
}

func readRow(r io.Reader, lanes int) ([]cell.Cell, error) {
	row := make([]cell.Cell, lanes)
	var buf [cell.Size]byte
	for i := range row {
		if _, err := readFullTorn(r, buf[:]); err != nil {
			return nil, err
		}
		row[i] = cell.FromBytes(buf)
	}
	return row, nil
}

func readLaneKey(r io.Reader, e *Entry) error {
	var u32 [4]byte
	if _, err := readFullTorn(r, u32[:]); err != nil {
		return err
	}
	e.Lane = binary.LittleEndian.Uint32(u32[:])
	var kb [cell.Size]byte
	if _, err := readFullTorn(r, kb[:]); err != nil {
		return err
	}
	e.Key = cell.FromBytes(kb)
	return nil
}

// readFullTorn is io.ReadFull with EOF mid-field normalized to
// ErrUnexpectedEOF so callers can tell torn tails from clean ends.
func readFullTorn(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF && n == 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
