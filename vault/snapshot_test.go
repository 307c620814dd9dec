package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		name := "plain"
		if compressed {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.orby")
			meta := SnapshotMeta{
				Name:       "sessions",
				Capacity:   8,
				Length:     5,
				Cursor:     5,
				Lanes:      2,
				Compressed: compressed,
			}
			written := laneSlabs(8, 2, 0x42)
			require.NoError(t, WriteSnapshot(nil, path, meta, written))

			got := laneSlabs(8, 2, 0)
			gotMeta, err := ReadSnapshot(nil, path, got)
			require.NoError(t, err)
			assert.Equal(t, meta, gotMeta)
			assert.Equal(t, written, got)
		})
	}
}

func TestSnapshotMetaOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.orby")
	meta := SnapshotMeta{Name: "idx", Capacity: 4, Length: 2, Cursor: 2, Lanes: 1}
	require.NoError(t, WriteSnapshot(nil, path, meta, laneSlabs(4, 1, 1)))

	got, err := ReadSnapshotMeta(nil, path)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestSnapshotRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.orby")
	require.NoError(t, os.WriteFile(path, make([]byte, snapshotHeaderSize), 0o644))

	_, err := ReadSnapshot(nil, path, laneSlabs(4, 1, 0))
	var se *SnapshotError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reason, "magic")
}

func TestSnapshotRejectsGeometryMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.orby")
	meta := SnapshotMeta{Name: "idx", Capacity: 4, Length: 0, Cursor: 0, Lanes: 2}
	require.NoError(t, WriteSnapshot(nil, path, meta, laneSlabs(4, 2, 1)))

	_, err := ReadSnapshot(nil, path, laneSlabs(4, 1, 0))
	var se *SnapshotError
	require.ErrorAs(t, err, &se)

	_, err = ReadSnapshot(nil, path, laneSlabs(8, 2, 0))
	require.ErrorAs(t, err, &se)
}

func TestSnapshotRejectsTruncatedBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.orby")
	meta := SnapshotMeta{Name: "idx", Capacity: 4, Length: 4, Cursor: 0, Lanes: 2}
	require.NoError(t, WriteSnapshot(nil, path, meta, laneSlabs(4, 2, 1)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-8))

	_, err = ReadSnapshot(nil, path, laneSlabs(4, 2, 0))
	var se *SnapshotError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "truncated lane 1", se.Reason)
}
