package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultyFSFailWrites(t *testing.T) {
	faulty := NewFaultyFS(nil)
	faulty.FailWrites("victim", 4)

	path := filepath.Join(t.TempDir(), "victim.bin")
	f, err := faulty.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("1234"))
	require.NoError(t, err)
	_, err = f.Write([]byte("5"))
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFSFailSync(t *testing.T) {
	faulty := NewFaultyFS(nil)
	faulty.FailSync("victim")

	path := filepath.Join(t.TempDir(), "victim.bin")
	f, err := faulty.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("data"))
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), ErrInjected)
}

func TestFaultyFSFailRename(t *testing.T) {
	faulty := NewFaultyFS(nil)
	faulty.FailRename("final")

	dir := t.TempDir()
	src := filepath.Join(dir, "tmp.bin")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	err := faulty.Rename(src, filepath.Join(dir, "final.bin"))
	assert.ErrorIs(t, err, ErrInjected)
	require.NoError(t, faulty.Rename(src, filepath.Join(dir, "other.bin")))
}

func TestFaultyFSPassthrough(t *testing.T) {
	faulty := NewFaultyFS(nil)

	path := filepath.Join(t.TempDir(), "clean.bin")
	f, err := faulty.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	info, err := faulty.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())
}

func TestSyncDir(t *testing.T) {
	require.NoError(t, SyncDir(Default, t.TempDir()))
}
