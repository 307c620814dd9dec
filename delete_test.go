package orby

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbyio/orby/cell"
)

func TestDeleteTombstoning(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(8).Lanes(2))

	_, err := eng.InsertBatch(ctx, []Row{row(1, 10), row(2, 20), row(3, 30)})
	require.NoError(t, err)
	cursorBefore := eng.Cursor()

	require.NoError(t, eng.Delete(ctx, 1))

	assert.Equal(t, cursorBefore, eng.Cursor(), "cursor does not move")
	assert.Equal(t, 3, eng.Len(), "occupied range keeps the dead slot")
	assert.Equal(t, 2, eng.LiveCount())

	// Surviving rows keep their indices.
	got, err := eng.At(2)
	require.NoError(t, err)
	assert.Equal(t, row(3, 30), got)
	_, err = eng.At(1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCompaction(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(8).Lanes(2).WithCompaction(true))

	_, err := eng.InsertBatch(ctx, []Row{row(1, 10), row(2, 20), row(3, 30), row(4, 40)})
	require.NoError(t, err)

	require.NoError(t, eng.Delete(ctx, 1))

	assert.Equal(t, 3, eng.Len())
	assert.Equal(t, 3, eng.LiveCount())
	assert.Equal(t, 3, eng.Cursor(), "cursor lands on the new end")

	// Later rows shifted left by one, in every lane.
	want := []Row{row(1, 10), row(3, 30), row(4, 40)}
	for i, w := range want {
		got, err := eng.At(i)
		require.NoError(t, err)
		assert.Equal(t, w, got, "index %d", i)
	}

	// The next insert reuses the freed slot.
	_, err = eng.InsertBatch(ctx, []Row{row(5, 50)})
	require.NoError(t, err)
	got, err := eng.At(3)
	require.NoError(t, err)
	assert.Equal(t, row(5, 50), got)
}

func TestDeleteOutOfRange(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(4).Lanes(1))

	_, err := eng.InsertBatch(ctx, []Row{row(1)})
	require.NoError(t, err)

	var oor *IndexOutOfRangeError
	require.ErrorAs(t, eng.Delete(ctx, 1), &oor)
	require.ErrorAs(t, eng.Delete(ctx, -1), &oor)
}

func TestPurgeByKey(t *testing.T) {
	ctx := context.Background()

	t.Run("tombstoning", func(t *testing.T) {
		eng := mustBuild(t, New("t").Capacity(8).Lanes(2))
		_, err := eng.InsertBatch(ctx, []Row{row(7, 1), row(8, 2), row(7, 3)})
		require.NoError(t, err)

		removed, err := eng.PurgeByKey(ctx, 0, cell.FromUint64(7))
		require.NoError(t, err)
		assert.Equal(t, 2, removed)
		assert.Equal(t, 1, eng.LiveCount())
		assert.Equal(t, 3, eng.Len())

		got, err := eng.At(1)
		require.NoError(t, err)
		assert.Equal(t, row(8, 2), got)
	})

	t.Run("compaction removes highest first", func(t *testing.T) {
		eng := mustBuild(t, New("t").Capacity(8).Lanes(2).WithCompaction(true))
		_, err := eng.InsertBatch(ctx, []Row{row(7, 1), row(8, 2), row(7, 3), row(9, 4)})
		require.NoError(t, err)

		removed, err := eng.PurgeByKey(ctx, 0, cell.FromUint64(7))
		require.NoError(t, err)
		assert.Equal(t, 2, removed)
		assert.Equal(t, 2, eng.Len())

		want := []Row{row(8, 2), row(9, 4)}
		for i, w := range want {
			got, err := eng.At(i)
			require.NoError(t, err)
			assert.Equal(t, w, got)
		}
	})

	t.Run("no match", func(t *testing.T) {
		eng := mustBuild(t, New("t").Capacity(4).Lanes(1))
		removed, err := eng.PurgeByKey(ctx, 0, cell.FromUint64(7))
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
	})
}

func TestUpdateByKey(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(8).Lanes(2))

	_, err := eng.InsertBatch(ctx, []Row{row(7, 1), row(8, 2), row(7, 3)})
	require.NoError(t, err)
	cursorBefore := eng.Cursor()

	updated, err := eng.UpdateByKey(ctx, 0, cell.FromUint64(7), row(7, 99))
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, cursorBefore, eng.Cursor())

	for _, i := range []int{0, 2} {
		got, err := eng.At(i)
		require.NoError(t, err)
		assert.Equal(t, row(7, 99), got)
	}
	got, err := eng.At(1)
	require.NoError(t, err)
	assert.Equal(t, row(8, 2), got, "non-matching row untouched")

	t.Run("shape checked", func(t *testing.T) {
		_, err := eng.UpdateByKey(ctx, 0, cell.FromUint64(7), row(1))
		var sm *ShapeMismatchError
		require.ErrorAs(t, err, &sm)
	})
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(8).Lanes(2))

	t.Run("inserts when absent", func(t *testing.T) {
		updated, err := eng.Upsert(ctx, 0, cell.FromUint64(7), row(7, 1))
		require.NoError(t, err)
		assert.Equal(t, 0, updated)
		assert.Equal(t, 1, eng.LiveCount())
	})

	t.Run("updates when present", func(t *testing.T) {
		updated, err := eng.Upsert(ctx, 0, cell.FromUint64(7), row(7, 2))
		require.NoError(t, err)
		assert.Equal(t, 1, updated)
		assert.Equal(t, 1, eng.LiveCount(), "no second row appended")

		got, err := eng.At(0)
		require.NoError(t, err)
		assert.Equal(t, row(7, 2), got)
	})
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	// Smoke test under the race detector: concurrent queries, inserts and
	// deletes must never violate the cross-lane row invariant.
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(256).Lanes(2).Ring())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				v := seed*1000 + uint64(i)
				_, err := eng.InsertBatch(ctx, []Row{row(v, v)})
				assert.NoError(t, err)
			}
		}(uint64(w))
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rows, err := eng.Query(ctx, 0, func(cell.Cell) bool { return true }, 0)
				assert.NoError(t, err)
				for _, rw := range rows {
					// Both lanes were written in the same insert.
					assert.Equal(t, rw[0], rw[1])
				}
			}
		}()
	}
	wg.Wait()
}
