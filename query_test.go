package orby

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbyio/orby/cell"
)

func TestQueryValidation(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(4).Lanes(2))

	t.Run("nil predicate", func(t *testing.T) {
		_, err := eng.Query(ctx, 0, nil, 0)
		assert.ErrorIs(t, err, ErrNilPredicate)
	})

	t.Run("lane out of range", func(t *testing.T) {
		_, err := eng.Query(ctx, 2, equals(1), 0)
		var oor *IndexOutOfRangeError
		require.ErrorAs(t, err, &oor)
		assert.Equal(t, 2, oor.Index)
		assert.Equal(t, 2, oor.Bound)
	})

	t.Run("empty store", func(t *testing.T) {
		rows, err := eng.Query(ctx, 0, equals(1), 0)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestQueryAscendingOrder(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(16).Lanes(2))

	_, err := eng.InsertBatch(ctx, []Row{
		row(7, 1), row(3, 2), row(7, 3), row(5, 4), row(7, 5),
	})
	require.NoError(t, err)

	rows, err := eng.Query(ctx, 0, equals(7), 0)
	require.NoError(t, err)
	assert.Equal(t, []Row{row(7, 1), row(7, 3), row(7, 5)}, rows)
}

func TestQueryLimit(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(16).Lanes(2))

	_, err := eng.InsertBatch(ctx, []Row{
		row(7, 1), row(7, 2), row(7, 3), row(7, 4),
	})
	require.NoError(t, err)

	rows, err := eng.Query(ctx, 0, equals(7), 2)
	require.NoError(t, err)
	assert.Equal(t, []Row{row(7, 1), row(7, 2)}, rows, "limit keeps the lowest indices")

	rows, err = eng.Query(ctx, 0, equals(7), 100)
	require.NoError(t, err)
	assert.Len(t, rows, 4, "limit beyond matches returns all")
}

func TestQuerySkipsTombstones(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(8).Lanes(1))

	_, err := eng.InsertBatch(ctx, []Row{row(7), row(7), row(7)})
	require.NoError(t, err)
	require.NoError(t, eng.Delete(ctx, 1))

	calls := 0
	rows, err := eng.Query(ctx, 0, func(c cell.Cell) bool {
		calls++
		return c == cell.FromUint64(7)
	}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, calls, "predicate never sees tombstoned slots")
}

func TestQueryZeroIsMatchable(t *testing.T) {
	// A live row may legitimately hold zero cells; only tombstones are
	// hidden from the predicate.
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(4).Lanes(2))

	_, err := eng.InsertBatch(ctx, []Row{row(0, 99), row(1, 2)})
	require.NoError(t, err)

	rows, err := eng.Query(ctx, 0, func(c cell.Cell) bool { return c.IsZero() }, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row(0, 99), rows[0])
}

func TestQueryParallelMatchesSequential(t *testing.T) {
	// Enough rows to cross the parallel-scan threshold.
	ctx := context.Background()
	const n = 3 * minParallelScan
	eng := mustBuild(t, New("t").Capacity(n).Lanes(2).Bounded())

	batch := make([]Row, n)
	for i := range batch {
		batch[i] = row(uint64(i%97), uint64(i))
	}
	_, err := eng.InsertBatch(ctx, batch)
	require.NoError(t, err)

	pred := equals(13)
	var want []int
	for i := 0; i < n; i++ {
		if i%97 == 13 {
			want = append(want, i)
		}
	}

	t.Run("unlimited", func(t *testing.T) {
		got, err := eng.FindIndices(ctx, 0, pred, 0)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("limited", func(t *testing.T) {
		got, err := eng.FindIndices(ctx, 0, pred, 5)
		require.NoError(t, err)
		assert.Equal(t, want[:5], got, "limited results equal the sequential prefix")
	})

	t.Run("limit one", func(t *testing.T) {
		got, err := eng.FindIndices(ctx, 0, pred, 1)
		require.NoError(t, err)
		assert.Equal(t, want[:1], got)
	})
}

func TestQueryCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := mustBuild(t, New("t").Capacity(4).Lanes(1))
	cancel()

	_, err := eng.Query(ctx, 0, equals(1), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindBy(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(8).Lanes(2))

	key := cell.FromUUID(mustUUID(t))
	_, err := eng.InsertBatch(ctx, []Row{
		{key, cell.FromUint64(1)},
		{cell.FromUint64(5), cell.FromUint64(2)},
		{key, cell.FromUint64(3)},
	})
	require.NoError(t, err)

	rows, err := eng.FindBy(ctx, 0, []cell.Cell{key}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, cell.FromUint64(1), rows[0][1])
	assert.Equal(t, cell.FromUint64(3), rows[1][1])

	t.Run("multiple keys", func(t *testing.T) {
		rows, err := eng.FindBy(ctx, 0, []cell.Cell{key, cell.FromUint64(5)}, 0)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("no keys", func(t *testing.T) {
		rows, err := eng.FindBy(ctx, 0, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestFindRange(t *testing.T) {
	ctx := context.Background()
	eng := mustBuild(t, New("t").Capacity(8).Lanes(1))

	_, err := eng.InsertBatch(ctx, []Row{row(5), row(10), row(15), row(20)})
	require.NoError(t, err)

	rows, err := eng.FindRange(ctx, 0, cell.FromUint64(10), cell.FromUint64(15), 0)
	require.NoError(t, err)
	assert.Equal(t, []Row{row(10), row(15)}, rows, "bounds are inclusive")

	rows, err = eng.FindRange(ctx, 0, cell.FromUint64(10), cell.FromUint64(20), 1)
	require.NoError(t, err)
	assert.Equal(t, []Row{row(10)}, rows)
}
