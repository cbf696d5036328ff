package segtree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

func TestUpdateAndTotal(t *testing.T) {
	tr := New()
	assert.Equal(t, uint64(0), tr.Total())

	require.NoError(t, tr.Update(0, 5))
	require.NoError(t, tr.Update(100, 7))
	require.NoError(t, tr.Update(Capacity-1, 3))

	assert.Equal(t, uint64(15), tr.Total())
	assert.Equal(t, uint64(5), tr.Get(0))
	assert.Equal(t, uint64(7), tr.Get(100))
	assert.Equal(t, uint64(3), tr.Get(Capacity-1))
	assert.Equal(t, uint64(0), tr.Get(50))
}

func TestUpdateOverwrites(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Update(42, 10))
	require.NoError(t, tr.Update(42, 4))

	assert.Equal(t, uint64(4), tr.Total())
	assert.Equal(t, uint64(4), tr.Get(42))
}

func TestQueryRanges(t *testing.T) {
	tr := New()
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.Update(i, uint64(i+1)))
	}

	assert.Equal(t, uint64(55), tr.Query(0, Capacity))
	assert.Equal(t, uint64(1), tr.Query(0, 1))
	assert.Equal(t, uint64(0), tr.Query(0, 0))
	assert.Equal(t, uint64(2+3+4), tr.Query(1, 4))
	assert.Equal(t, uint64(10), tr.Query(9, 200))
}

func TestQueryClampsBounds(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Update(0, 9))

	assert.Equal(t, uint64(9), tr.Query(-5, Capacity+5))
	assert.Equal(t, uint64(0), tr.Query(7, 3))
}

func TestUpdateRejectsOverflow(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Update(0, math.MaxUint64))

	err := tr.Update(1, 1)
	require.ErrorIs(t, err, domain.ErrOverflow)

	// Tree is unchanged after the rejected update.
	assert.Equal(t, uint64(math.MaxUint64), tr.Total())
	assert.Equal(t, uint64(0), tr.Get(1))

	// Overwriting the big leaf with a smaller value makes room again.
	require.NoError(t, tr.Update(0, 1))
	require.NoError(t, tr.Update(1, 1))
	assert.Equal(t, uint64(2), tr.Total())
}

func TestUpdateRejectsOutOfRange(t *testing.T) {
	tr := New()
	assert.ErrorIs(t, tr.Update(-1, 1), domain.ErrUnderflow)
	assert.ErrorIs(t, tr.Update(Capacity, 1), domain.ErrOverflow)
}

func TestSparseUsage(t *testing.T) {
	// Touch only the extremes; totals and queries stay consistent.
	tr := New()
	require.NoError(t, tr.Update(Capacity-1, 11))
	require.NoError(t, tr.Update(0, 22))

	assert.Equal(t, uint64(33), tr.Total())
	assert.Equal(t, uint64(22), tr.Query(0, Capacity-1))
	assert.Equal(t, uint64(11), tr.Query(Capacity-1, Capacity))
}
