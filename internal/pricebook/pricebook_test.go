package pricebook

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

func p(n uint64) *uint256.Int { return uint256.NewInt(n) }

func TestDepositAccumulates(t *testing.T) {
	b := New()

	b.Deposit(p(2000), domain.SideBuy, p(100))
	b.Deposit(p(2000), domain.SideBuy, p(50))
	b.Deposit(p(2000), domain.SideSell, p(30))

	assert.True(t, b.TotalLiquidity(p(2000), domain.SideBuy).Eq(p(150)))
	assert.True(t, b.TotalLiquidity(p(2000), domain.SideSell).Eq(p(30)))
	assert.True(t, b.UsedLiquidity(p(2000), domain.SideBuy).IsZero())
}

func TestTakerWithdrawAdvancesWatermark(t *testing.T) {
	b := New()
	b.Deposit(p(2000), domain.SideBuy, p(100))

	// A sell taker eats 60 of the resting buys.
	require.NoError(t, b.TakerWithdraw(p(2000), domain.SideSell, p(60)))

	assert.True(t, b.TotalLiquidity(p(2000), domain.SideBuy).Eq(p(40)))
	assert.True(t, b.UsedLiquidity(p(2000), domain.SideBuy).Eq(p(60)))
}

func TestTakerWithdrawUnderflow(t *testing.T) {
	b := New()
	b.Deposit(p(2000), domain.SideSell, p(10))

	err := b.TakerWithdraw(p(2000), domain.SideBuy, p(11))
	assert.ErrorIs(t, err, domain.ErrUnderflow)
	// Nothing changed.
	assert.True(t, b.TotalLiquidity(p(2000), domain.SideSell).Eq(p(10)))
	assert.True(t, b.UsedLiquidity(p(2000), domain.SideSell).IsZero())
}

func TestCancelWithdrawKeepsWatermark(t *testing.T) {
	b := New()
	b.Deposit(p(2000), domain.SideSell, p(100))
	require.NoError(t, b.TakerWithdraw(p(2000), domain.SideBuy, p(30)))

	require.NoError(t, b.CancelWithdraw(p(2000), domain.SideSell, p(70)))

	assert.True(t, b.TotalLiquidity(p(2000), domain.SideSell).IsZero())
	assert.True(t, b.UsedLiquidity(p(2000), domain.SideSell).Eq(p(30)))
}

func TestOrderCounts(t *testing.T) {
	b := New()

	assert.Equal(t, uint64(0), b.IncrementOrderCount(p(2000), domain.SideSell))
	assert.Equal(t, uint64(1), b.IncrementOrderCount(p(2000), domain.SideSell))
	assert.Equal(t, uint64(0), b.IncrementOrderCount(p(2000), domain.SideBuy))
	assert.Equal(t, uint64(2), b.OrderCount(p(2000), domain.SideSell))
}

func TestLeadingPricesPromoteOnDepositOnly(t *testing.T) {
	b := New()

	assert.Nil(t, b.LeadingPrice(domain.SideBuy))
	assert.Nil(t, b.LeadingPrice(domain.SideSell))

	b.Deposit(p(1990), domain.SideBuy, p(1))
	b.Deposit(p(2000), domain.SideBuy, p(1))
	b.Deposit(p(1995), domain.SideBuy, p(1)) // worse, no promotion
	assert.True(t, b.LeadingPrice(domain.SideBuy).Eq(p(2000)))

	b.Deposit(p(2010), domain.SideSell, p(1))
	b.Deposit(p(2005), domain.SideSell, p(1))
	assert.True(t, b.LeadingPrice(domain.SideSell).Eq(p(2005)))

	// Consuming the level does not retreat the hint.
	require.NoError(t, b.TakerWithdraw(p(2005), domain.SideBuy, p(1)))
	assert.True(t, b.LeadingPrice(domain.SideSell).Eq(p(2005)))
}

func TestMatchableGate(t *testing.T) {
	b := New()

	// Empty book: nothing matchable.
	assert.False(t, b.Matchable(domain.SideBuy, p(2000)))

	b.Deposit(p(2005), domain.SideSell, p(1))

	// Entry at or above the sell leading price passes the gate.
	assert.True(t, b.Matchable(domain.SideBuy, p(2005)))
	assert.True(t, b.Matchable(domain.SideBuy, p(3000)))
	// Below the lowest sell deposit there can be no ask.
	assert.False(t, b.Matchable(domain.SideBuy, p(2004)))

	b.Deposit(p(1990), domain.SideBuy, p(1))
	assert.True(t, b.Matchable(domain.SideSell, p(1990)))
	assert.False(t, b.Matchable(domain.SideSell, p(1991)))
}

func TestDepthSnapshot(t *testing.T) {
	b := New()
	b.Deposit(p(1990), domain.SideBuy, p(5))
	b.Deposit(p(2000), domain.SideBuy, p(7))
	b.Deposit(p(2010), domain.SideSell, p(3))
	b.Deposit(p(2020), domain.SideSell, p(4))
	b.Deposit(p(2030), domain.SideSell, p(9))

	d := b.Depth(2)
	require.Len(t, d.Bids, 2)
	require.Len(t, d.Asks, 2)
	assert.True(t, d.Bids[0].Price.Eq(p(2000)))
	assert.True(t, d.Bids[1].Price.Eq(p(1990)))
	assert.True(t, d.Asks[0].Price.Eq(p(2010)))
	assert.True(t, d.Asks[1].Price.Eq(p(2020)))

	// Fully consumed levels drop out of the snapshot.
	require.NoError(t, b.TakerWithdraw(p(2010), domain.SideBuy, p(3)))
	d = b.Depth(0)
	require.Len(t, d.Asks, 2)
	assert.True(t, d.Asks[0].Price.Eq(p(2020)))
}
