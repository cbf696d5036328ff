package pair

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
	"github.com/irnb/SegmentXOrderbook/internal/ledger"
	"github.com/irnb/SegmentXOrderbook/internal/scaling"
)

const (
	base     = domain.AssetID("BASE")
	quote    = domain.AssetID("QUOTE")
	treasury = domain.AccountID("treasury")

	alice = domain.AccountID("alice")
	bob   = domain.AccountID("bob")
	carol = domain.AccountID("carol")
	dave  = domain.AccountID("dave")
)

var exp18 = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))

// e18 returns n * 10^18.
func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), exp18)
}

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

// netOf applies a fee rate in domain.FeePrecision units.
func netOf(amount *uint256.Int, rate uint64) *uint256.Int {
	f, _ := new(uint256.Int).MulDivOverflow(amount, u(rate), u(domain.FeePrecision))
	return new(uint256.Int).Sub(amount, f)
}

func newPair(t *testing.T) (*Controller, *ledger.InMemory) {
	t.Helper()
	assets := ledger.NewInMemory()
	c := New(Config{
		BaseAsset:      base,
		QuoteAsset:     quote,
		MakerFee:       10,
		TakerFee:       20,
		PricePrecision: e18(1),
		Governance:     treasury,
	}, scaling.NewFixedQuantum(nil), assets, nil, zap.NewNop())

	// Generous balances for the test accounts.
	for _, acct := range []domain.AccountID{alice, bob, carol, dave} {
		assets.Mint(acct, base, e18(1_000_000))
		assets.Mint(acct, quote, e18(100_000_000))
	}
	return c, assets
}

// S1: a limit buy into an empty book rests fully.
func TestLimitBuyRestsOnEmptyBook(t *testing.T) {
	c, assets := newPair(t)

	res, err := c.InsertLimitOrder(alice, domain.SideBuy, e18(2000), e18(1))
	require.NoError(t, err)

	assert.Equal(t, uint64(0), res.OrderID)
	assert.True(t, res.Posted)
	assert.Empty(t, res.Matched)
	assert.True(t, res.Residual.Eq(e18(1)))

	d := c.Depth(0)
	require.Len(t, d.Bids, 1)
	assert.True(t, d.Bids[0].Price.Eq(e18(2000)))
	assert.True(t, d.Bids[0].TotalBuy.Eq(e18(1)))

	// Escrow pulled: 2000 quote.
	spent := new(uint256.Int).Sub(e18(100_000_000), assets.Balance(alice, quote))
	assert.True(t, spent.Eq(e18(2000)))
}

// S2: a crossing limit sell fills the resting buy at its price.
func TestLimitSellMatchesRestingBuy(t *testing.T) {
	c, assets := newPair(t)

	_, err := c.InsertLimitOrder(alice, domain.SideBuy, e18(2000), e18(1))
	require.NoError(t, err)

	res, err := c.InsertLimitOrder(bob, domain.SideSell, e18(2000), e18(1))
	require.NoError(t, err)

	assert.False(t, res.Posted)
	require.Len(t, res.Matched, 1)
	assert.True(t, res.Matched[0].Price.Eq(e18(2000)))
	assert.True(t, res.Matched[0].Amount.Eq(e18(1)))
	assert.True(t, res.Residual.IsZero())

	// Seller spent 1 base, netted 2000 quote minus the taker fee.
	assert.True(t, assets.Balance(bob, base).Eq(e18(999_999)))
	gained := new(uint256.Int).Sub(assets.Balance(bob, quote), e18(100_000_000))
	assert.True(t, gained.Eq(netOf(e18(2000), 20)))

	assert.True(t, c.LatestTradePrice().Eq(e18(2000)))

	// The buyer's order is now fully claimable.
	verdict, claimable, err := c.Claimability(0)
	require.NoError(t, err)
	assert.Equal(t, domain.FullyClaimable, verdict)
	assert.True(t, claimable.Eq(e18(1)))
}

// S3: claiming the filled buy pays base net of the maker fee.
func TestClaimFilledBuy(t *testing.T) {
	c, assets := newPair(t)

	_, err := c.InsertLimitOrder(alice, domain.SideBuy, e18(2000), e18(1))
	require.NoError(t, err)
	_, err = c.InsertLimitOrder(bob, domain.SideSell, e18(2000), e18(1))
	require.NoError(t, err)

	require.NoError(t, c.ClaimOrder(0, alice))

	o, err := c.GetOrder(0)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusClaimed, o.Status)

	gained := new(uint256.Int).Sub(assets.Balance(alice, base), e18(1_000_000))
	assert.True(t, gained.Eq(netOf(e18(1), 10)))

	d := c.Depth(0)
	assert.Empty(t, d.Bids)

	// A second claim is rejected on status.
	err = c.ClaimOrder(0, alice)
	var statusErr *domain.InvalidOrderStatusError
	assert.ErrorAs(t, err, &statusErr)
}

// S4: a cancelled order in the middle of the queue is skipped by the
// watermark arithmetic; its neighbours fill and claim normally.
func TestCancelledMiddleOrderIsSkipped(t *testing.T) {
	c, assets := newPair(t)

	// Three resting sells at the same price: a=2, b=3, c=1.
	resA, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(2))
	require.NoError(t, err)
	resB, err := c.InsertLimitOrder(bob, domain.SideSell, e18(2000), e18(3))
	require.NoError(t, err)
	resC, err := c.InsertLimitOrder(carol, domain.SideSell, e18(2000), e18(1))
	require.NoError(t, err)

	// Cancel b before any matching: full refund.
	require.NoError(t, c.CancelOrder(resB.OrderID))
	assert.True(t, assets.Balance(bob, base).Eq(e18(1_000_000)))

	// A buy for 3 fills a (2) and c (1), skipping the cancelled b.
	resBuy, err := c.InsertLimitOrder(dave, domain.SideBuy, e18(2000), e18(3))
	require.NoError(t, err)
	assert.True(t, resBuy.Residual.IsZero())

	verdict, amount, err := c.Claimability(resA.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.FullyClaimable, verdict)
	assert.True(t, amount.Eq(e18(2)))

	verdict, amount, err = c.Claimability(resC.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.FullyClaimable, verdict)
	assert.True(t, amount.Eq(e18(1)))

	require.NoError(t, c.ClaimOrder(resA.OrderID, alice))
	require.NoError(t, c.ClaimOrder(resC.OrderID, carol))

	gainedA := new(uint256.Int).Sub(assets.Balance(alice, quote), e18(100_000_000))
	assert.True(t, gainedA.Eq(netOf(e18(4000), 10)))
	gainedC := new(uint256.Int).Sub(assets.Balance(carol, quote), e18(100_000_000))
	assert.True(t, gainedC.Eq(netOf(e18(2000), 10)))

	// b stays cancelled; claiming it is a status error.
	err = c.ClaimOrder(resB.OrderID, bob)
	var statusErr *domain.InvalidOrderStatusError
	assert.ErrorAs(t, err, &statusErr)
}

// tradeAt pushes latestTradePrice to price via a self-crossing pair of
// limit orders from two throwaway accounts.
func tradeAt(t *testing.T, c *Controller, price *uint256.Int) {
	t.Helper()
	_, err := c.InsertLimitOrder(carol, domain.SideBuy, price, e18(1))
	require.NoError(t, err)
	_, err = c.InsertLimitOrder(dave, domain.SideSell, price, e18(1))
	require.NoError(t, err)
}

// S5: a market buy bounded below the only offered level fails without
// state changes.
func TestMarketBuyExceedWorstPrice(t *testing.T) {
	c, assets := newPair(t)
	tradeAt(t, c, e18(2000))

	// Ask resting at 2000.
	_, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(1))
	require.NoError(t, err)

	before := assets.Balance(bob, quote)
	_, err = c.InsertMarketOrder(bob, domain.SideBuy, e18(1), e18(1999))

	var worstErr *domain.ExceedWorstPriceError
	require.ErrorAs(t, err, &worstErr)
	assert.True(t, worstErr.Worst.Eq(e18(1999)))
	assert.True(t, worstErr.Offered.Eq(e18(2000)))

	assert.True(t, assets.Balance(bob, quote).Eq(before))
	d := c.Depth(0)
	require.Len(t, d.Asks, 1)
	assert.True(t, d.Asks[0].TotalSell.Eq(e18(1)))
}

// S6: a market buy larger than the visible asks fails with no debits.
func TestMarketBuyNotEnoughLiquidity(t *testing.T) {
	c, assets := newPair(t)
	tradeAt(t, c, e18(2000))

	_, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(4))
	require.NoError(t, err)

	before := assets.Balance(bob, quote)
	_, err = c.InsertMarketOrder(bob, domain.SideBuy, e18(10), e18(2000))
	assert.ErrorIs(t, err, domain.ErrNotEnoughLiquidity)
	assert.True(t, assets.Balance(bob, quote).Eq(before))
}

func TestMarketOrderFillsAndPaysTaker(t *testing.T) {
	c, assets := newPair(t)
	tradeAt(t, c, e18(2000))

	_, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(4))
	require.NoError(t, err)

	baseBefore := assets.Balance(bob, base)
	quoteBefore := assets.Balance(bob, quote)

	res, err := c.InsertMarketOrder(bob, domain.SideBuy, e18(3), e18(2000))
	require.NoError(t, err)
	require.Len(t, res.Matched, 1)
	assert.True(t, res.Matched[0].Amount.Eq(e18(3)))

	spent := new(uint256.Int).Sub(quoteBefore, assets.Balance(bob, quote))
	assert.True(t, spent.Eq(e18(6000)))
	gained := new(uint256.Int).Sub(assets.Balance(bob, base), baseBefore)
	assert.True(t, gained.Eq(netOf(e18(3), 20)))
}

func TestMarketOrderBeforeAnyTrade(t *testing.T) {
	c, _ := newPair(t)

	_, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(1))
	require.NoError(t, err)

	// No latestTradePrice yet: the scan has no entry point.
	_, err = c.InsertMarketOrder(bob, domain.SideBuy, e18(1), e18(3000))
	assert.ErrorIs(t, err, domain.ErrNotEnoughLiquidity)
}

// Round-trip law: deposit then immediate cancel restores the caller's
// balance and the book.
func TestDepositCancelRoundTrip(t *testing.T) {
	c, assets := newPair(t)

	res, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(7))
	require.NoError(t, err)
	require.True(t, res.Posted)

	require.NoError(t, c.CancelOrder(res.OrderID))

	assert.True(t, assets.Balance(alice, base).Eq(e18(1_000_000)))
	assert.True(t, assets.Balance(alice, quote).Eq(e18(100_000_000)))
	assert.Empty(t, c.Depth(0).Asks)

	o, err := c.GetOrder(res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, o.Status)
}

func TestDepositCancelRoundTripBuySide(t *testing.T) {
	c, assets := newPair(t)

	res, err := c.InsertLimitOrder(alice, domain.SideBuy, e18(1990), e18(3))
	require.NoError(t, err)

	require.NoError(t, c.CancelOrder(res.OrderID))
	assert.True(t, assets.Balance(alice, quote).Eq(e18(100_000_000)))
	assert.Empty(t, c.Depth(0).Bids)
}

func TestPartialFillClaimAndCancel(t *testing.T) {
	c, assets := newPair(t)

	// alice rests 2; a buy eats 1 of it.
	res, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(2))
	require.NoError(t, err)
	_, err = c.InsertLimitOrder(bob, domain.SideBuy, e18(2000), e18(1))
	require.NoError(t, err)

	verdict, claimable, err := c.Claimability(res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PartiallyClaimable, verdict)
	assert.True(t, claimable.Eq(e18(1)))

	// claimOrder refuses partial fills.
	assert.ErrorIs(t, c.ClaimOrder(res.OrderID, alice), domain.ErrIsNotFullyClaimable)

	// cancelOrder claims the filled half and refunds the rest.
	require.NoError(t, c.CancelOrder(res.OrderID))

	// 1_000_000 - 2 sold + 1 refunded.
	assert.True(t, assets.Balance(alice, base).Eq(e18(999_999)))
	gainedQuote := new(uint256.Int).Sub(assets.Balance(alice, quote), e18(100_000_000))
	assert.True(t, gainedQuote.Eq(netOf(e18(2000), 10)))

	o, err := c.GetOrder(res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, o.Status)
}

func TestCancelFullyClaimableBehavesAsClaim(t *testing.T) {
	c, assets := newPair(t)

	res, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(1))
	require.NoError(t, err)
	_, err = c.InsertLimitOrder(bob, domain.SideBuy, e18(2000), e18(1))
	require.NoError(t, err)

	require.NoError(t, c.CancelOrder(res.OrderID))

	o, err := c.GetOrder(res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusClaimed, o.Status)

	gained := new(uint256.Int).Sub(assets.Balance(alice, quote), e18(100_000_000))
	assert.True(t, gained.Eq(netOf(e18(2000), 10)))
}

func TestLimitOrderMatchesAcrossLevels(t *testing.T) {
	c, _ := newPair(t)

	_, err := c.InsertLimitOrder(alice, domain.SideSell, e18(1998), e18(1))
	require.NoError(t, err)
	_, err = c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(1))
	require.NoError(t, err)

	// A buy at 2000 takes the 2000 level first (scan is downward from
	// the limit), then 1998, then rests the rest.
	res, err := c.InsertLimitOrder(bob, domain.SideBuy, e18(2000), e18(3))
	require.NoError(t, err)

	require.Len(t, res.Matched, 2)
	assert.True(t, res.Matched[0].Price.Eq(e18(2000)))
	assert.True(t, res.Matched[1].Price.Eq(e18(1998)))
	assert.True(t, res.Residual.Eq(e18(1)))
	assert.True(t, res.Posted)

	// latestTradePrice follows the last matched level.
	assert.True(t, c.LatestTradePrice().Eq(e18(1998)))
}

func TestInsertRejectsUnalignedPrice(t *testing.T) {
	c, _ := newPair(t)

	badPrice := new(uint256.Int).Add(e18(2000), u(1))
	_, err := c.InsertLimitOrder(alice, domain.SideBuy, badPrice, e18(1))
	assert.ErrorIs(t, err, domain.ErrUnderflow)

	_, err = c.InsertLimitOrder(alice, domain.SideBuy, u(0), e18(1))
	assert.ErrorIs(t, err, domain.ErrUnderflow)
}

func TestInsertDebitFailureLeavesNoTrace(t *testing.T) {
	c, assets := newPair(t)

	_, err := c.InsertLimitOrder("pauper", domain.SideBuy, e18(2000), e18(1))
	var ledgerErr *domain.LedgerError
	require.ErrorAs(t, err, &ledgerErr)

	assert.Empty(t, c.Depth(0).Bids)
	assert.True(t, assets.Balance("pauper", quote).IsZero())
	// No order ID was consumed.
	res, err := c.InsertLimitOrder(alice, domain.SideBuy, e18(2000), e18(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.OrderID)
}

func TestFeesAccumulateAndCollect(t *testing.T) {
	c, assets := newPair(t)
	tradeAt(t, c, e18(2000))

	quoteFees, baseFees := c.FeeBalances()
	assert.False(t, quoteFees.IsZero()) // taker fee from the crossing sell
	assert.True(t, baseFees.IsZero())

	// Claim the filled buy: maker fee lands on the base side.
	require.NoError(t, c.ClaimOrder(0, carol))
	_, baseFees = c.FeeBalances()
	assert.False(t, baseFees.IsZero())

	// Only governance may collect.
	err := c.CollectFees(alice)
	var callerErr *domain.InvalidCallerError
	require.ErrorAs(t, err, &callerErr)

	require.NoError(t, c.CollectFees(treasury))
	assert.True(t, assets.Balance(treasury, quote).Eq(quoteFees))
	assert.False(t, assets.Balance(treasury, base).IsZero())

	quoteFees, baseFees = c.FeeBalances()
	assert.True(t, quoteFees.IsZero())
	assert.True(t, baseFees.IsZero())
}

func TestUpdateMarketPolicy(t *testing.T) {
	c, _ := newPair(t)

	err := c.UpdateMarketPolicy(alice, 5, 5, e18(1))
	var callerErr *domain.InvalidCallerError
	require.ErrorAs(t, err, &callerErr)

	require.NoError(t, c.UpdateMarketPolicy(treasury, 5, 7, e18(1)))
	p := c.Policy()
	assert.Equal(t, uint64(5), p.MakerFee)
	assert.Equal(t, uint64(7), p.TakerFee)

	assert.ErrorIs(t, c.UpdateMarketPolicy(treasury, domain.FeePrecision, 0, e18(1)), domain.ErrOverflow)
	assert.ErrorIs(t, c.UpdateMarketPolicy(treasury, 0, 0, u(0)), domain.ErrUnderflow)
}

func TestClaimUnknownOrder(t *testing.T) {
	c, _ := newPair(t)
	assert.ErrorIs(t, c.ClaimOrder(99, alice), domain.ErrOrderNotFound)
	assert.ErrorIs(t, c.CancelOrder(99), domain.ErrOrderNotFound)
}

// Market and fully matched limit orders consume an ID but leave no
// claimable record.
func TestNonRestingOrdersHaveNoRecord(t *testing.T) {
	c, _ := newPair(t)
	tradeAt(t, c, e18(2000)) // ids 0 (resting buy) and 1 (full match)

	_, err := c.GetOrder(1)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	res, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2010), e18(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.OrderID)
}

// Property: the used watermark never exceeds all-time deposits, and
// used plus resting liquidity partitions deposits.
func TestWatermarkStaysWithinDeposits(t *testing.T) {
	c, _ := newPair(t)

	_, err := c.InsertLimitOrder(alice, domain.SideSell, e18(2000), e18(5))
	require.NoError(t, err)
	_, err = c.InsertLimitOrder(bob, domain.SideBuy, e18(2000), e18(2))
	require.NoError(t, err)

	d := c.Depth(0)
	require.Len(t, d.Asks, 1)
	assert.True(t, d.Asks[0].UsedSell.Eq(e18(2)))
	assert.True(t, d.Asks[0].TotalSell.Eq(e18(3)))

	sum := new(uint256.Int).Add(d.Asks[0].UsedSell, d.Asks[0].TotalSell)
	assert.True(t, sum.Eq(e18(5)))
}
