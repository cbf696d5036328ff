// Package pair implements the public API of one trading pair: limit
// and market order insertion, claim, cancel, fee collection, and
// market policy updates. Every public call runs as one serialized,
// atomic transaction: state is validated and the match plan computed
// against read-only state first, the single failable ledger debit runs
// next, and only then are book, order, and cancellation state mutated
// and proceeds credited.
package pair

import (
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/irnb/SegmentXOrderbook/internal/cancellation"
	"github.com/irnb/SegmentXOrderbook/internal/claim"
	"github.com/irnb/SegmentXOrderbook/internal/domain"
	"github.com/irnb/SegmentXOrderbook/internal/ledger"
	"github.com/irnb/SegmentXOrderbook/internal/matching"
	"github.com/irnb/SegmentXOrderbook/internal/orderstore"
	"github.com/irnb/SegmentXOrderbook/internal/pricebook"
	"github.com/irnb/SegmentXOrderbook/internal/scaling"
)

// Config is the construction-time configuration of a pair.
type Config struct {
	BaseAsset  domain.AssetID
	QuoteAsset domain.AssetID

	// QuoteUnit is the smallest transferable quote increment; quote
	// notionals are floored to a multiple of it. Zero or nil means 1.
	QuoteUnit *uint256.Int

	// Fee rates in domain.FeePrecision units.
	MakerFee uint64
	TakerFee uint64

	// PricePrecision is the price quantum; prices are multiples of it.
	PricePrecision *uint256.Int

	// Governance is the only account allowed to collect fees and
	// update the market policy.
	Governance domain.AccountID
}

// InsertResult reports the outcome of an order insertion.
type InsertResult struct {
	OrderID  uint64             `json:"order_id"`
	Posted   bool               `json:"posted"` // a resting order was created
	Matched  []domain.MatchEntry `json:"matched"`
	Residual *uint256.Int       `json:"residual"`
}

// Controller orchestrates the pair's components behind one lock.
type Controller struct {
	mu sync.Mutex

	cfg    Config
	policy domain.MarketPolicy

	book    *pricebook.Book
	cancels *cancellation.Index
	store   *orderstore.Store
	engine  *matching.Engine
	oracle  *claim.Oracle
	scale   scaling.Policy
	ledger  ledger.AssetLedger
	sink    domain.ObservationSink

	latestTradePrice *uint256.Int // zero until the first trade

	quoteFees *uint256.Int
	baseFees  *uint256.Int

	logger *zap.Logger
}

// New creates a pair controller. sink may be nil when no observer is
// attached.
func New(cfg Config, scale scaling.Policy, assets ledger.AssetLedger, sink domain.ObservationSink, logger *zap.Logger) *Controller {
	if cfg.QuoteUnit == nil || cfg.QuoteUnit.IsZero() {
		cfg.QuoteUnit = uint256.NewInt(1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	book := pricebook.New()
	cancels := cancellation.NewIndex()
	return &Controller{
		cfg: cfg,
		policy: domain.MarketPolicy{
			MakerFee:       cfg.MakerFee,
			TakerFee:       cfg.TakerFee,
			PricePrecision: new(uint256.Int).Set(cfg.PricePrecision),
		},
		book:             book,
		cancels:          cancels,
		store:            orderstore.New(),
		engine:           matching.NewEngine(book),
		oracle:           claim.NewOracle(book, cancels, scale),
		scale:            scale,
		ledger:           assets,
		sink:             sink,
		latestTradePrice: new(uint256.Int),
		quoteFees:        new(uint256.Int),
		baseFees:         new(uint256.Int),
		logger:           logger.Named("pair"),
	}
}

// quoteNotional converts a base amount at price into quote units,
// flooring to a multiple of the quote unit.
func (c *Controller) quoteNotional(price, base *uint256.Int) (*uint256.Int, error) {
	q, overflow := new(uint256.Int).MulDivOverflow(price, base, c.policy.PricePrecision)
	if overflow {
		return nil, domain.ErrOverflow
	}
	if !c.cfg.QuoteUnit.Eq(uint256.NewInt(1)) {
		q.Div(q, c.cfg.QuoteUnit)
		q.Mul(q, c.cfg.QuoteUnit)
	}
	return q, nil
}

// fee returns amount * rate / FeePrecision, floored.
func fee(amount *uint256.Int, rate uint64) *uint256.Int {
	f, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(rate), uint256.NewInt(domain.FeePrecision))
	return f
}

// takerSpend sums what a taker owes for a match vector: quote for
// buys, base for sells.
func (c *Controller) takerSpend(side domain.Side, entries []domain.MatchEntry) (*uint256.Int, error) {
	if side == domain.SideSell {
		return matching.Consumed(entries), nil
	}
	sum := new(uint256.Int)
	for _, m := range entries {
		q, err := c.quoteNotional(m.Price, m.Amount)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, q)
	}
	return sum, nil
}

// takerProceeds sums what a taker receives: base for buys, quote for
// sells.
func (c *Controller) takerProceeds(side domain.Side, entries []domain.MatchEntry) (*uint256.Int, domain.AssetID, error) {
	if side == domain.SideBuy {
		return matching.Consumed(entries), c.cfg.BaseAsset, nil
	}
	sum := new(uint256.Int)
	for _, m := range entries {
		q, err := c.quoteNotional(m.Price, m.Amount)
		if err != nil {
			return nil, "", err
		}
		sum.Add(sum, q)
	}
	return sum, c.cfg.QuoteAsset, nil
}

// creditNetOfFee credits account with amount minus the given fee rate
// and accumulates the fee on the matching side. Returns the fee taken.
func (c *Controller) creditNetOfFee(account domain.AccountID, asset domain.AssetID, amount *uint256.Int, rate uint64) *uint256.Int {
	f := fee(amount, rate)
	net := new(uint256.Int).Sub(amount, f)
	c.ledger.Credit(account, asset, net)
	if asset == c.cfg.QuoteAsset {
		c.quoteFees.Add(c.quoteFees, f)
	} else {
		c.baseFees.Add(c.baseFees, f)
	}
	return f
}

func (c *Controller) emit(obs *domain.Observation) {
	if c.sink != nil {
		c.sink.Publish(obs)
	}
}

// InsertLimitOrder matches an incoming limit order against the book
// and rests any residual at price. The price must be a positive
// multiple of the price precision.
func (c *Controller) InsertLimitOrder(caller domain.AccountID, side domain.Side, price, amount *uint256.Int) (*InsertResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validatePrice(price); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, domain.ErrUnderflow
	}

	entries := c.engine.Match(side, price, amount, c.policy.PricePrecision)
	consumed := matching.Consumed(entries)
	residual := new(uint256.Int).Sub(amount, consumed)

	// Entry asset owed: taker spend for the matched part plus the
	// escrow for the residual resting at the limit price.
	debit, err := c.takerSpend(side, entries)
	if err != nil {
		return nil, err
	}
	entryAsset := c.cfg.BaseAsset
	if side == domain.SideBuy {
		entryAsset = c.cfg.QuoteAsset
		escrow, err := c.quoteNotional(price, residual)
		if err != nil {
			return nil, err
		}
		debit.Add(debit, escrow)
	} else {
		debit.Add(debit, residual)
	}

	if err := c.ledger.Debit(caller, entryAsset, debit); err != nil {
		return nil, &domain.LedgerError{Op: "debit", Err: err}
	}

	// Point of no return: credits below never fail.
	for _, m := range entries {
		if err := c.book.TakerWithdraw(m.Price, side, m.Amount); err != nil {
			// The match plan was computed from the same state; a
			// failure here is a programmer error.
			panic(err)
		}
	}

	result := &InsertResult{Matched: entries, Residual: residual}
	if residual.IsZero() {
		result.OrderID = c.store.AllocateID()
	} else {
		pre := c.preOrderPosition(price, side)
		c.book.Deposit(price, side, residual)
		idx := c.book.IncrementOrderCount(price, side)
		o := c.store.Create(caller, side, price, residual, idx, pre)
		result.OrderID = o.ID
		result.Posted = true
	}

	var feeTaken *uint256.Int
	if len(entries) > 0 {
		c.latestTradePrice.Set(entries[len(entries)-1].Price)
		proceeds, asset, err := c.takerProceeds(side, entries)
		if err != nil {
			panic(err) // same inputs as the pre-debit computation
		}
		feeTaken = c.creditNetOfFee(caller, asset, proceeds, c.policy.TakerFee)
	}

	c.logger.Debug("limit order inserted",
		zap.Uint64("order_id", result.OrderID),
		zap.String("side", string(side)),
		zap.String("price", price.Dec()),
		zap.String("amount", amount.Dec()),
		zap.Int("matched_levels", len(entries)),
		zap.Bool("posted", result.Posted),
	)
	c.emit(&domain.Observation{
		Kind:     domain.ObservationLimitOrderInserted,
		OrderID:  result.OrderID,
		Caller:   caller,
		Side:     side,
		Price:    new(uint256.Int).Set(price),
		Amount:   new(uint256.Int).Set(amount),
		Residual: new(uint256.Int).Set(residual),
		Matched:  entries,
		Fee:      feeTaken,
	})
	return result, nil
}

// preOrderPosition snapshots the cumulative deposited amount queued
// ahead of a new order: the fill watermark plus current resting depth,
// re-expanded by the all-time cancellations so positions stay in
// absolute queue coordinates.
func (c *Controller) preOrderPosition(price *uint256.Int, side domain.Side) *uint256.Int {
	pre := c.book.UsedLiquidity(price, side)
	pre.Add(pre, c.book.TotalLiquidity(price, side))
	pre.Add(pre, c.scale.ScaleUp(c.cancels.TotalAt(price, side), price, side))
	return pre
}

// InsertMarketOrder sweeps the book from the last trade price. Market
// orders either fully match within the scan window at prices no worse
// than worstPrice, or fail without effects.
func (c *Controller) InsertMarketOrder(caller domain.AccountID, side domain.Side, amount, worstPrice *uint256.Int) (*InsertResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if amount.IsZero() {
		return nil, domain.ErrUnderflow
	}
	if c.latestTradePrice.IsZero() {
		// No trade has ever fixed an entry price for the scan.
		return nil, domain.ErrNotEnoughLiquidity
	}

	entries := c.engine.Match(side, c.latestTradePrice, amount, c.policy.PricePrecision)
	if len(entries) == 0 {
		return nil, domain.ErrNotEnoughLiquidity
	}
	for _, m := range entries {
		if side == domain.SideBuy && m.Price.Cmp(worstPrice) > 0 {
			return nil, &domain.ExceedWorstPriceError{Worst: new(uint256.Int).Set(worstPrice), Offered: new(uint256.Int).Set(m.Price)}
		}
		if side == domain.SideSell && m.Price.Cmp(worstPrice) < 0 {
			return nil, &domain.ExceedWorstPriceError{Worst: new(uint256.Int).Set(worstPrice), Offered: new(uint256.Int).Set(m.Price)}
		}
	}
	consumed := matching.Consumed(entries)
	if consumed.Cmp(amount) < 0 {
		return nil, domain.ErrNotEnoughLiquidity
	}

	debit, err := c.takerSpend(side, entries)
	if err != nil {
		return nil, err
	}
	entryAsset := c.cfg.BaseAsset
	if side == domain.SideBuy {
		entryAsset = c.cfg.QuoteAsset
	}
	if err := c.ledger.Debit(caller, entryAsset, debit); err != nil {
		return nil, &domain.LedgerError{Op: "debit", Err: err}
	}

	for _, m := range entries {
		if err := c.book.TakerWithdraw(m.Price, side, m.Amount); err != nil {
			panic(err)
		}
	}
	c.latestTradePrice.Set(entries[len(entries)-1].Price)

	proceeds, asset, err := c.takerProceeds(side, entries)
	if err != nil {
		panic(err)
	}
	feeTaken := c.creditNetOfFee(caller, asset, proceeds, c.policy.TakerFee)

	result := &InsertResult{
		OrderID:  c.store.AllocateID(),
		Matched:  entries,
		Residual: new(uint256.Int),
	}
	c.logger.Debug("market order inserted",
		zap.Uint64("order_id", result.OrderID),
		zap.String("side", string(side)),
		zap.String("amount", amount.Dec()),
		zap.Int("matched_levels", len(entries)),
	)
	c.emit(&domain.Observation{
		Kind:       domain.ObservationMarketOrderInserted,
		OrderID:    result.OrderID,
		Caller:     caller,
		Side:       side,
		Amount:     new(uint256.Int).Set(amount),
		WorstPrice: new(uint256.Int).Set(worstPrice),
		Matched:    entries,
		Fee:        feeTaken,
	})
	return result, nil
}

// makerProceeds returns what a maker order pays out when claimed: base
// for buys, the quote notional for sells.
func (c *Controller) makerProceeds(o *domain.Order, amount *uint256.Int) (*uint256.Int, domain.AssetID) {
	if o.Side == domain.SideBuy {
		return new(uint256.Int).Set(amount), c.cfg.BaseAsset
	}
	q, err := c.quoteNotional(o.Price, amount)
	if err != nil {
		panic(err) // bounded by the escrow already checked at insert
	}
	return q, c.cfg.QuoteAsset
}

// entryRefund returns the entry asset escrow backing amount of o.
func (c *Controller) entryRefund(o *domain.Order, amount *uint256.Int) (*uint256.Int, domain.AssetID) {
	if o.Side == domain.SideBuy {
		q, err := c.quoteNotional(o.Price, amount)
		if err != nil {
			panic(err)
		}
		return q, c.cfg.QuoteAsset
	}
	return new(uint256.Int).Set(amount), c.cfg.BaseAsset
}

// ClaimOrder pays out a fully filled resting order. ownerHint is
// advisory; proceeds always go to the recorded owner.
func (c *Controller) ClaimOrder(orderID uint64, ownerHint domain.AccountID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.store.Get(orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.OrderStatusOpen {
		return &domain.InvalidOrderStatusError{ID: orderID, Status: o.Status}
	}

	verdict, claimable := c.oracle.Evaluate(o)
	if verdict != domain.FullyClaimable {
		return domain.ErrIsNotFullyClaimable
	}

	proceeds, asset := c.makerProceeds(o, claimable)
	feeTaken := c.creditNetOfFee(o.Owner, asset, proceeds, c.policy.MakerFee)
	if err := c.store.Transition(orderID, domain.OrderStatusClaimed); err != nil {
		panic(err) // status was checked above under the same lock
	}

	c.logger.Debug("order claimed",
		zap.Uint64("order_id", orderID),
		zap.String("owner_hint", string(ownerHint)),
		zap.String("claimed", claimable.Dec()),
	)
	c.emit(&domain.Observation{
		Kind:    domain.ObservationOrderClaimed,
		OrderID: orderID,
		Caller:  o.Owner,
		Side:    o.Side,
		Price:   new(uint256.Int).Set(o.Price),
		Claimed: claimable,
		Fee:     feeTaken,
	})
	return nil
}

// CancelOrder claims whatever portion of a resting order is already
// filled, retracts the unmatched residual from the book, records the
// cancellation, and refunds the residual's entry escrow.
func (c *Controller) CancelOrder(orderID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.store.Get(orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.OrderStatusOpen {
		return &domain.InvalidOrderStatusError{ID: orderID, Status: o.Status}
	}

	verdict, claimable := c.oracle.Evaluate(o)

	if verdict == domain.FullyClaimable {
		proceeds, asset := c.makerProceeds(o, claimable)
		feeTaken := c.creditNetOfFee(o.Owner, asset, proceeds, c.policy.MakerFee)
		if err := c.store.Transition(orderID, domain.OrderStatusClaimed); err != nil {
			panic(err)
		}
		c.emit(&domain.Observation{
			Kind:    domain.ObservationOrderClaimed,
			OrderID: orderID,
			Caller:  o.Owner,
			Side:    o.Side,
			Price:   new(uint256.Int).Set(o.Price),
			Claimed: claimable,
			Fee:     feeTaken,
		})
		return nil
	}

	residual := new(uint256.Int).Sub(o.TokenAmount, claimable)

	// Validate the cancellation accounting before mutating anything.
	raw, err := c.scale.ScaleDown(residual, o.Price, o.Side)
	if err != nil {
		return err
	}
	if err := c.book.CancelWithdraw(o.Price, o.Side, residual); err != nil {
		return err
	}
	if err := c.cancels.Record(o.Price, o.Side, o.OrderIndexInPricePoint, raw); err != nil {
		// Roll the withdraw back; the op must be all-or-nothing.
		c.book.Deposit(o.Price, o.Side, residual)
		return err
	}

	feeTaken := new(uint256.Int)
	if !claimable.IsZero() {
		proceeds, asset := c.makerProceeds(o, claimable)
		feeTaken = c.creditNetOfFee(o.Owner, asset, proceeds, c.policy.MakerFee)
	}
	refund, refundAsset := c.entryRefund(o, residual)
	c.ledger.Credit(o.Owner, refundAsset, refund)

	if err := c.store.Transition(orderID, domain.OrderStatusCanceled); err != nil {
		panic(err)
	}

	c.logger.Debug("order canceled",
		zap.Uint64("order_id", orderID),
		zap.String("claimed", claimable.Dec()),
		zap.String("refund", refund.Dec()),
	)
	c.emit(&domain.Observation{
		Kind:    domain.ObservationOrderCanceled,
		OrderID: orderID,
		Caller:  o.Owner,
		Side:    o.Side,
		Price:   new(uint256.Int).Set(o.Price),
		Claimed: claimable,
		Refund:  refund,
		Fee:     feeTaken,
	})
	return nil
}

// CollectFees transfers the accumulated fee balances to the governance
// treasury. Governance only.
func (c *Controller) CollectFees(caller domain.AccountID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.cfg.Governance {
		return &domain.InvalidCallerError{Caller: caller}
	}

	if !c.quoteFees.IsZero() {
		c.ledger.Credit(c.cfg.Governance, c.cfg.QuoteAsset, c.quoteFees)
		c.quoteFees = new(uint256.Int)
	}
	if !c.baseFees.IsZero() {
		c.ledger.Credit(c.cfg.Governance, c.cfg.BaseAsset, c.baseFees)
		c.baseFees = new(uint256.Int)
	}
	return nil
}

// UpdateMarketPolicy replaces the fee rates and price precision.
// Governance only.
func (c *Controller) UpdateMarketPolicy(caller domain.AccountID, makerFee, takerFee uint64, pricePrecision *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.cfg.Governance {
		return &domain.InvalidCallerError{Caller: caller}
	}
	if makerFee >= domain.FeePrecision || takerFee >= domain.FeePrecision {
		return domain.ErrOverflow
	}
	if pricePrecision == nil || pricePrecision.IsZero() {
		return domain.ErrUnderflow
	}

	c.policy = domain.MarketPolicy{
		MakerFee:       makerFee,
		TakerFee:       takerFee,
		PricePrecision: new(uint256.Int).Set(pricePrecision),
	}
	c.logger.Info("market policy updated",
		zap.Uint64("maker_fee", makerFee),
		zap.Uint64("taker_fee", takerFee),
		zap.String("price_precision", pricePrecision.Dec()),
	)
	c.emit(&domain.Observation{
		Kind:   domain.ObservationFeePolicyUpdated,
		Caller: caller,
		Policy: &domain.MarketPolicy{
			MakerFee:       makerFee,
			TakerFee:       takerFee,
			PricePrecision: new(uint256.Int).Set(pricePrecision),
		},
	})
	return nil
}

func (c *Controller) validatePrice(price *uint256.Int) error {
	if price.IsZero() {
		return domain.ErrUnderflow
	}
	rem := new(uint256.Int).Mod(price, c.policy.PricePrecision)
	if !rem.IsZero() {
		return domain.ErrUnderflow
	}
	return nil
}

// GetOrder returns the order record for id.
func (c *Controller) GetOrder(id uint64) (*domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(id)
}

// Claimability evaluates the claim oracle for an open order.
func (c *Controller) Claimability(id uint64) (domain.Claimability, *uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.store.Get(id)
	if err != nil {
		return domain.NotClaimable, nil, err
	}
	if o.Status != domain.OrderStatusOpen {
		return domain.NotClaimable, nil, &domain.InvalidOrderStatusError{ID: id, Status: o.Status}
	}
	verdict, amount := c.oracle.Evaluate(o)
	return verdict, amount, nil
}

// Depth returns a snapshot of the book.
func (c *Controller) Depth(depth int) *domain.Depth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.book.Depth(depth)
}

// LatestTradePrice returns the last matched price, zero before any
// trade.
func (c *Controller) LatestTradePrice() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(uint256.Int).Set(c.latestTradePrice)
}

// Policy returns the current market policy.
func (c *Controller) Policy() domain.MarketPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.MarketPolicy{
		MakerFee:       c.policy.MakerFee,
		TakerFee:       c.policy.TakerFee,
		PricePrecision: new(uint256.Int).Set(c.policy.PricePrecision),
	}
}

// FeeBalances returns the fee amounts accumulated since the last
// collection: quote first, base second.
func (c *Controller) FeeBalances() (*uint256.Int, *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(uint256.Int).Set(c.quoteFees), new(uint256.Int).Set(c.baseFees)
}
