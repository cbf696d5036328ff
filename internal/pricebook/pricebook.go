// Package pricebook keeps the per-price liquidity state of one trading
// pair: resting totals, the used-liquidity fill watermark, and order
// counts for each side, plus the advisory leading prices.
package pricebook

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

// PricePoint is the liquidity state at one discrete price.
type PricePoint struct {
	Price *uint256.Int

	// Resting amounts currently offered on each side.
	TotalBuy  *uint256.Int
	TotalSell *uint256.Int

	// Cumulative amounts matched against each side's queue. The
	// watermark only advances.
	UsedBuy  *uint256.Int
	UsedSell *uint256.Int

	// Orders ever placed on each side here. Never decremented.
	BuyOrderCount  uint64
	SellOrderCount uint64
}

func newPricePoint(price *uint256.Int) *PricePoint {
	return &PricePoint{
		Price:     new(uint256.Int).Set(price),
		TotalBuy:  new(uint256.Int),
		TotalSell: new(uint256.Int),
		UsedBuy:   new(uint256.Int),
		UsedSell:  new(uint256.Int),
	}
}

func (p *PricePoint) total(side domain.Side) *uint256.Int {
	if side == domain.SideBuy {
		return p.TotalBuy
	}
	return p.TotalSell
}

func (p *PricePoint) used(side domain.Side) *uint256.Int {
	if side == domain.SideBuy {
		return p.UsedBuy
	}
	return p.UsedSell
}

// Book is the price-point map for one pair plus the leading-price
// hints. Not safe for concurrent use; the pair controller serializes
// access.
type Book struct {
	points map[[32]byte]*PricePoint

	buyLeading     *uint256.Int // highest price that received a buy deposit
	sellLeading    *uint256.Int // lowest price that received a sell deposit
	buyLeadingSet  bool
	sellLeadingSet bool
}

// New creates an empty book.
func New() *Book {
	return &Book{points: make(map[[32]byte]*PricePoint)}
}

func (b *Book) point(price *uint256.Int) *PricePoint {
	k := price.Bytes32()
	p, ok := b.points[k]
	if !ok {
		p = newPricePoint(price)
		b.points[k] = p
	}
	return p
}

// Lookup returns the price point at price, or nil if none was ever
// touched.
func (b *Book) Lookup(price *uint256.Int) *PricePoint {
	return b.points[price.Bytes32()]
}

// TotalLiquidity returns the resting amount on side at price.
func (b *Book) TotalLiquidity(price *uint256.Int, side domain.Side) *uint256.Int {
	p := b.Lookup(price)
	if p == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(p.total(side))
}

// UsedLiquidity returns side's fill watermark at price.
func (b *Book) UsedLiquidity(price *uint256.Int, side domain.Side) *uint256.Int {
	p := b.Lookup(price)
	if p == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(p.used(side))
}

// OrderCount returns how many orders were ever placed on side at price.
func (b *Book) OrderCount(price *uint256.Int, side domain.Side) uint64 {
	p := b.Lookup(price)
	if p == nil {
		return 0
	}
	if side == domain.SideBuy {
		return p.BuyOrderCount
	}
	return p.SellOrderCount
}

// IncrementOrderCount bumps side's all-time order count at price and
// returns the index the new order occupies.
func (b *Book) IncrementOrderCount(price *uint256.Int, side domain.Side) uint64 {
	p := b.point(price)
	if side == domain.SideBuy {
		idx := p.BuyOrderCount
		p.BuyOrderCount++
		return idx
	}
	idx := p.SellOrderCount
	p.SellOrderCount++
	return idx
}

// Deposit adds maker liquidity on side at price and promotes the
// leading price when the new level is better.
func (b *Book) Deposit(price *uint256.Int, side domain.Side, amount *uint256.Int) {
	p := b.point(price)
	p.total(side).Add(p.total(side), amount)

	if side == domain.SideBuy {
		if !b.buyLeadingSet || price.Cmp(b.buyLeading) > 0 {
			b.buyLeading = new(uint256.Int).Set(price)
			b.buyLeadingSet = true
		}
	} else {
		if !b.sellLeadingSet || price.Cmp(b.sellLeading) < 0 {
			b.sellLeading = new(uint256.Int).Set(price)
			b.sellLeadingSet = true
		}
	}
}

// TakerWithdraw consumes resting liquidity opposite to takerSide at
// price and advances that side's fill watermark.
func (b *Book) TakerWithdraw(price *uint256.Int, takerSide domain.Side, amount *uint256.Int) error {
	maker := takerSide.Opposite()
	p := b.point(price)
	if p.total(maker).Cmp(amount) < 0 {
		return domain.ErrUnderflow
	}
	p.total(maker).Sub(p.total(maker), amount)
	p.used(maker).Add(p.used(maker), amount)
	return nil
}

// CancelWithdraw retracts a maker's own unmatched residual from side at
// price. The fill watermark is untouched: the residual sits strictly
// above it, and the cancellation index accounts for the gap.
func (b *Book) CancelWithdraw(price *uint256.Int, side domain.Side, amount *uint256.Int) error {
	p := b.point(price)
	if p.total(side).Cmp(amount) < 0 {
		return domain.ErrUnderflow
	}
	p.total(side).Sub(p.total(side), amount)
	return nil
}

// Matchable reports whether a matching scan entering at entryPrice on
// takerSide can possibly hit liquidity. It is a gate hint only: a true
// return does not guarantee a match, but a false return guarantees
// none within the scan window.
func (b *Book) Matchable(takerSide domain.Side, entryPrice *uint256.Int) bool {
	if takerSide == domain.SideBuy {
		if b.sellLeadingSet && entryPrice.Cmp(b.sellLeading) >= 0 {
			return true
		}
		return !b.TotalLiquidity(entryPrice, domain.SideSell).IsZero()
	}
	if b.buyLeadingSet && entryPrice.Cmp(b.buyLeading) <= 0 {
		return true
	}
	return !b.TotalLiquidity(entryPrice, domain.SideBuy).IsZero()
}

// LeadingPrice returns side's advisory leading price, or nil when no
// deposit was ever made on that side.
func (b *Book) LeadingPrice(side domain.Side) *uint256.Int {
	if side == domain.SideBuy {
		if !b.buyLeadingSet {
			return nil
		}
		return new(uint256.Int).Set(b.buyLeading)
	}
	if !b.sellLeadingSet {
		return nil
	}
	return new(uint256.Int).Set(b.sellLeading)
}

// Depth returns up to depth levels per side that still carry resting
// liquidity: bids sorted from highest price down, asks from lowest up.
func (b *Book) Depth(depth int) *domain.Depth {
	var bids, asks []*PricePoint
	for _, p := range b.points {
		if !p.TotalBuy.IsZero() {
			bids = append(bids, p)
		}
		if !p.TotalSell.IsZero() {
			asks = append(asks, p)
		}
	}

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.Cmp(bids[j].Price) > 0 })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.Cmp(asks[j].Price) < 0 })

	if depth > 0 && len(bids) > depth {
		bids = bids[:depth]
	}
	if depth > 0 && len(asks) > depth {
		asks = asks[:depth]
	}

	out := &domain.Depth{
		Bids: make([]domain.DepthLevel, len(bids)),
		Asks: make([]domain.DepthLevel, len(asks)),
	}
	for i, p := range bids {
		out.Bids[i] = level(p)
	}
	for i, p := range asks {
		out.Asks[i] = level(p)
	}
	return out
}

func level(p *PricePoint) domain.DepthLevel {
	return domain.DepthLevel{
		Price:          new(uint256.Int).Set(p.Price),
		TotalBuy:       new(uint256.Int).Set(p.TotalBuy),
		TotalSell:      new(uint256.Int).Set(p.TotalSell),
		UsedBuy:        new(uint256.Int).Set(p.UsedBuy),
		UsedSell:       new(uint256.Int).Set(p.UsedSell),
		BuyOrderCount:  p.BuyOrderCount,
		SellOrderCount: p.SellOrderCount,
	}
}
