// Package claim decides whether a resting order is fully, partially,
// or not yet filled. The decision combines the price point's fill
// watermark with the cancellation index: cancellations by
// earlier-queued orders shift the order's effective start toward the
// watermark without any per-order rewrite.
package claim

import (
	"github.com/holiman/uint256"

	"github.com/irnb/SegmentXOrderbook/internal/cancellation"
	"github.com/irnb/SegmentXOrderbook/internal/domain"
	"github.com/irnb/SegmentXOrderbook/internal/pricebook"
	"github.com/irnb/SegmentXOrderbook/internal/scaling"
)

// Oracle evaluates claimability against live book state.
type Oracle struct {
	book    *pricebook.Book
	cancels *cancellation.Index
	scale   scaling.Policy
}

// NewOracle creates an oracle over the pair's book, cancellation index
// and scaling policy.
func NewOracle(book *pricebook.Book, cancels *cancellation.Index, scale scaling.Policy) *Oracle {
	return &Oracle{book: book, cancels: cancels, scale: scale}
}

// Evaluate returns the claimability verdict and the claimable amount
// for o. The claimable amount is zero for NotClaimable, o.TokenAmount
// for FullyClaimable, and the filled prefix otherwise. It never
// exceeds o.TokenAmount.
func (or *Oracle) Evaluate(o *domain.Order) (domain.Claimability, *uint256.Int) {
	raw := or.cancels.CumulativeBefore(o.Price, o.Side, o.OrderIndexInPricePoint)
	cancelledBefore := or.scale.ScaleUp(raw, o.Price, o.Side)

	// realStart is the order's effective queue position once the slots
	// freed by earlier cancellations are discounted.
	realStart := new(uint256.Int).Sub(o.PreOrderLiquidityPosition, cancelledBefore)
	if cancelledBefore.Cmp(o.PreOrderLiquidityPosition) > 0 {
		// Quantization slack can push the subtraction past zero by at
		// most one quantum; clamp.
		realStart.Clear()
	}
	realEnd := new(uint256.Int).Add(realStart, o.TokenAmount)

	used := or.book.UsedLiquidity(o.Price, o.Side)

	switch {
	case realEnd.Cmp(used) <= 0:
		return domain.FullyClaimable, new(uint256.Int).Set(o.TokenAmount)
	case realStart.Cmp(used) >= 0:
		return domain.NotClaimable, new(uint256.Int)
	default:
		return domain.PartiallyClaimable, new(uint256.Int).Sub(used, realStart)
	}
}
