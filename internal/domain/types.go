package domain

import (
	"github.com/holiman/uint256"
)

// Side represents the order side (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus represents the lifecycle state of a resting order.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClaimed  OrderStatus = "claimed"
	OrderStatusCanceled OrderStatus = "canceled"
)

// AccountID is an opaque caller identity handle.
type AccountID string

// AssetID identifies one of the pair's two assets.
type AssetID string

const (
	// FeePrecision is the denominator of all fee rates (unit 0.0001%).
	FeePrecision = 1_000_000

	// MaxMatchedPricePoints bounds how many price points a single
	// matching pass may visit.
	MaxMatchedPricePoints = 5

	// OffsetPerPricePoint is the capacity of one cancellation bucket.
	OffsetPerPricePoint = 32_768
)

// Order is a resting limit order record.
type Order struct {
	ID uint64 `json:"id"`

	Owner AccountID `json:"owner"`
	Side  Side      `json:"side"`

	// Price in quote units per one base unit, a multiple of the
	// pair's price precision.
	Price *uint256.Int `json:"price"`

	// TokenAmount is the order size in base units.
	TokenAmount *uint256.Int `json:"token_amount"`

	// OrderIndexInPricePoint is the zero-based arrival index within
	// the (price, side) queue.
	OrderIndexInPricePoint uint64 `json:"order_index_in_price_point"`

	// PreOrderLiquidityPosition is the cumulative deposited amount
	// queued ahead of this order at placement time. Together with the
	// price point's used-liquidity watermark it encodes time priority.
	PreOrderLiquidityPosition *uint256.Int `json:"pre_order_liquidity_position"`

	Status OrderStatus `json:"status"`
}

// MatchEntry is one consumed price level of a matching pass, in
// encounter order.
type MatchEntry struct {
	Price  *uint256.Int `json:"price"`
	Amount *uint256.Int `json:"amount"`
}

// Claimability is the claim oracle verdict for a resting order.
type Claimability int

const (
	NotClaimable Claimability = iota
	PartiallyClaimable
	FullyClaimable
)

func (c Claimability) String() string {
	switch c {
	case FullyClaimable:
		return "fully_claimable"
	case PartiallyClaimable:
		return "partially_claimable"
	default:
		return "not_claimable"
	}
}

// MarketPolicy holds the runtime-adjustable market knobs. Fee rates are
// in FeePrecision units; PricePrecision is the price quantum.
type MarketPolicy struct {
	MakerFee       uint64       `json:"maker_fee"`
	TakerFee       uint64       `json:"taker_fee"`
	PricePrecision *uint256.Int `json:"price_precision"`
}

// DepthLevel is one price point of a depth snapshot.
type DepthLevel struct {
	Price          *uint256.Int `json:"price"`
	TotalBuy       *uint256.Int `json:"total_buy"`
	TotalSell      *uint256.Int `json:"total_sell"`
	UsedBuy        *uint256.Int `json:"used_buy"`
	UsedSell       *uint256.Int `json:"used_sell"`
	BuyOrderCount  uint64       `json:"buy_order_count"`
	SellOrderCount uint64       `json:"sell_order_count"`
}

// Depth is a two-sided snapshot of the book around the best prices.
type Depth struct {
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}
