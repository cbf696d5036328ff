package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// ObservationKind tags an observation record.
type ObservationKind string

const (
	ObservationLimitOrderInserted  ObservationKind = "limit_order_inserted"
	ObservationMarketOrderInserted ObservationKind = "market_order_inserted"
	ObservationOrderClaimed        ObservationKind = "limit_maker_order_claimed"
	ObservationOrderCanceled       ObservationKind = "limit_maker_order_canceled"
	ObservationFeePolicyUpdated    ObservationKind = "fee_policy_updated"
)

// Observation is one committed state change of the pair, emitted in
// commit order. Fields are populated according to Kind; unused numeric
// fields are nil.
type Observation struct {
	// ID is assigned by the publisher; SequenceID by the sequencer, in
	// the order operations committed.
	ID         string          `json:"id"`
	SequenceID uint64          `json:"sequence_id"`
	Kind       ObservationKind `json:"kind"`
	Timestamp  time.Time       `json:"timestamp"`

	OrderID uint64    `json:"order_id"`
	Caller  AccountID `json:"caller,omitempty"`
	Side    Side      `json:"side,omitempty"`

	Price      *uint256.Int `json:"price,omitempty"`
	Amount     *uint256.Int `json:"amount,omitempty"`
	WorstPrice *uint256.Int `json:"worst_price,omitempty"`
	Residual   *uint256.Int `json:"residual,omitempty"`
	Claimed    *uint256.Int `json:"claimed,omitempty"`
	Refund     *uint256.Int `json:"refund,omitempty"`
	Fee        *uint256.Int `json:"fee,omitempty"`

	Matched []MatchEntry `json:"matched,omitempty"`

	Policy *MarketPolicy `json:"policy,omitempty"`
}

// ObservationSink receives committed observations. Publish is called
// under the pair lock so records arrive in commit order; delivery to
// downstream consumers may be asynchronous.
type ObservationSink interface {
	Publish(obs *Observation)
}
