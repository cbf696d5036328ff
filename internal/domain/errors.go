package domain

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Sentinel errors for the failure modes that carry no parameters.
var (
	ErrNotEnoughLiquidity  = errors.New("not enough liquidity")
	ErrIsNotFullyClaimable = errors.New("order is not fully claimable")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrUnderflow           = errors.New("arithmetic underflow")
	ErrOrderNotFound       = errors.New("order not found")
)

// ExceedWorstPriceError is returned when a market order would execute
// beyond the caller's worst-price bound.
type ExceedWorstPriceError struct {
	Worst   *uint256.Int
	Offered *uint256.Int
}

func (e *ExceedWorstPriceError) Error() string {
	return fmt.Sprintf("offered price %s exceeds worst price %s", e.Offered.Dec(), e.Worst.Dec())
}

// InvalidOrderStatusError is returned on claim/cancel of a non-open order.
type InvalidOrderStatusError struct {
	ID     uint64
	Status OrderStatus
}

func (e *InvalidOrderStatusError) Error() string {
	return fmt.Sprintf("order %d has status %s, want %s", e.ID, e.Status, OrderStatusOpen)
}

// InvalidCallerError is returned when a governance-gated operation is
// invoked by anyone but the governance treasury.
type InvalidCallerError struct {
	Caller AccountID
}

func (e *InvalidCallerError) Error() string {
	return fmt.Sprintf("caller %s is not the governance treasury", e.Caller)
}

// LedgerError wraps a failure propagated from the external asset ledger.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }
