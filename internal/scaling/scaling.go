// Package scaling quantizes 256-bit liquidity amounts into the 64-bit
// leaves of the cancellation trees and back. The round trip loses at
// most one quantum: ScaleUp(ScaleDown(x)) <= x, with x -
// ScaleUp(ScaleDown(x)) < Quantum.
package scaling

import (
	"github.com/holiman/uint256"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

// Policy converts between canonical 18-decimal amounts and the compact
// tree representation. The quantum may depend on side and price so a
// pair can tune compression per asset.
type Policy interface {
	// Quantum returns the smallest representable increment for
	// cancellations at (price, side).
	Quantum(price *uint256.Int, side domain.Side) *uint256.Int

	// ScaleDown quantizes amount to the tree representation, rounding
	// down. It reports domain.ErrOverflow when the result does not fit
	// in 64 bits.
	ScaleDown(amount, price *uint256.Int, side domain.Side) (uint64, error)

	// ScaleUp restores a tree value to canonical units.
	ScaleUp(raw uint64, price *uint256.Int, side domain.Side) *uint256.Int
}

// FixedQuantum is a Policy with one uniform quantum for both sides.
type FixedQuantum struct {
	quantum *uint256.Int
}

// DefaultQuantum is 10^12: an 18-decimal amount compresses to
// millionths of a whole token, and a full 64-bit leaf still covers
// ~1.8e13 whole tokens per queue slot.
var DefaultQuantum = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(12))

// NewFixedQuantum creates a policy with the given quantum. A nil or
// zero quantum falls back to DefaultQuantum.
func NewFixedQuantum(quantum *uint256.Int) *FixedQuantum {
	if quantum == nil || quantum.IsZero() {
		quantum = DefaultQuantum
	}
	return &FixedQuantum{quantum: new(uint256.Int).Set(quantum)}
}

// Quantum implements Policy.
func (p *FixedQuantum) Quantum(_ *uint256.Int, _ domain.Side) *uint256.Int {
	return new(uint256.Int).Set(p.quantum)
}

// ScaleDown implements Policy.
func (p *FixedQuantum) ScaleDown(amount, _ *uint256.Int, _ domain.Side) (uint64, error) {
	q := new(uint256.Int).Div(amount, p.quantum)
	if !q.IsUint64() {
		return 0, domain.ErrOverflow
	}
	return q.Uint64(), nil
}

// ScaleUp implements Policy.
func (p *FixedQuantum) ScaleUp(raw uint64, _ *uint256.Int, _ domain.Side) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(raw), p.quantum)
}
