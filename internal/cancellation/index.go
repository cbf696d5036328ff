// Package cancellation maintains, per (price, side), the scaled-down
// amounts cancelled at each queue index. A two-level composition of
// segment trees answers "how much was cancelled strictly before index
// k" in O(log n): an inner tree per bucket of 32 768 indices plus an
// outer tree over bucket totals.
package cancellation

import (
	"github.com/holiman/uint256"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
	"github.com/irnb/SegmentXOrderbook/internal/segtree"
)

type sideKey struct {
	price [32]byte
	side  domain.Side
}

type entry struct {
	outer *segtree.Tree
	inner map[uint64]*segtree.Tree
}

// Index is the cancellation index for one pair. Not safe for
// concurrent use; the pair controller serializes access.
type Index struct {
	entries map[sideKey]*entry
}

// NewIndex creates an empty cancellation index.
func NewIndex() *Index {
	return &Index{entries: make(map[sideKey]*entry)}
}

func key(price *uint256.Int, side domain.Side) sideKey {
	return sideKey{price: price.Bytes32(), side: side}
}

func (x *Index) get(price *uint256.Int, side domain.Side) *entry {
	k := key(price, side)
	e, ok := x.entries[k]
	if !ok {
		e = &entry{
			outer: segtree.New(),
			inner: make(map[uint64]*segtree.Tree),
		}
		x.entries[k] = e
	}
	return e
}

// Record overwrites the cancellation amount at queue index idx with
// rawAmount (already scaled down to 64 bits) and refreshes the bucket
// total in the outer tree.
func (x *Index) Record(price *uint256.Int, side domain.Side, idx uint64, rawAmount uint64) error {
	e := x.get(price, side)

	bucket := idx / domain.OffsetPerPricePoint
	pos := idx % domain.OffsetPerPricePoint

	in, ok := e.inner[bucket]
	if !ok {
		in = segtree.New()
		e.inner[bucket] = in
	}
	old := in.Get(int(pos))
	if err := in.Update(int(pos), rawAmount); err != nil {
		return err
	}
	if err := e.outer.Update(int(bucket), in.Total()); err != nil {
		// Restore the leaf so a failed record leaves the index unchanged.
		_ = in.Update(int(pos), old)
		return err
	}
	return nil
}

// CumulativeBefore returns the sum of all cancellation amounts recorded
// at indices strictly below idx, in the scaled-down representation.
func (x *Index) CumulativeBefore(price *uint256.Int, side domain.Side, idx uint64) uint64 {
	e, ok := x.entries[key(price, side)]
	if !ok {
		return 0
	}

	bucket := idx / domain.OffsetPerPricePoint
	pos := idx % domain.OffsetPerPricePoint

	sum := e.outer.Query(0, int(bucket))
	if in, ok := e.inner[bucket]; ok {
		sum += in.Query(0, int(pos))
	}
	return sum
}

// At returns the recorded cancellation amount at exactly idx.
func (x *Index) At(price *uint256.Int, side domain.Side, idx uint64) uint64 {
	e, ok := x.entries[key(price, side)]
	if !ok {
		return 0
	}
	in, ok := e.inner[idx/domain.OffsetPerPricePoint]
	if !ok {
		return 0
	}
	return in.Get(int(idx % domain.OffsetPerPricePoint))
}

// TotalAt returns the all-time cancelled amount at (price, side), in
// the scaled-down representation.
func (x *Index) TotalAt(price *uint256.Int, side domain.Side) uint64 {
	e, ok := x.entries[key(price, side)]
	if !ok {
		return 0
	}
	return e.outer.Total()
}
