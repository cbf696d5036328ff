// Package orderstore assigns monotonic order IDs and owns the resting
// order records through their Open -> {Claimed, Canceled} lifecycle.
package orderstore

import (
	"github.com/holiman/uint256"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

// Store holds the order records of one pair. Not safe for concurrent
// use; the pair controller serializes access.
type Store struct {
	orders map[uint64]*domain.Order
	nextID uint64
}

// New creates an empty store. IDs start at zero.
func New() *Store {
	return &Store{orders: make(map[uint64]*domain.Order)}
}

// NextID returns the ID the next created order will get.
func (s *Store) NextID() uint64 {
	return s.nextID
}

// Count returns how many order IDs were ever assigned, including IDs
// consumed by AllocateID without a record.
func (s *Store) Count() uint64 {
	return s.nextID
}

// AllocateID consumes the next order ID without creating a record.
// Used for orders that never rest (market orders, fully matched limit
// orders); claims against such IDs report domain.ErrOrderNotFound.
func (s *Store) AllocateID() uint64 {
	id := s.nextID
	s.nextID++
	return id
}

// Create stores a new open order under the next ID and returns the
// stored record.
func (s *Store) Create(owner domain.AccountID, side domain.Side, price, amount *uint256.Int, orderIndex uint64, preOrderLiquidity *uint256.Int) *domain.Order {
	o := &domain.Order{
		ID:                        s.nextID,
		Owner:                     owner,
		Side:                      side,
		Price:                     new(uint256.Int).Set(price),
		TokenAmount:               new(uint256.Int).Set(amount),
		OrderIndexInPricePoint:    orderIndex,
		PreOrderLiquidityPosition: new(uint256.Int).Set(preOrderLiquidity),
		Status:                    domain.OrderStatusOpen,
	}
	s.orders[o.ID] = o
	s.nextID++
	return o
}

// Get returns the order with the given ID or domain.ErrOrderNotFound.
func (s *Store) Get(id uint64) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// Transition moves an open order to its terminal status. A non-open
// order yields InvalidOrderStatusError.
func (s *Store) Transition(id uint64, to domain.OrderStatus) error {
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != domain.OrderStatusOpen {
		return &domain.InvalidOrderStatusError{ID: id, Status: o.Status}
	}
	o.Status = to
	return nil
}
