// Package ledger defines the asset custody capability the pair
// controller draws on, plus an in-memory implementation used by the
// server and the tests.
package ledger

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

// AssetLedger moves assets between the pair and account owners. Debit
// may fail (insufficient balance, custody errors); Credit never fails.
type AssetLedger interface {
	Debit(account domain.AccountID, asset domain.AssetID, amount *uint256.Int) error
	Credit(account domain.AccountID, asset domain.AssetID, amount *uint256.Int)
}

// InMemory is a balance-map ledger guarded by a mutex. It serializes
// its own transfers, so it may be shared across pairs.
type InMemory struct {
	mu       sync.RWMutex
	balances map[domain.AccountID]map[domain.AssetID]*uint256.Int
}

// NewInMemory creates an empty in-memory ledger.
func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[domain.AccountID]map[domain.AssetID]*uint256.Int)}
}

// Mint credits amount out of thin air. Test and faucet use.
func (l *InMemory) Mint(account domain.AccountID, asset domain.AssetID, amount *uint256.Int) {
	l.Credit(account, asset, amount)
}

// Balance returns the account's balance of asset.
func (l *InMemory) Balance(account domain.AccountID, asset domain.AssetID) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if assets, ok := l.balances[account]; ok {
		if b, ok := assets[asset]; ok {
			return new(uint256.Int).Set(b)
		}
	}
	return new(uint256.Int)
}

// Balances returns a copy of all of the account's balances.
func (l *InMemory) Balances(account domain.AccountID) map[domain.AssetID]*uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[domain.AssetID]*uint256.Int)
	for asset, b := range l.balances[account] {
		out[asset] = new(uint256.Int).Set(b)
	}
	return out
}

// Debit implements AssetLedger. It fails when the account balance is
// short and leaves balances untouched on failure.
func (l *InMemory) Debit(account domain.AccountID, asset domain.AssetID, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	assets, ok := l.balances[account]
	if !ok {
		return fmt.Errorf("account %s holds no %s", account, asset)
	}
	b, ok := assets[asset]
	if !ok || b.Cmp(amount) < 0 {
		return fmt.Errorf("account %s holds insufficient %s", account, asset)
	}
	b.Sub(b, amount)
	return nil
}

// Credit implements AssetLedger.
func (l *InMemory) Credit(account domain.AccountID, asset domain.AssetID, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	assets, ok := l.balances[account]
	if !ok {
		assets = make(map[domain.AssetID]*uint256.Int)
		l.balances[account] = assets
	}
	b, ok := assets[asset]
	if !ok {
		b = new(uint256.Int)
		assets[asset] = b
	}
	b.Add(b, amount)
}
