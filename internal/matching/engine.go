// Package matching walks the book from an entry price in the taker's
// scan direction and reports which price points a taker would consume.
// The scan is read-only; the pair controller applies the withdrawals.
package matching

import (
	"github.com/holiman/uint256"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

// BookView is the read-only slice of the price book the engine needs.
type BookView interface {
	TotalLiquidity(price *uint256.Int, side domain.Side) *uint256.Int
	Matchable(takerSide domain.Side, entryPrice *uint256.Int) bool
}

// Engine scans up to domain.MaxMatchedPricePoints levels per call.
type Engine struct {
	book BookView
}

// NewEngine creates an engine over the given book view.
func NewEngine(book BookView) *Engine {
	return &Engine{book: book}
}

// Match returns the price points a taker of side/amount entering at
// entryPrice would consume, in encounter order, stepping by step
// (the pair's price precision). A buy scans non-increasing prices, a
// sell non-decreasing. The returned entries never exceed
// domain.MaxMatchedPricePoints.
func (e *Engine) Match(side domain.Side, entryPrice, amount, step *uint256.Int) []domain.MatchEntry {
	if amount.IsZero() || entryPrice.IsZero() || step.IsZero() {
		return nil
	}
	if !e.book.Matchable(side, entryPrice) {
		return nil
	}

	maker := side.Opposite()
	remaining := new(uint256.Int).Set(amount)
	price := new(uint256.Int).Set(entryPrice)

	var entries []domain.MatchEntry
	for i := 0; i < domain.MaxMatchedPricePoints; i++ {
		available := e.book.TotalLiquidity(price, maker)
		if !available.IsZero() {
			consumed := new(uint256.Int).Set(remaining)
			if available.Cmp(consumed) < 0 {
				consumed.Set(available)
			}
			entries = append(entries, domain.MatchEntry{
				Price:  new(uint256.Int).Set(price),
				Amount: consumed,
			})
			remaining.Sub(remaining, consumed)
			if remaining.IsZero() {
				break
			}
		}

		if side == domain.SideBuy {
			// Buys scan downward; stop at the bottom of the grid.
			if price.Cmp(step) <= 0 {
				break
			}
			price.Sub(price, step)
		} else {
			next := new(uint256.Int)
			if _, overflow := next.AddOverflow(price, step); overflow {
				break
			}
			price.Set(next)
		}
	}
	return entries
}

// Consumed sums the matched amounts of a match vector.
func Consumed(entries []domain.MatchEntry) *uint256.Int {
	sum := new(uint256.Int)
	for _, m := range entries {
		sum.Add(sum, m.Amount)
	}
	return sum
}
