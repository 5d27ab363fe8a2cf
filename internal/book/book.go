// Package book implements the price-level orderbook shared by all exchange
// feeds and the aggregator. Prices are exact decimals so ordering and
// equality never suffer from binary rounding; amounts are plain float64
// since they are only displayed, never compared.
package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// Level is one standing price level, tagged with the exchange it came from.
type Level struct {
	Price    decimal.Decimal
	Amount   float64
	Exchange string
}

// Side holds one side of a book ordered by exact price. Bids iterate
// best-first from the high end, asks from the low end.
type Side struct {
	tree *btree.BTreeG[Level]
	bids bool
}

func newSide(bids bool) *Side {
	return &Side{
		tree: btree.NewBTreeG(func(a, b Level) bool { return a.Price.LessThan(b.Price) }),
		bids: bids,
	}
}

// Upsert inserts or replaces the level at its price. An amount <= 0 removes
// the level instead; removing an absent level is a no-op.
func (s *Side) Upsert(l Level) {
	if l.Amount <= 0 {
		s.tree.Delete(Level{Price: l.Price})
		return
	}
	s.tree.Set(l)
}

// Len reports the number of levels on the side.
func (s *Side) Len() int { return s.tree.Len() }

// Get returns the level at the exact price, if present.
func (s *Side) Get(price decimal.Decimal) (Level, bool) {
	return s.tree.Get(Level{Price: price})
}

// Best returns the best level on the side: highest price for bids, lowest
// for asks.
func (s *Side) Best() (Level, bool) {
	if s.bids {
		return s.tree.Max()
	}
	return s.tree.Min()
}

// Each visits the side's levels best-first until fn returns false.
func (s *Side) Each(fn func(Level) bool) {
	if s.bids {
		s.tree.Reverse(fn)
		return
	}
	s.tree.Scan(fn)
}

// BestN returns up to n levels in best-first order.
func (s *Side) BestN(n int) []Level {
	out := make([]Level, 0, n)
	s.Each(func(l Level) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, l)
		return true
	})
	return out
}

func (s *Side) clone() *Side {
	return &Side{tree: s.tree.Copy(), bids: s.bids}
}

// trim drops the worst levels until the side holds at most depth entries.
func (s *Side) trim(depth int) {
	for s.tree.Len() > depth {
		if s.bids {
			s.tree.PopMin()
		} else {
			s.tree.PopMax()
		}
	}
}

// Book is the two-sided orderbook for a single exchange and symbol. It is
// owned by exactly one goroutine; hand-offs across goroutines use Clone or
// Truncate, which share nodes copy-on-write and never alias mutations.
type Book struct {
	Bids *Side
	Asks *Side
}

// New returns an empty book.
func New() *Book {
	return &Book{Bids: newSide(true), Asks: newSide(false)}
}

// Clear removes every level from both sides.
func (b *Book) Clear() {
	b.Bids = newSide(true)
	b.Asks = newSide(false)
}

// ApplyBid upserts a bid level and removes any ask levels it crosses. The
// exchange delta format leaves momentarily-stale opposite-side levels in
// place, so a bid at or above an ask price invalidates those asks.
func (b *Book) ApplyBid(l Level) {
	b.Bids.Upsert(l)
	if l.Amount <= 0 {
		return
	}
	removeCrossed(b.Asks, func(ask Level) bool { return ask.Price.LessThanOrEqual(l.Price) })
}

// ApplyAsk upserts an ask level and removes any bid levels it crosses.
func (b *Book) ApplyAsk(l Level) {
	b.Asks.Upsert(l)
	if l.Amount <= 0 {
		return
	}
	removeCrossed(b.Bids, func(bid Level) bool { return bid.Price.GreaterThanOrEqual(l.Price) })
}

func removeCrossed(s *Side, crossed func(Level) bool) {
	var stale []Level
	s.Each(func(l Level) bool {
		if !crossed(l) {
			return false
		}
		stale = append(stale, l)
		return true
	})
	for _, l := range stale {
		s.tree.Delete(l)
	}
}

// Clone returns an independent copy of the book.
func (b *Book) Clone() *Book {
	return &Book{Bids: b.Bids.clone(), Asks: b.Asks.clone()}
}

// Truncate returns a copy of the book reduced to the best depth levels per
// side. The receiver is never mutated, and a book already at or under depth
// comes back with identical contents.
func (b *Book) Truncate(depth int) *Book {
	c := b.Clone()
	c.Bids.trim(depth)
	c.Asks.trim(depth)
	return c
}
