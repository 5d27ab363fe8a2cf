// Package aggregator merges the per-exchange books into the consolidated
// summary stream.
package aggregator

import (
	"context"

	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/Aidin1998/obagg/internal/book"
	"github.com/Aidin1998/obagg/internal/feed"
	"github.com/Aidin1998/obagg/internal/subscriber"
	pb "github.com/Aidin1998/obagg/proto/orderbook"
)

// Aggregator is a single-consumer actor. It caches the latest book per
// exchange, and on every upstream update rebuilds the composite book from
// scratch, truncates it to the configured depth and hands the summary to
// the pool. It never blocks on subscribers.
type Aggregator struct {
	depth int
	// lowAmountBids orders same-price bid levels lowest amount first and
	// ask levels highest amount first; false is the inverse. Either way the
	// composite ordering is total and deterministic.
	lowAmountBids bool
	pool          *subscriber.Pool
	logger        *zap.Logger

	books map[string]*book.Book
}

// New creates the aggregator.
func New(depth int, lowAmountBids bool, pool *subscriber.Pool, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		depth:         depth,
		lowAmountBids: lowAmountBids,
		pool:          pool,
		logger:        logger.Named("aggregator"),
		books:         make(map[string]*book.Book),
	}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (a *Aggregator) Run(ctx context.Context, updates <-chan feed.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			a.books[u.Exchange] = u.Book

			// With nobody listening the tick is worthless; skip the merge
			// entirely rather than buffering summaries.
			if a.pool.Len() == 0 {
				continue
			}
			if summary := a.merge(); summary != nil {
				a.pool.Broadcast(summary)
			}
		}
	}
}

// merge rebuilds the composite book from the cached exchange books and
// returns the outbound summary, or nil when either side is empty and there
// is nothing meaningful to report.
func (a *Aggregator) merge() *pb.Summary {
	bids := btree.NewBTreeG(compositeLess(true, a.lowAmountBids))
	asks := btree.NewBTreeG(compositeLess(false, !a.lowAmountBids))
	for _, b := range a.books {
		b.Bids.Each(func(l book.Level) bool {
			bids.Set(l)
			return true
		})
		b.Asks.Each(func(l book.Level) bool {
			asks.Set(l)
			return true
		})
	}

	bidsOut := takeBest(bids, a.depth)
	asksOut := takeBest(asks, a.depth)
	if len(bidsOut) == 0 || len(asksOut) == 0 {
		return nil
	}

	return &pb.Summary{
		Spread: asksOut[0].Price - bidsOut[0].Price,
		Bids:   bidsOut,
		Asks:   asksOut,
	}
}

// compositeLess orders levels best-first: price first, then the amount
// tie-break for identical prices quoted by different exchanges, then the
// exchange name so the order is total.
func compositeLess(bids, lowAmountFirst bool) func(a, b book.Level) bool {
	return func(x, y book.Level) bool {
		if c := x.Price.Cmp(y.Price); c != 0 {
			if bids {
				return c > 0
			}
			return c < 0
		}
		if x.Amount != y.Amount {
			if lowAmountFirst {
				return x.Amount < y.Amount
			}
			return x.Amount > y.Amount
		}
		return x.Exchange < y.Exchange
	}
}

func takeBest(side *btree.BTreeG[book.Level], depth int) []*pb.Level {
	out := make([]*pb.Level, 0, depth)
	side.Scan(func(l book.Level) bool {
		if len(out) >= depth {
			return false
		}
		out = append(out, &pb.Level{
			Exchange: l.Exchange,
			Price:    l.Price.InexactFloat64(),
			Amount:   l.Amount,
		})
		return true
	})
	return out
}
