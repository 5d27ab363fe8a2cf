// Package feed contains the per-exchange orderbook synchronizers. Each feed
// owns its book exclusively and hands depth-truncated copies downstream
// through a channel; no book state is shared across goroutines.
package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/obagg/internal/book"
	"github.com/Aidin1998/obagg/pkg/metrics"
)

// Update is the hand-off message from a feed to the aggregator: a
// depth-truncated copy of the feed's current book, tagged with its origin.
type Update struct {
	Exchange string
	Book     *book.Book
}

// Feed is a single exchange synchronizer task. Run consumes the exchange
// transport until the connection fails, emitting an Update for every
// accepted book change. A closed transport terminates Run with an error;
// reconnection is the supervisor's job, not the feed's.
type Feed interface {
	Name() string
	Run(ctx context.Context, out chan<- Update) error
}

// Supervise runs f until ctx is cancelled, restarting it after a fixed
// backoff whenever its transport fails.
func Supervise(ctx context.Context, f Feed, out chan<- Update, logger *zap.Logger, backoff time.Duration) {
	for {
		err := f.Run(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Error("feed terminated, restarting",
				zap.String("exchange", f.Name()),
				zap.Duration("backoff", backoff),
				zap.Error(err))
		} else {
			logger.Warn("feed stopped, restarting",
				zap.String("exchange", f.Name()),
				zap.Duration("backoff", backoff))
		}
		metrics.FeedRestarts.WithLabelValues(f.Name()).Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
