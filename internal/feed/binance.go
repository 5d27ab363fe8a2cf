package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aidin1998/obagg/internal/book"
	"github.com/Aidin1998/obagg/internal/config"
	"github.com/Aidin1998/obagg/pkg/metrics"
)

const binanceName = "binance"

const (
	snapshotLimit      = 1000
	snapshotRetryDelay = 2 * time.Second
	handshakeTimeout   = 10 * time.Second

	// Binance serves depth-limited partial book streams up to 20 levels;
	// beyond that the sequenced diff stream plus a REST snapshot is the
	// only option.
	reducedDepthMax = 20
)

// Binance consumes the Binance depth feed. For depths at or under
// reducedDepthMax it uses the partial book stream, where every message is a
// complete top-N snapshot. For greater depths it maintains a full local
// book from the diff stream, reconciled against a REST snapshot.
type Binance struct {
	cfg    config.BinanceConfig
	ticker string
	depth  int
	logger *zap.Logger
	client *http.Client
}

// NewBinance creates the Binance feed for one ticker.
func NewBinance(cfg config.BinanceConfig, ticker string, depth int, logger *zap.Logger) *Binance {
	return &Binance{
		cfg:    cfg,
		ticker: strings.ToLower(ticker),
		depth:  depth,
		logger: logger.Named(binanceName),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Name implements Feed.
func (b *Binance) Name() string { return binanceName }

// Run implements Feed.
func (b *Binance) Run(ctx context.Context, out chan<- Update) error {
	if b.depth <= reducedDepthMax {
		return b.runReduced(ctx, out)
	}
	return b.runSequenced(ctx, out)
}

// dial connects the websocket channel. The returned stop func closes the
// connection and releases the watcher goroutine; callers must defer it.
func (b *Binance) dial(ctx context.Context, channel string) (*websocket.Conn, func(), error) {
	url := strings.TrimRight(b.cfg.Websocket, "/") + channel
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", url, err)
	}
	b.logger.Info("websocket connected", zap.String("url", url))

	// ReadMessage does not honor ctx; closing the conn unblocks it. The
	// done channel ends the watcher when Run exits for any other reason.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	stop := func() {
		close(done)
		conn.Close()
	}
	return conn, stop, nil
}

// runSequenced maintains the book from the diff stream per the exchange's
// synchronization recipe: snapshot first, drop deltas already covered by
// it, accept the first delta whose range brackets lastUpdateId+1, then
// require strict contiguity and resync on any gap.
func (b *Binance) runSequenced(ctx context.Context, out chan<- Update) error {
	conn, stop, err := b.dial(ctx, fmt.Sprintf("/ws/%s@depth@100ms", b.ticker))
	if err != nil {
		return err
	}
	defer stop()

	sync := newDeltaSync(binanceName)
	if err := b.resync(ctx, sync); err != nil {
		return err
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read binance websocket: %w", err)
		}
		if mt != websocket.TextMessage {
			b.logger.Debug("discarding non-text frame", zap.Int("type", mt))
			metrics.MessagesDiscarded.WithLabelValues(binanceName, "non_text").Inc()
			continue
		}

		var delta depthUpdate
		if err := json.Unmarshal(data, &delta); err != nil || delta.Event != "depthUpdate" {
			b.logger.Debug("discarding non-depth message", zap.ByteString("msg", data))
			metrics.MessagesDiscarded.WithLabelValues(binanceName, "malformed").Inc()
			continue
		}

		res, err := sync.apply(&delta)
		if err != nil {
			b.logger.Debug("discarding malformed delta", zap.Error(err))
			metrics.MessagesDiscarded.WithLabelValues(binanceName, "malformed").Inc()
			continue
		}
		switch res {
		case applyStale:
			metrics.MessagesDiscarded.WithLabelValues(binanceName, "stale").Inc()
			continue
		case applyOutOfSequence:
			b.logger.Warn("update out of sequence, resyncing",
				zap.Uint64("first_update_id", delta.FirstUpdateID),
				zap.Uint64("last_update_id", delta.LastUpdateID),
				zap.Uint64("last_known_id", sync.lastID))
			metrics.Resyncs.WithLabelValues(binanceName).Inc()
			if err := b.resync(ctx, sync); err != nil {
				return err
			}
			continue
		}

		metrics.UpdatesApplied.WithLabelValues(binanceName).Inc()
		select {
		case out <- Update{Exchange: binanceName, Book: sync.book.Truncate(b.depth)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runReduced consumes the partial book stream; every message replaces the
// book wholesale and no reconciliation state is needed.
func (b *Binance) runReduced(ctx context.Context, out chan<- Update) error {
	conn, stop, err := b.dial(ctx, fmt.Sprintf("/ws/%s@depth%d@100ms", b.ticker, b.depth))
	if err != nil {
		return err
	}
	defer stop()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read binance websocket: %w", err)
		}
		if mt != websocket.TextMessage {
			b.logger.Debug("discarding non-text frame", zap.Int("type", mt))
			metrics.MessagesDiscarded.WithLabelValues(binanceName, "non_text").Inc()
			continue
		}

		var snap depthSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			b.logger.Debug("discarding non-book message", zap.ByteString("msg", data))
			metrics.MessagesDiscarded.WithLabelValues(binanceName, "malformed").Inc()
			continue
		}
		fresh, err := bookFromLevels(snap.Bids, snap.Asks, binanceName)
		if err != nil {
			b.logger.Debug("discarding malformed book message", zap.Error(err))
			metrics.MessagesDiscarded.WithLabelValues(binanceName, "malformed").Inc()
			continue
		}

		metrics.UpdatesApplied.WithLabelValues(binanceName).Inc()
		select {
		case out <- Update{Exchange: binanceName, Book: fresh.Truncate(b.depth)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// resync re-fetches the REST snapshot until it succeeds, with a fixed
// retry delay. Only context cancellation makes it give up.
func (b *Binance) resync(ctx context.Context, sync *deltaSync) error {
	for {
		snap, err := b.fetchSnapshot(ctx)
		if err == nil {
			if err = sync.resetFromSnapshot(snap); err == nil {
				b.logger.Info("snapshot applied", zap.Uint64("last_update_id", sync.lastID))
				return nil
			}
		}
		b.logger.Error("snapshot fetch failed, retrying",
			zap.Duration("delay", snapshotRetryDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(snapshotRetryDelay):
		}
	}
}

func (b *Binance) fetchSnapshot(ctx context.Context) (*depthSnapshot, error) {
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d",
		strings.TrimRight(b.cfg.API, "/"), strings.ToUpper(b.ticker), snapshotLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: unexpected status %s", resp.Status)
	}

	var snap depthSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// bookFromLevels builds a fresh book from complete bid/ask sets.
func bookFromLevels(rawBids, rawAsks [][]string, exchange string) (*book.Book, error) {
	bids, err := parseLevels(rawBids, exchange)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(rawAsks, exchange)
	if err != nil {
		return nil, err
	}
	fresh := book.New()
	for _, l := range bids {
		fresh.Bids.Upsert(l)
	}
	for _, l := range asks {
		fresh.Asks.Upsert(l)
	}
	return fresh, nil
}
