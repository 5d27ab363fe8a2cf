package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aidin1998/obagg/internal/config"
	"github.com/Aidin1998/obagg/pkg/metrics"
)

const bitstampName = "bitstamp"

const pingWriteTimeout = 5 * time.Second

// Bitstamp consumes the Bitstamp live order book channel. The channel
// carries no sequence numbers: every data event is a complete depth-limited
// snapshot, so the book is replaced wholesale per message. Bitstamp drops
// idle connections, so a ping is written on a fixed period regardless of
// book activity.
type Bitstamp struct {
	cfg    config.BitstampConfig
	ticker string
	depth  int
	logger *zap.Logger
}

// NewBitstamp creates the Bitstamp feed for one ticker.
func NewBitstamp(cfg config.BitstampConfig, ticker string, depth int, logger *zap.Logger) *Bitstamp {
	return &Bitstamp{
		cfg:    cfg,
		ticker: strings.ToLower(ticker),
		depth:  depth,
		logger: logger.Named(bitstampName),
	}
}

// Name implements Feed.
func (b *Bitstamp) Name() string { return bitstampName }

// Run implements Feed.
func (b *Bitstamp) Run(ctx context.Context, out chan<- Update) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, b.cfg.Websocket, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.cfg.Websocket, err)
	}
	defer conn.Close()
	b.logger.Info("websocket connected", zap.String("url", b.cfg.Websocket))

	// done releases the watcher and the ping writer when Run exits for any
	// reason; ReadMessage does not honor ctx, so the watcher closes the
	// conn to unblock it on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := fmt.Sprintf(`{"event":"bts:subscribe","data":{"channel":"order_book_%s"}}`, b.ticker)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		return fmt.Errorf("subscribe order book channel: %w", err)
	}

	go b.keepAlive(conn, done)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read bitstamp websocket: %w", err)
		}
		if mt != websocket.TextMessage {
			b.logger.Debug("discarding non-text frame", zap.Int("type", mt))
			metrics.MessagesDiscarded.WithLabelValues(bitstampName, "non_text").Inc()
			continue
		}

		var env bitstampEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			b.logger.Debug("discarding malformed message", zap.ByteString("msg", data))
			metrics.MessagesDiscarded.WithLabelValues(bitstampName, "malformed").Inc()
			continue
		}

		switch env.Event {
		case "data":
			fresh, err := bookFromLevels(env.Data.Bids, env.Data.Asks, bitstampName)
			if err != nil {
				b.logger.Debug("discarding malformed book message", zap.Error(err))
				metrics.MessagesDiscarded.WithLabelValues(bitstampName, "malformed").Inc()
				continue
			}
			metrics.UpdatesApplied.WithLabelValues(bitstampName).Inc()
			select {
			case out <- Update{Exchange: bitstampName, Book: fresh.Truncate(b.depth)}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "bts:subscription_succeeded":
			b.logger.Info("subscribed", zap.String("channel", env.Channel))
		case "bts:request_reconnect":
			return fmt.Errorf("bitstamp requested reconnect")
		default:
			b.logger.Debug("ignoring event", zap.String("event", env.Event))
		}
	}
}

// keepAlive writes a ping on every period tick until done closes. Control
// frames are safe to write concurrently with the subscribe message.
func (b *Bitstamp) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(b.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(pingWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				b.logger.Warn("ping write failed", zap.Error(err))
				return
			}
		}
	}
}
