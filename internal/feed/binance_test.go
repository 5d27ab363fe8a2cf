package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/obagg/internal/config"
)

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestBinanceSequencedFeed(t *testing.T) {
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		assert.Equal(t, "LTCBTC", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"lastUpdateId":100,"bids":[["10.0","1.0"]],"asks":[["11.0","1.0"]]}`))
	}))
	defer rest.Close()

	upgrader := websocket.Upgrader{}
	stream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/ltcbtc@depth@100ms", r.URL.Path)
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer c.Close()

		// stale, then accepted
		c.WriteMessage(websocket.TextMessage, []byte(
			`{"e":"depthUpdate","E":1,"s":"LTCBTC","U":95,"u":100,"b":[["9.0","9.0"]],"a":[]}`))
		c.WriteMessage(websocket.TextMessage, []byte(
			`{"e":"depthUpdate","E":2,"s":"LTCBTC","U":101,"u":101,"b":[["10.0","2.0"]],"a":[]}`))

		// hold the connection until the client goes away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer stream.Close()

	b := NewBinance(config.BinanceConfig{
		Enable:    true,
		Websocket: wsURL(stream),
		API:       rest.URL,
	}, "LTCBTC", 25, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Update, 8)
	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx, out) }()

	select {
	case u := <-out:
		assert.Equal(t, "binance", u.Exchange)
		got, ok := u.Book.Bids.Get(decimal.RequireFromString("10.0"))
		require.True(t, ok)
		assert.Equal(t, 2.0, got.Amount)
		assert.Equal(t, 1, u.Book.Asks.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("no update emitted")
	}

	// transport teardown is fatal to the feed task
	cancel()
	select {
	case err := <-runErr:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not terminate")
	}
}

func TestBinanceReducedFeed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	stream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/ltcbtc@depth10@100ms", r.URL.Path)
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer c.Close()

		c.WriteMessage(websocket.TextMessage, []byte(
			`{"lastUpdateId":7,"bids":[["10.0","1.0"],["9.9","2.0"]],"asks":[["10.1","1.0"]]}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer stream.Close()

	b := NewBinance(config.BinanceConfig{
		Enable:    true,
		Websocket: wsURL(stream),
	}, "ltcbtc", 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Update, 8)
	go b.Run(ctx, out)

	select {
	case u := <-out:
		assert.Equal(t, 2, u.Book.Bids.Len())
		assert.Equal(t, 1, u.Book.Asks.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("no update emitted")
	}
}

func TestBinanceReadFailureReleasesConnWatcher(t *testing.T) {
	upgrader := websocket.Upgrader{}
	stream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		c.Close()
	}))
	defer stream.Close()

	b := NewBinance(config.BinanceConfig{
		Enable:    true,
		Websocket: wsURL(stream),
	}, "ltcbtc", 10, zap.NewNop())

	// the feed fails while its context stays live, as under a supervisor
	// restart; nothing may stay parked on ctx.Done afterwards
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	before := runtime.NumGoroutine()
	out := make(chan Update, 1)
	require.Error(t, b.Run(ctx, out))

	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before },
		2*time.Second, 10*time.Millisecond)
}

func TestBinanceGapTriggersSnapshotRefetch(t *testing.T) {
	var snapshots atomic.Int32
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshots.Add(1)
		w.Write([]byte(`{"lastUpdateId":104,"bids":[["10.0","1.0"]],"asks":[["11.0","1.0"]]}`))
	}))
	defer rest.Close()

	upgrader := websocket.Upgrader{}
	stream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer c.Close()

		// gapped delta forces a resync, then a valid one lands
		c.WriteMessage(websocket.TextMessage, []byte(
			`{"e":"depthUpdate","E":1,"s":"LTCBTC","U":120,"u":121,"b":[["9.0","1.0"]],"a":[]}`))
		c.WriteMessage(websocket.TextMessage, []byte(
			`{"e":"depthUpdate","E":2,"s":"LTCBTC","U":105,"u":105,"b":[["10.0","3.0"]],"a":[]}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer stream.Close()

	b := NewBinance(config.BinanceConfig{
		Enable:    true,
		Websocket: wsURL(stream),
		API:       rest.URL,
	}, "ltcbtc", 25, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Update, 8)
	go b.Run(ctx, out)

	select {
	case u := <-out:
		got, ok := u.Book.Bids.Get(decimal.RequireFromString("10.0"))
		require.True(t, ok)
		assert.Equal(t, 3.0, got.Amount)
	case <-time.After(5 * time.Second):
		t.Fatal("no update emitted after resync")
	}
	assert.GreaterOrEqual(t, snapshots.Load(), int32(2))
}
