package subscriber

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pb "github.com/Aidin1998/obagg/proto/orderbook"
)

func summary(spread float64) *pb.Summary {
	return &pb.Summary{
		Spread: spread,
		Bids:   []*pb.Level{{Exchange: "binance", Price: 10.0, Amount: 1.0}},
		Asks:   []*pb.Level{{Exchange: "bitstamp", Price: 10.0 + spread, Amount: 1.0}},
	}
}

func TestRegisterAndBroadcast(t *testing.T) {
	p := NewPool(zap.NewNop())
	id1, ch1 := p.Register()
	id2, ch2 := p.Register()
	require.NotEqual(t, id1, id2)
	require.Equal(t, 2, p.Len())

	p.Broadcast(summary(0.5))

	s1 := <-ch1
	s2 := <-ch2
	assert.Equal(t, 0.5, s1.Spread)
	// subscribers share the immutable summary, not copies racing each other
	assert.Same(t, s1, s2)
}

func TestBroadcastPreservesOrder(t *testing.T) {
	p := NewPool(zap.NewNop())
	_, ch := p.Register()

	p.Broadcast(summary(0.1))
	p.Broadcast(summary(0.2))
	p.Broadcast(summary(0.3))

	assert.Equal(t, 0.1, (<-ch).Spread)
	assert.Equal(t, 0.2, (<-ch).Spread)
	assert.Equal(t, 0.3, (<-ch).Spread)
}

func TestDeregisterClosesChannel(t *testing.T) {
	p := NewPool(zap.NewNop())
	id, ch := p.Register()

	p.Deregister(id)
	require.Equal(t, 0, p.Len())
	_, open := <-ch
	assert.False(t, open)

	// deregistering twice is a no-op
	p.Deregister(id)
}

func TestBroadcastWithNoSubscribers(t *testing.T) {
	p := NewPool(zap.NewNop())
	assert.NotPanics(t, func() { p.Broadcast(summary(0.5)) })
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	p := NewPool(zap.NewNop())
	slowID, slow := p.Register()
	_, fast := p.Register()

	// fill both buffers, then drain only the fast subscriber
	for i := 0; i < DefaultBuffer; i++ {
		p.Broadcast(summary(float64(i)))
	}
	for i := 0; i < DefaultBuffer; i++ {
		s := <-fast
		assert.Equal(t, float64(i), s.Spread)
	}

	// the next tick is dropped for the full subscriber only
	p.Broadcast(summary(999))
	select {
	case s := <-fast:
		assert.Equal(t, 999.0, s.Spread)
	default:
		t.Fatal("fast subscriber missed the tick")
	}
	assert.Len(t, slow, DefaultBuffer)
	first := <-slow
	assert.Equal(t, 0.0, first.Spread)
	p.Deregister(slowID)
}

func TestConcurrentRegisterDeregisterUnderBroadcast(t *testing.T) {
	p := NewPool(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id, _ := p.Register()
				p.Deregister(id)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			p.Broadcast(summary(1.0))
		}
	}()
	wg.Wait()

	assert.Equal(t, 0, p.Len())
}
