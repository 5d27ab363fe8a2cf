// Package subscriber implements the fan-out registry for summary delivery.
package subscriber

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pb "github.com/Aidin1998/obagg/proto/orderbook"
	"github.com/Aidin1998/obagg/pkg/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing ticks; delivery is latest-state
// broadcast, not a durable log.
const DefaultBuffer = 128

// Pool is the registry of active summary subscribers. Registration and
// removal happen from transport goroutines while the aggregator broadcasts;
// the lock is held only for registry operations, never across a blocking
// send.
type Pool struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan *pb.Summary
	buffer int
	logger *zap.Logger
}

// NewPool creates an empty pool.
func NewPool(logger *zap.Logger) *Pool {
	return &Pool{
		subs:   make(map[uuid.UUID]chan *pb.Summary),
		buffer: DefaultBuffer,
		logger: logger.Named("pool"),
	}
}

// Register adds a new subscriber and returns its id along with the receive
// side of its outbound channel.
func (p *Pool) Register() (uuid.UUID, <-chan *pb.Summary) {
	id := uuid.New()
	ch := make(chan *pb.Summary, p.buffer)

	p.mu.Lock()
	p.subs[id] = ch
	n := len(p.subs)
	p.mu.Unlock()

	metrics.Subscribers.Set(float64(n))
	p.logger.Info("subscriber registered", zap.String("id", id.String()), zap.Int("subscribers", n))
	return id, ch
}

// Deregister removes a subscriber and closes its channel. The transport
// layer calls this when the client disconnects; deregistering an unknown id
// is a no-op.
func (p *Pool) Deregister(id uuid.UUID) {
	p.mu.Lock()
	ch, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
	}
	n := len(p.subs)
	p.mu.Unlock()

	if !ok {
		return
	}
	close(ch)
	metrics.Subscribers.Set(float64(n))
	p.logger.Info("subscriber removed", zap.String("id", id.String()), zap.Int("subscribers", n))
}

// Len reports the number of registered subscribers.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Broadcast attempts a non-blocking send of the summary to every current
// subscriber. A full channel counts as a delivery failure for that
// subscriber only; the remaining subscribers still receive the summary.
func (p *Pool) Broadcast(s *pb.Summary) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metrics.Broadcasts.Inc()
	for id, ch := range p.subs {
		select {
		case ch <- s:
		default:
			metrics.DeliveryFailures.Inc()
			p.logger.Debug("subscriber lagging, summary dropped", zap.String("id", id.String()))
		}
	}
}
