// Package server exposes the aggregated book over a gRPC summary stream.
package server

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"github.com/Aidin1998/obagg/internal/subscriber"
	pb "github.com/Aidin1998/obagg/proto/orderbook"
)

// Server serves the OrderbookAggregator service. Each stream holds one pool
// registration for its lifetime; the stream context ending is the explicit
// disconnect signal that removes the entry.
type Server struct {
	pb.UnimplementedOrderbookAggregatorServer
	pool   *subscriber.Pool
	logger *zap.Logger

	mu   sync.Mutex
	grpc *grpc.Server
	addr net.Addr
}

// New creates the gRPC server.
func New(pool *subscriber.Pool, logger *zap.Logger) *Server {
	return &Server{pool: pool, logger: logger.Named("grpc")}
}

// BookSummaryStream implements pb.OrderbookAggregatorServer.
func (s *Server) BookSummaryStream(_ *pb.Empty, stream pb.OrderbookAggregator_BookSummaryStreamServer) error {
	addr := "unknown"
	if p, ok := peer.FromContext(stream.Context()); ok {
		addr = p.Addr.String()
	}
	id, ch := s.pool.Register()
	defer s.pool.Deregister(id)
	s.logger.Info("client connected", zap.String("id", id.String()), zap.String("peer", addr))

	for {
		select {
		case <-stream.Context().Done():
			s.logger.Info("client disconnected", zap.String("id", id.String()))
			return nil
		case summary, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(summary); err != nil {
				s.logger.Warn("stream send failed", zap.String("id", id.String()), zap.Error(err))
				return err
			}
		}
	}
}

// Serve listens on addr and blocks serving gRPC until Stop is called or the
// listener fails. The summary messages are hand-maintained structs, so the
// server is pinned to the JSON codec all its clients dial with.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.mu.Lock()
	s.grpc = grpc.NewServer(grpc.ForceServerCodec(pb.Codec{}))
	s.addr = lis.Addr()
	s.mu.Unlock()

	pb.RegisterOrderbookAggregatorServer(s.grpc, s)
	s.logger.Info("serving", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Addr returns the bound listener address, or nil before Serve has one.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully stops the server, ending all client streams.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.grpc
	s.mu.Unlock()
	if srv != nil {
		srv.GracefulStop()
	}
}
