// Package client is the consumer SDK for the aggregated summary stream,
// with automatic reconnection.
package client

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/Aidin1998/obagg/proto/orderbook"
)

// Client subscribes to an aggregator's summary stream and re-dials with a
// fixed interval whenever the connection or stream fails. Received
// summaries are delivered on the Summaries channel; the newest summary wins
// when the consumer lags.
type Client struct {
	addr              string
	reconnectInterval time.Duration
	logger            *zap.Logger
	summaries         chan *pb.Summary
}

// New creates a client for the aggregator at addr.
func New(addr string, reconnectInterval time.Duration, logger *zap.Logger) *Client {
	return &Client{
		addr:              addr,
		reconnectInterval: reconnectInterval,
		logger:            logger.Named("client"),
		summaries:         make(chan *pb.Summary, 16),
	}
}

// Summaries returns the receive channel for incoming summaries. It is
// closed when Run returns.
func (c *Client) Summaries() <-chan *pb.Summary { return c.summaries }

// Run connects and consumes the stream until ctx is cancelled, redialing on
// any failure.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.summaries)
	for {
		if err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("stream failed, reconnecting",
				zap.Duration("interval", c.reconnectInterval),
				zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectInterval):
		}
	}
}

func (c *Client) consume(ctx context.Context) error {
	conn, err := grpc.NewClient(c.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(pb.CodecName)))
	if err != nil {
		return err
	}
	defer conn.Close()

	stream, err := pb.NewOrderbookAggregatorClient(conn).BookSummaryStream(ctx, &pb.Empty{})
	if err != nil {
		return err
	}
	c.logger.Info("subscribed", zap.String("addr", c.addr))

	for {
		summary, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case c.summaries <- summary:
		default:
			// consumer lagging, drop the oldest pending summary
			select {
			case <-c.summaries:
			default:
			}
			select {
			case c.summaries <- summary:
			default:
			}
		}
	}
}
