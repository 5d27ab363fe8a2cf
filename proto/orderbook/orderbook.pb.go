// Package orderbook provides gRPC types for the orderbook aggregation service
package orderbook

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Empty is the request payload for BookSummaryStream.
type Empty struct{}

// Level is a single price level of the aggregated book, annotated with the
// exchange it originated from.
type Level struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
}

// Summary is one tick of the aggregated orderbook: the spread plus the best
// bid and ask levels across all exchanges, best first.
type Summary struct {
	Spread float64  `json:"spread"`
	Bids   []*Level `json:"bids"`
	Asks   []*Level `json:"asks"`
}

// OrderbookAggregatorClient is the client API for OrderbookAggregator service.
type OrderbookAggregatorClient interface {
	// BookSummaryStream subscribes to the aggregated book. The server pushes
	// a Summary for every accepted upstream update for the lifetime of the
	// connection.
	BookSummaryStream(ctx context.Context, in *Empty, opts ...grpc.CallOption) (OrderbookAggregator_BookSummaryStreamClient, error)
}

type orderbookAggregatorClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderbookAggregatorClient creates a client for OrderbookAggregator.
func NewOrderbookAggregatorClient(cc grpc.ClientConnInterface) OrderbookAggregatorClient {
	return &orderbookAggregatorClient{cc}
}

func (c *orderbookAggregatorClient) BookSummaryStream(ctx context.Context, in *Empty, opts ...grpc.CallOption) (OrderbookAggregator_BookSummaryStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &OrderbookAggregator_ServiceDesc.Streams[0], "/orderbook.OrderbookAggregator/BookSummaryStream", opts...)
	if err != nil {
		return nil, err
	}
	x := &orderbookAggregatorBookSummaryStreamClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// OrderbookAggregator_BookSummaryStreamClient is the client side of the
// summary stream.
type OrderbookAggregator_BookSummaryStreamClient interface {
	Recv() (*Summary, error)
	grpc.ClientStream
}

type orderbookAggregatorBookSummaryStreamClient struct {
	grpc.ClientStream
}

func (x *orderbookAggregatorBookSummaryStreamClient) Recv() (*Summary, error) {
	m := new(Summary)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// OrderbookAggregatorServer is the server API for OrderbookAggregator service.
type OrderbookAggregatorServer interface {
	BookSummaryStream(*Empty, OrderbookAggregator_BookSummaryStreamServer) error
}

// UnimplementedOrderbookAggregatorServer can be embedded to have forward
// compatible implementations.
type UnimplementedOrderbookAggregatorServer struct{}

func (UnimplementedOrderbookAggregatorServer) BookSummaryStream(*Empty, OrderbookAggregator_BookSummaryStreamServer) error {
	return status.Errorf(codes.Unimplemented, "method BookSummaryStream not implemented")
}

// OrderbookAggregator_BookSummaryStreamServer is the server side of the
// summary stream.
type OrderbookAggregator_BookSummaryStreamServer interface {
	Send(*Summary) error
	grpc.ServerStream
}

type orderbookAggregatorBookSummaryStreamServer struct {
	grpc.ServerStream
}

func (x *orderbookAggregatorBookSummaryStreamServer) Send(m *Summary) error {
	return x.ServerStream.SendMsg(m)
}

func _OrderbookAggregator_BookSummaryStream_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(OrderbookAggregatorServer).BookSummaryStream(m, &orderbookAggregatorBookSummaryStreamServer{stream})
}

// RegisterOrderbookAggregatorServer registers the server implementation.
func RegisterOrderbookAggregatorServer(s grpc.ServiceRegistrar, srv OrderbookAggregatorServer) {
	s.RegisterService(&OrderbookAggregator_ServiceDesc, srv)
}

// OrderbookAggregator_ServiceDesc is the grpc.ServiceDesc for
// OrderbookAggregator service.
var OrderbookAggregator_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "orderbook.OrderbookAggregator",
	HandlerType: (*OrderbookAggregatorServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "BookSummaryStream",
			Handler:       _OrderbookAggregator_BookSummaryStream_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "orderbook.proto",
}
