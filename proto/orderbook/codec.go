package orderbook

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the grpc content-subtype the service's messages travel
// under. The messages here are hand-maintained structs rather than protoc
// output, so the wire format is JSON and both ends must select this codec:
// the server through grpc.ForceServerCodec, the client through
// grpc.CallContentSubtype.
const CodecName = "json"

func init() { encoding.RegisterCodec(Codec{}) }

// Codec marshals the service messages as JSON frames.
type Codec struct{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// Name implements encoding.Codec.
func (Codec) Name() string { return CodecName }
