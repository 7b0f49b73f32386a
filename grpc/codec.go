// Package nullspacegrpc serves a ledger over gRPC and connects to one.
// Messages are the cramberry-tagged structs of nullspace/types sent
// as-is; there is no generated protobuf code.
package nullspacegrpc

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype both ends negotiate.
const CodecName = "cramberry"

// Codec encodes gRPC messages with cramberry.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	data, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal %T: %w", CodecName, v, err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: unmarshal %T (%d bytes): %w", CodecName, v, len(data), err)
	}
	return nil
}

func (Codec) Name() string { return CodecName }

// CallOption forces the cramberry codec on a client call or, through
// grpc.WithDefaultCallOptions, on every call of a connection.
func CallOption() grpc.CallOption {
	return grpc.ForceCodec(Codec{})
}

func init() {
	encoding.RegisterCodec(Codec{})
}
