package grpcrt

import (
	"context"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Transport handles the actual gRPC communication.
// This interface allows for different transport implementations (real gRPC, mock, etc.).
// Implementations MUST be safe for concurrent use: parallel plan branches
// call the same backend from multiple goroutines.
//
// Provided implementations:
// - internal/grpctp.Transport: production-ready client with pooling and timeouts
// - MockTransport: records calls and returns seeded responses
type Transport interface {
	// Call invokes method on the subgraph named service.
	Call(ctx context.Context, service string, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
}
