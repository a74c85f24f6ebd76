package grpcrt

import "google.golang.org/protobuf/reflect/protoreflect"

type Registry interface {
	// GetExecuteDescriptor returns the descriptor of the Subgraph Execute
	// method. Returns nil if the contract was not built.
	GetExecuteDescriptor() protoreflect.MethodDescriptor
}
