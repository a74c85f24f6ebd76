package grpcrt

import "google.golang.org/protobuf/reflect/protoreflect"

// MockRegistry implements Registry over a fixed method descriptor.
type MockRegistry struct {
	execute protoreflect.MethodDescriptor
}

// NewMockRegistry returns a Registry whose Execute method is md.
func NewMockRegistry(md protoreflect.MethodDescriptor) *MockRegistry {
	return &MockRegistry{execute: md}
}

func (r *MockRegistry) GetExecuteDescriptor() protoreflect.MethodDescriptor {
	return r.execute
}

var _ Registry = (*MockRegistry)(nil)
