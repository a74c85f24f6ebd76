package protoreg

import (
	"github.com/hanpama/federate/internal/grpcrt"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Registry implements grpcrt.Registry
type Registry struct {
	fileDescriptors []protoreflect.FileDescriptor
	execute         protoreflect.MethodDescriptor
}

// GetAllServiceFiles returns the files making up the contract.
func (r *Registry) GetAllServiceFiles() []protoreflect.FileDescriptor {
	return r.fileDescriptors
}

// GetExecuteDescriptor implements grpcrt.Registry.
func (r *Registry) GetExecuteDescriptor() protoreflect.MethodDescriptor {
	return r.execute
}

var _ grpcrt.Registry = (*Registry)(nil)
