package grpcrt

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	events "github.com/hanpama/federate/internal/events"
)

// CallRecord captures a single Call invocation for assertions.
type CallRecord struct {
	// Service is the subgraph name the call was addressed to.
	Service string
	// FetchID identifies the fetch that issued the call, zero outside one.
	FetchID uint64
	// Method is the descriptor invoked.
	Method protoreflect.MethodDescriptor
	// FullMethod is "/<service full name>/<method>" for convenience.
	FullMethod string
	// Request is a deep-cloned proto message snapshot of the input.
	Request proto.Message
}

// MockTransport implements Transport and returns pre-seeded responses
// in order, while recording Call invocations for inspection.
type MockTransport struct {
	mu        sync.Mutex
	responses []protoreflect.Message
	errs      []error
	idx       int
	calls     []CallRecord
}

// NewMockTransport creates a MockTransport that will return the provided
// responses in order for successive Call() invocations.
func NewMockTransport(responses ...protoreflect.Message) *MockTransport {
	cp := make([]protoreflect.Message, len(responses))
	copy(cp, responses)
	return &MockTransport{responses: cp}
}

// NewMockTransportWithErrors allows seeding per-call errors alongside responses.
// For call i, if errs[i] is non-nil, Call returns that error and ignores responses[i].
// If errs is shorter than responses, remaining calls will use responses with no error.
func NewMockTransportWithErrors(responses []protoreflect.Message, errs []error) *MockTransport {
	cp := make([]protoreflect.Message, len(responses))
	copy(cp, responses)
	ep := make([]error, len(errs))
	copy(ep, errs)
	return &MockTransport{responses: cp, errs: ep}
}

// Call records the invocation together with the fetch it belongs to and
// returns the next seeded response or error.
func (m *MockTransport) Call(ctx context.Context, service string, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	rec := CallRecord{
		Service: service,
		FetchID: events.FetchIDFromContext(ctx),
		Method:  method,
	}
	if method != nil {
		rec.FullMethod = "/" + string(method.Parent().FullName()) + "/" + string(method.Name())
	}
	if request != nil {
		rec.Request = proto.Clone(request.Interface())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rec)

	n := m.idx
	if n >= len(m.responses) && n >= len(m.errs) {
		return nil, fmt.Errorf("mock transport: no response seeded for call %d to %q", n, service)
	}
	m.idx++
	if n < len(m.errs) && m.errs[n] != nil {
		return nil, m.errs[n]
	}
	if n < len(m.responses) {
		return m.responses[n], nil
	}
	return nil, nil
}

// Calls returns a snapshot of recorded Call invocations.
func (m *MockTransport) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, len(m.calls))
	copy(out, m.calls)
	return out
}
