package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/hanpama/federate/internal/graphql"
)

// MockService implements Service for tests. It records every request and
// answers through its handler.
type MockService struct {
	mu      sync.Mutex
	handler ServiceFunc
	calls   []*graphql.Request
}

// NewMockService creates a MockService answering with h.
func NewMockService(h ServiceFunc) *MockService {
	return &MockService{handler: h}
}

// NewMockServiceResponses creates a MockService that returns the given
// responses in order and fails once they are exhausted.
func NewMockServiceResponses(responses ...*graphql.Response) *MockService {
	var (
		mu  sync.Mutex
		idx int
	)
	return NewMockService(func(ctx context.Context, req *graphql.Request) (*graphql.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(responses) {
			return nil, fmt.Errorf("mock service: no more responses")
		}
		resp := responses[idx]
		idx++
		return resp, nil
	})
}

// NewMockServiceError creates a MockService that always fails with err.
func NewMockServiceError(err error) *MockService {
	return NewMockService(func(context.Context, *graphql.Request) (*graphql.Response, error) {
		return nil, err
	})
}

func (m *MockService) Call(ctx context.Context, req *graphql.Request) (*graphql.Response, error) {
	m.mu.Lock()
	cp := *req
	m.calls = append(m.calls, &cp)
	h := m.handler
	m.mu.Unlock()
	return h(ctx, req)
}

// Calls returns a snapshot of recorded requests.
func (m *MockService) Calls() []*graphql.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*graphql.Request, len(m.calls))
	copy(out, m.calls)
	return out
}
