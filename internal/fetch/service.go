package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hanpama/federate/internal/graphql"
)

var ErrUnknownService = errors.New("unknown service")

// Service sends one GraphQL request to a backend. Implementations must be
// safe for concurrent use: parallel plan branches call them concurrently.
// Retries and timeouts are the implementation's concern.
type Service interface {
	Call(ctx context.Context, req *graphql.Request) (*graphql.Response, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context, req *graphql.Request) (*graphql.Response, error)

func (f ServiceFunc) Call(ctx context.Context, req *graphql.Request) (*graphql.Response, error) {
	return f(ctx, req)
}

// ServiceRegistry looks up backend services by name.
type ServiceRegistry interface {
	Resolve(name string) (Service, error)
}

// Services is a static ServiceRegistry.
type Services map[string]Service

func (s Services) Resolve(name string) (Service, error) {
	svc, ok := s[name]
	if !ok || svc == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownService, name)
	}
	return svc, nil
}

// Names returns the registered service names in sorted order.
func (s Services) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
