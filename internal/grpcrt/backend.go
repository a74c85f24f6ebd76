package grpcrt

import (
	"context"
	"errors"

	"github.com/hanpama/federate/internal/fetch"
	"github.com/hanpama/federate/internal/graphql"
)

// Backend implements fetch.Service for one subgraph reachable over gRPC.
// Invariants and boundaries:
//   - Contract: requests and responses follow the Subgraph Execute method
//     returned by the Registry. A descriptor of another shape fails the call
//     with ErrContract instead of panicking.
//   - Errors: transport failures are returned unchanged so the fetch unit
//     reports them as transport errors. A response that cannot be decoded is
//     reported as a malformed response.
//   - Concurrency: Backend holds no mutable state; concurrency safety is
//     that of the Transport.
type Backend struct {
	service   string
	reg       Registry
	transport Transport
}

var _ fetch.Service = (*Backend)(nil)

// NewBackend returns a Backend calling the subgraph named service.
func NewBackend(service string, registry Registry, transport Transport) *Backend {
	return &Backend{service: service, reg: registry, transport: transport}
}

// Call sends req through the Execute method.
func (b *Backend) Call(ctx context.Context, req *graphql.Request) (*graphql.Response, error) {
	md := b.reg.GetExecuteDescriptor()
	if md == nil {
		return nil, b.fail(fetch.CodeFetchError, "encode request", errors.New("no Execute method registered"))
	}
	in, err := encodeRequest(md, req)
	if err != nil {
		return nil, b.fail(fetch.CodeFetchError, "encode request", err)
	}

	out, err := b.transport.Call(ctx, b.service, md, in)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, b.fail(fetch.CodeMalformedResponse, "decode response", errors.New("empty response"))
	}
	resp, err := decodeResponse(out)
	if err != nil {
		return nil, b.fail(fetch.CodeMalformedResponse, "decode response", err)
	}
	return resp, nil
}

func (b *Backend) fail(code, reason string, err error) error {
	return &fetch.Error{
		Code:    code,
		Service: b.service,
		Reason:  reason,
		Err:     err,
	}
}
