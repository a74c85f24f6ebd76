// Package services builds the registry of subgraph backends a plan is
// executed against.
package services

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"

	"github.com/hanpama/federate/internal/fetch"
	"github.com/hanpama/federate/internal/grpcrt"
	"github.com/hanpama/federate/internal/grpctp"
	"github.com/hanpama/federate/internal/httptp"
	"github.com/hanpama/federate/internal/logging"
	"github.com/hanpama/federate/internal/protoreg"
)

// Registry implements fetch.ServiceRegistry over configured backends.
type Registry struct {
	services fetch.Services
	closers  []io.Closer
}

var _ fetch.ServiceRegistry = (*Registry)(nil)

// Build creates a backend for every configured service. gRPC services
// share the Subgraph contract built from cfg.ProtoPackage.
func Build(cfg *Config) (*Registry, error) {
	r := &Registry{services: fetch.Services{}}

	names := make([]string, 0, len(cfg.Services))
	for name := range cfg.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var contract *protoreg.Registry
	for _, name := range names {
		sc := cfg.Services[name]
		u, err := url.Parse(sc.URL)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("service %q: %w", name, err)
		}

		switch u.Scheme {
		case "grpc":
			if contract == nil {
				if contract, err = protoreg.Build(cfg.ProtoPackage); err != nil {
					_ = r.Close()
					return nil, fmt.Errorf("build subgraph contract: %w", err)
				}
			}
			tr := newGRPCTransport(name, u.Host, sc, cfg.Transport)
			r.closers = append(r.closers, tr)
			r.services[name] = grpcrt.NewBackend(name, contract, tr)
		case "http", "https":
			opts := []httptp.Option{}
			if cfg.Transport.HTTPTimeout > 0 {
				opts = append(opts, httptp.WithTimeout(cfg.Transport.HTTPTimeout))
			}
			for k, v := range sc.Headers {
				opts = append(opts, httptp.WithHeader(k, v))
			}
			r.services[name] = httptp.New(name, sc.URL, opts...)
		default:
			_ = r.Close()
			return nil, fmt.Errorf("service %q: unsupported scheme %q", name, u.Scheme)
		}

		logging.Debug().
			Str("service", name).
			Str("url", sc.URL).
			Msg("registered service")
	}
	return r, nil
}

func newGRPCTransport(name, host string, sc ServiceConfig, tc TransportConfig) *grpctp.Transport {
	var endpoints []string
	if host != "" {
		endpoints = append(endpoints, host)
	}
	endpoints = append(endpoints, sc.Endpoints...)
	opts := []grpctp.Option{
		grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{name: endpoints})),
	}
	if tc.RPCTimeout > 0 {
		opts = append(opts, grpctp.WithRPCTimeout(tc.RPCTimeout))
	}
	if tc.MaxConnsPerEndpoint > 0 {
		opts = append(opts, grpctp.WithMaxConnsPerEndpoint(tc.MaxConnsPerEndpoint))
	}
	for k, v := range sc.Headers {
		opts = append(opts, grpctp.WithMetadata(k, v))
	}
	return grpctp.New(opts...)
}

func (r *Registry) Resolve(name string) (fetch.Service, error) {
	return r.services.Resolve(name)
}

// Names returns the configured service names in sorted order.
func (r *Registry) Names() []string {
	return r.services.Names()
}

// Close releases the connections held by gRPC backends.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}
