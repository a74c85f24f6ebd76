// Package httptp sends GraphQL requests to subgraphs over HTTP: a JSON POST
// of {query, operationName, variables} answered by a {data, errors} body.
package httptp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	eventbus "github.com/hanpama/federate/internal/eventbus"
	events "github.com/hanpama/federate/internal/events"
	"github.com/hanpama/federate/internal/fetch"
	"github.com/hanpama/federate/internal/graphql"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("httptp: unexpected status")

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// Options configures a Backend.
//
// Defaults:
// - Client:  http.DefaultClient
// - Timeout: 10s (used only if the incoming context has no deadline)
type Options struct {
	Client  *http.Client
	Timeout time.Duration
	Header  http.Header
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Client:  http.DefaultClient,
		Timeout: 10 * time.Second,
		Header:  http.Header{},
	}
}

func WithClient(c *http.Client) Option    { return func(o *Options) { o.Client = c } }
func WithTimeout(d time.Duration) Option  { return func(o *Options) { o.Timeout = d } }
func WithHeader(key, value string) Option { return func(o *Options) { o.Header.Add(key, value) } }

// Backend implements fetch.Service for one subgraph served over HTTP.
type Backend struct {
	service string
	url     string
	opts    *Options
}

var _ fetch.Service = (*Backend)(nil)

// New returns a Backend posting to url on behalf of the subgraph named
// service.
func New(service, url string, opts ...Option) *Backend {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &Backend{service: service, url: url, opts: o}
}

func (b *Backend) Call(ctx context.Context, req *graphql.Request) (*graphql.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &fetch.Error{Code: fetch.CodeFetchError, Service: b.service, Reason: "encode request", Err: err}
	}

	if _, ok := ctx.Deadline(); !ok && b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, vs := range b.opts.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/graphql-response+json, application/json")

	id := events.NextID()
	fetchID := events.FetchIDFromContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.BackendCallStart{
		ID:        id,
		FetchID:   fetchID,
		Service:   b.service,
		Transport: "http",
		Target:    b.url,
	})

	resp, statusText, err := b.roundTrip(httpReq)

	eventbus.Publish(ctx, events.BackendCallFinish{
		ID:        id,
		FetchID:   fetchID,
		Service:   b.service,
		Transport: "http",
		Target:    b.url,
		Status:    statusText,
		Err:       err,
		Duration:  time.Since(start),
	})
	return resp, err
}

func (b *Backend) roundTrip(req *http.Request) (*graphql.Response, string, error) {
	res, err := b.opts.Client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	statusText := strconv.Itoa(res.StatusCode)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, statusText, fmt.Errorf("%w %d: %s", ErrStatus, res.StatusCode, bytes.TrimSpace(snippet))
	}

	resp, err := graphql.DecodeResponse(res.Body)
	if err != nil {
		return nil, statusText, &fetch.Error{
			Code:    fetch.CodeMalformedResponse,
			Service: b.service,
			Reason:  "decode response",
			Err:     err,
		}
	}
	return resp, statusText, nil
}
