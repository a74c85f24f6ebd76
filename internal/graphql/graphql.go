// Package graphql holds the request and response shapes exchanged with
// backend services and returned to the client.
package graphql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hanpama/federate/internal/value"
)

type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a GraphQL error. Path is absolute once it leaves the executor.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       value.Path     `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e Error) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, e.Path)
}

// WithPath returns a copy of e with its path replaced.
func (e Error) WithPath(p value.Path) Error {
	e.Path = p
	return e
}

// Response is the {data, errors} envelope.
type Response struct {
	Data   any     `json:"data"`
	Errors []Error `json:"errors,omitempty"`
}

// DecodeResponse reads a response envelope. Numbers are kept as json.Number
// so that integers survive the round trip to the client unchanged.
func DecodeResponse(r io.Reader) (*Response, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// DecodeResponseBytes is DecodeResponse over a byte slice.
func DecodeResponseBytes(b []byte) (*Response, error) {
	return DecodeResponse(bytes.NewReader(b))
}
