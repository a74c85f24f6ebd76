package fetch

import (
	"errors"
	"fmt"

	"github.com/hanpama/federate/internal/graphql"
	"github.com/hanpama/federate/internal/value"
)

// Extension codes of errors synthesized for failed fetches.
const (
	CodeHTTPError         = "SUBREQUEST_HTTP_ERROR"
	CodeUnknownService    = "UNKNOWN_SERVICE"
	CodeMalformedResponse = "SUBREQUEST_MALFORMED_RESPONSE"
	CodeFetchError        = "FETCH_ERROR"
)

var ErrMalformedResponse = errors.New("malformed response")

// Error is a failure local to one fetch. The executor reports it as a
// single GraphQL error at the fetch's path.
type Error struct {
	Code    string
	Service string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch from %q failed", e.Service)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// GraphQLError converts e into a client-facing error anchored at path.
func (e *Error) GraphQLError(path value.Path) graphql.Error {
	return graphql.Error{
		Message: e.Error(),
		Path:    path,
		Extensions: map[string]any{
			"code":    e.Code,
			"service": e.Service,
		},
	}
}

// AsError returns err as an *Error for service, classifying errors that are
// not already fetch errors.
func AsError(service string, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	code := CodeFetchError
	switch {
	case errors.Is(err, ErrUnknownService):
		code = CodeUnknownService
	case errors.Is(err, ErrMalformedResponse):
		code = CodeMalformedResponse
	}
	return &Error{Code: code, Service: service, Err: err}
}

func malformed(service, reason string) *Error {
	return &Error{Code: CodeMalformedResponse, Service: service, Reason: reason, Err: ErrMalformedResponse}
}
