package events

import "time"

// BackendCallStart is emitted before a request is sent to a backend service.
type BackendCallStart struct {
	ID        uint64
	FetchID   uint64
	Service   string
	Transport string
	Target    string
}

// BackendCallFinish is emitted after a backend request completes. Status is
// the transport status: a gRPC code name or an HTTP status code.
type BackendCallFinish struct {
	ID        uint64
	FetchID   uint64
	Service   string
	Transport string
	Target    string
	Status    string
	Err       error
	Duration  time.Duration
}
