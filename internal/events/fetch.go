package events

import (
	"context"
	"sync/atomic"
	"time"
)

// FetchStart is emitted when a Fetch node starts. Representations is the
// batch size sent and Candidates the number of locations it covers; both
// are zero for root fetches.
type FetchStart struct {
	ID              uint64
	Service         string
	Path            string
	Entity          bool
	Representations int
	Candidates      int
}

// FetchFinish is emitted when a Fetch node is done. Err is the failure that
// was turned into a synthesized error, if any.
type FetchFinish struct {
	ID       uint64
	Service  string
	Path     string
	Skipped  bool
	Errors   int
	Err      error
	Duration time.Duration
}

var lastID atomic.Uint64

// NextID returns a process-unique id used to pair start and finish events.
func NextID() uint64 { return lastID.Add(1) }

type fetchKey struct{}

// WithFetchID marks ctx as belonging to the fetch with the given id.
func WithFetchID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, fetchKey{}, id)
}

// FetchIDFromContext returns the id set by WithFetchID, or zero.
func FetchIDFromContext(ctx context.Context) uint64 {
	id, _ := ctx.Value(fetchKey{}).(uint64)
	return id
}
