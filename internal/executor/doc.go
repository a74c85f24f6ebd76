// Package executor interprets a query plan: it walks the plan tree, issues
// the backend calls described by its Fetch nodes, and merges their results
// into a single response with errors anchored at absolute paths.
//
// # Overview
//
// A plan is a tree of four node kinds (see package plan):
//   - Sequence runs its children in list order. Each child receives the value
//     accumulated so far, including everything earlier siblings produced, and
//     the next child starts only after the previous one fully completed.
//   - Parallel runs its children concurrently. Every child is seeded with the
//     same, unmodified parent value; siblings never see each other's output.
//   - Flatten extends the current path and executes its child there. It is a
//     pure change of addressing context.
//   - Fetch delegates to package fetch, which returns a delta value and the
//     errors produced by the backend.
//
// The top-level call starts at the empty path with an empty value.
//
// # Merging
//
// Every node returns a value to be merged into its caller's accumulator with
// value.DeepMerge: objects merge key by key, arrays index by index, and a
// null never erases existing data. Merging is monotonic: fields already
// present are only added to or overwritten, never removed. Parallel children
// are assumed to write disjoint parts of the tree, so the merged result does
// not depend on which child finished first.
//
// # Concurrency
//
// Parallel children run on their own goroutines (errgroup). Each writes its
// result into its own slot; the goroutine that waits for them merges the
// slots in plan order once all children returned. There is no shared mutable
// state between branches: values are never mutated after they are merged, so
// no locking is required.
//
// Cancellation is carried by the context passed to ExecutePlan. Canceling it
// makes in-flight backend calls fail; each failure is reported like any other
// fetch failure.
//
// # Errors and Partial Success
//
// Backend errors are passed through with their paths rebased onto the fetch's
// location (see package fetch). A fetch that fails locally (unknown service,
// transport failure, malformed _entities) contributes no value and exactly
// one error at the current path, carrying extensions.code and
// extensions.service. Execution of the rest of the plan is unaffected and
// already merged sibling data is never discarded.
//
// # Deduplication
//
// The plan's enableVariableDeduplication option (or WithDeduplication) makes
// entity fetches send each distinct representation once. This only changes
// the size of the outgoing batch; the response is identical either way.
package executor
