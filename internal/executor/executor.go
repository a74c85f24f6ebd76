package executor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	eventbus "github.com/hanpama/federate/internal/eventbus"
	events "github.com/hanpama/federate/internal/events"
	"github.com/hanpama/federate/internal/fetch"
	"github.com/hanpama/federate/internal/graphql"
	"github.com/hanpama/federate/internal/logging"
	"github.com/hanpama/federate/internal/plan"
	reqid "github.com/hanpama/federate/internal/reqid"
	"github.com/hanpama/federate/internal/selection"
	"github.com/hanpama/federate/internal/value"
)

// executionState holds the state of one plan execution. It is read-only
// once built, so concurrent branches share it.
type executionState struct {
	context   context.Context
	fetcher   *fetch.Fetcher
	variables map[string]any
	dedup     bool
}

type Executor struct {
	services ServiceRegistry
	matcher  selection.Matcher
	dedup    *bool
}

// ServiceRegistry resolves the backend named by a fetch node.
type ServiceRegistry = fetch.ServiceRegistry

type Option func(*Executor)

// WithMatcher replaces the selection matcher used to build representations.
func WithMatcher(m selection.Matcher) Option {
	return func(e *Executor) { e.matcher = m }
}

// WithDeduplication forces representation deduplication on or off,
// overriding the plan's enableVariableDeduplication option.
func WithDeduplication(enabled bool) Option {
	return func(e *Executor) { e.dedup = &enabled }
}

func NewExecutor(services ServiceRegistry, opts ...Option) *Executor {
	e := &Executor{services: services, matcher: selection.DefaultMatcher}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutePlan runs qp and assembles the response. Fetch failures never abort
// execution; they become errors in the response next to whatever data the
// rest of the plan produced.
func (e *Executor) ExecutePlan(ctx context.Context, qp *plan.QueryPlan, variables map[string]any) *graphql.Response {
	ctx, id := reqid.Ensure(ctx)
	logger := logging.Ctx(ctx).With().Int64("execution", id).Logger()
	ctx = logger.WithContext(ctx)

	fetches := qp.SubgraphFetches()
	eventbus.Publish(ctx, events.PlanStart{Fetches: fetches, Mutations: qp.ContainsMutations()})
	start := time.Now()

	dedup := qp.Options.EnableVariableDeduplication
	if e.dedup != nil {
		dedup = *e.dedup
	}
	state := &executionState{
		context:   ctx,
		fetcher:   &fetch.Fetcher{Services: e.services, Matcher: e.matcher},
		variables: variables,
		dedup:     dedup,
	}

	var (
		data any
		errs []graphql.Error
	)
	if qp.Root != nil {
		data, errs = executeNode(state, qp.Root, value.Path{}, nil)
	}

	eventbus.Publish(ctx, events.PlanFinish{Fetches: fetches, Errors: len(errs), Duration: time.Since(start)})
	return &graphql.Response{Data: data, Errors: errs}
}

// executeNode runs node against parent, the accumulated value, and returns
// the value to merge into it together with the errors produced. A nil value
// contributes nothing.
func executeNode(state *executionState, node plan.Node, current value.Path, parent any) (any, []graphql.Error) {
	switch n := node.(type) {
	case *plan.Sequence:
		return executeSequence(state, n, current, parent)
	case *plan.Parallel:
		return executeParallel(state, n, current, parent)
	case *plan.Flatten:
		return executeNode(state, n.Node, current.Join(n.Path), parent)
	case *plan.Fetch:
		return executeFetch(state, n, current, parent)
	default:
		return nil, []graphql.Error{{
			Message: "unsupported plan node",
			Path:    current.WithoutFlatten(),
		}}
	}
}

// executeSequence runs children in order, feeding each the value merged so
// far.
func executeSequence(state *executionState, n *plan.Sequence, current value.Path, parent any) (any, []graphql.Error) {
	acc := parent
	var errs []graphql.Error
	for _, child := range n.Nodes {
		v, childErrs := executeNode(state, child, current, acc)
		acc = value.DeepMerge(acc, v)
		errs = append(errs, childErrs...)
	}
	return acc, errs
}

// executeParallel runs all children concurrently against the same parent.
// Each child fills its own slot; results are merged by this goroutine after
// every child returned.
func executeParallel(state *executionState, n *plan.Parallel, current value.Path, parent any) (any, []graphql.Error) {
	type result struct {
		value  any
		errors []graphql.Error
	}
	results := make([]result, len(n.Nodes))

	var g errgroup.Group
	for i, child := range n.Nodes {
		g.Go(func() error {
			v, errs := executeNode(state, child, current, parent)
			results[i] = result{value: v, errors: errs}
			return nil
		})
	}
	_ = g.Wait() // children report failures as errors in their slot, never to g

	var (
		acc  any
		errs []graphql.Error
	)
	for _, r := range results {
		acc = value.DeepMerge(acc, r.value)
		errs = append(errs, r.errors...)
	}
	return acc, errs
}

func executeFetch(state *executionState, n *plan.Fetch, current value.Path, parent any) (any, []graphql.Error) {
	res, err := state.fetcher.Fetch(state.context, &n.FetchSpec, fetch.Input{
		Path:      current,
		Data:      parent,
		Variables: state.variables,
		Dedup:     state.dedup,
	})
	if err != nil {
		fe := fetch.AsError(n.ServiceName, err)
		logging.Ctx(state.context).Debug().
			Err(err).
			Str("service", n.ServiceName).
			Str("code", fe.Code).
			Stringer("path", current).
			Msg("fetch failed")
		return nil, []graphql.Error{fe.GraphQLError(current.WithoutFlatten())}
	}
	return res.Value, res.Errors
}
