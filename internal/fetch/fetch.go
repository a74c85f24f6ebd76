// Package fetch executes a single Fetch node: it builds the variables for a
// backend call, sends it, and turns the response into a delta value plus
// errors with absolute paths.
package fetch

import (
	"context"
	"time"

	eventbus "github.com/hanpama/federate/internal/eventbus"
	events "github.com/hanpama/federate/internal/events"
	"github.com/hanpama/federate/internal/graphql"
	"github.com/hanpama/federate/internal/logging"
	"github.com/hanpama/federate/internal/plan"
	"github.com/hanpama/federate/internal/selection"
	"github.com/hanpama/federate/internal/value"
)

const (
	entitiesField           = "_entities"
	representationsVariable = "representations"
)

// Fetcher runs fetch nodes against a service registry.
type Fetcher struct {
	Services ServiceRegistry
	Matcher  selection.Matcher
}

// Input is what a fetch reads from the ongoing execution.
type Input struct {
	// Path is the current path, possibly containing Flatten markers.
	Path value.Path
	// Data is the accumulated response value.
	Data      any
	Variables map[string]any
	Dedup     bool
}

// Result is a fetch contribution. A nil Value contributes nothing.
type Result struct {
	Value  any
	Errors []graphql.Error
	// Skipped is set when no backend call was made.
	Skipped bool
	// Batch is the number of representations sent by an entity fetch.
	Batch int
}

// Fetch runs one fetch node against in. A non-nil error is local to this
// fetch and is always an *Error; the caller reports it at in.Path.
func (f *Fetcher) Fetch(ctx context.Context, spec *plan.FetchSpec, in Input) (*Result, error) {
	id := events.NextID()
	ctx = events.WithFetchID(ctx, id)
	start := time.Now()

	var (
		res *Result
		err error
	)
	if spec.IsEntityFetch() {
		res, err = f.entityFetch(ctx, id, spec, in)
	} else {
		res, err = f.rootFetch(ctx, id, spec, in)
	}

	finish := events.FetchFinish{
		ID:       id,
		Service:  spec.ServiceName,
		Path:     in.Path.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		err = AsError(spec.ServiceName, err)
		finish.Err = err
	} else {
		finish.Skipped = res.Skipped
		finish.Errors = len(res.Errors)
	}
	eventbus.Publish(ctx, finish)
	return res, err
}

func (f *Fetcher) rootFetch(ctx context.Context, id uint64, spec *plan.FetchSpec, in Input) (*Result, error) {
	eventbus.Publish(ctx, events.FetchStart{ID: id, Service: spec.ServiceName, Path: in.Path.String()})

	if len(in.Path) > 0 {
		if v, ok := value.Get(in.Data, in.Path); !ok || value.IsNull(v) {
			logging.Ctx(ctx).Debug().
				Str("service", spec.ServiceName).
				Stringer("path", in.Path).
				Msg("skipping fetch below a null value")
			return &Result{Skipped: true}, nil
		}
	}

	resp, err := f.call(ctx, spec, pickVariables(in.Variables, spec.VariableUsages))
	if err != nil {
		return nil, err
	}

	base := in.Path.WithoutFlatten()
	errs := make([]graphql.Error, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		if len(e.Path) > 0 {
			e.Path = base.Join(e.Path)
		}
		errs = append(errs, e)
	}

	res := &Result{Errors: errs}
	if resp.Data != nil {
		res.Value = value.FromPath(base, resp.Data)
	}
	return res, nil
}

func (f *Fetcher) entityFetch(ctx context.Context, id uint64, spec *plan.FetchSpec, in Input) (*Result, error) {
	reps := BuildRepresentations(in.Data, in.Path, spec.Requires, f.Matcher, in.Dedup)
	if reps == nil {
		eventbus.Publish(ctx, events.FetchStart{ID: id, Service: spec.ServiceName, Path: in.Path.String(), Entity: true})
		logging.Ctx(ctx).Debug().
			Str("service", spec.ServiceName).
			Stringer("path", in.Path).
			Msg("no entities to fetch")
		return &Result{Skipped: true}, nil
	}
	eventbus.Publish(ctx, events.FetchStart{
		ID:              id,
		Service:         spec.ServiceName,
		Path:            in.Path.String(),
		Entity:          true,
		Representations: len(reps.Batch),
		Candidates:      len(reps.Entries),
	})

	vars := pickVariables(in.Variables, spec.VariableUsages)
	vars[representationsVariable] = reps.Batch

	resp, err := f.call(ctx, spec, vars)
	if err != nil {
		return nil, err
	}

	errs := rebaseEntityErrors(resp.Errors, in.Path.WithoutFlatten(), reps.Inverted)

	entities, present, err := entitiesOf(spec.ServiceName, resp.Data)
	if err != nil {
		return nil, err
	}
	if !present {
		missing := malformed(spec.ServiceName, "response is missing _entities")
		if len(errs) > 0 {
			errs = append(errs, missing.GraphQLError(in.Path.WithoutFlatten()))
			return &Result{Errors: errs, Batch: len(reps.Batch)}, nil
		}
		logging.Ctx(ctx).Warn().
			Str("service", spec.ServiceName).
			Msg("response was missing _entities and had no errors")
		return nil, missing
	}
	if len(entities) != len(reps.Batch) {
		return nil, malformed(spec.ServiceName, "_entities length does not match representations")
	}

	var out any
	for _, e := range reps.Entries {
		out, err = value.InsertAt(out, e.Path, entities[e.Index])
		if err != nil {
			return nil, AsError(spec.ServiceName, err)
		}
	}
	return &Result{Value: out, Errors: errs, Batch: len(reps.Batch)}, nil
}

func (f *Fetcher) call(ctx context.Context, spec *plan.FetchSpec, vars map[string]any) (*graphql.Response, error) {
	svc, err := f.Services.Resolve(spec.ServiceName)
	if err != nil {
		return nil, &Error{Code: CodeUnknownService, Service: spec.ServiceName, Err: err}
	}
	resp, err := svc.Call(ctx, &graphql.Request{
		Query:         spec.Operation,
		OperationName: spec.OperationName,
		Variables:     vars,
	})
	if err != nil {
		if fe, ok := err.(*Error); ok {
			return nil, fe
		}
		return nil, &Error{Code: CodeHTTPError, Service: spec.ServiceName, Err: err}
	}
	if resp == nil {
		return nil, malformed(spec.ServiceName, "empty response")
	}
	return resp, nil
}

// entitiesOf extracts data._entities. present is false when data has no
// _entities key at all.
func entitiesOf(service string, data any) (entities []any, present bool, err error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	raw, ok := obj[entitiesField]
	if !ok {
		return nil, false, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, true, malformed(service, "_entities is not a list")
	}
	return arr, true, nil
}

// rebaseEntityErrors gives backend errors absolute paths. An error under
// _entities/<i> is reported once for every location batch slot i serves.
// Other errors with a path are prefixed with current. Locations refer to the
// backend operation and are dropped.
func rebaseEntityErrors(in []graphql.Error, current value.Path, inverted [][]value.Path) []graphql.Error {
	out := make([]graphql.Error, 0, len(in))
	for _, e := range in {
		e.Locations = nil
		if len(e.Path) == 0 {
			out = append(out, e)
			continue
		}
		if key, ok := e.Path[0].(string); ok && key == entitiesField && len(e.Path) > 1 {
			if i, ok := e.Path[1].(int); ok && i >= 0 && i < len(inverted) {
				suffix := e.Path[2:]
				for _, p := range inverted[i] {
					out = append(out, e.WithPath(p.Join(suffix)))
				}
				continue
			}
		}
		out = append(out, e.WithPath(current.Join(e.Path)))
	}
	return out
}

func pickVariables(all map[string]any, usages []string) map[string]any {
	out := make(map[string]any, len(usages)+1)
	for _, name := range usages {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out
}
