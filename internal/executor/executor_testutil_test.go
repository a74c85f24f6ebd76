package executor

import (
	"context"
	"testing"

	"github.com/hanpama/federate/internal/fetch"
	"github.com/hanpama/federate/internal/graphql"
	"github.com/hanpama/federate/internal/plan"
	"github.com/hanpama/federate/internal/selection"
	"github.com/hanpama/federate/internal/value"
)

func seq(nodes ...plan.Node) *plan.Sequence { return &plan.Sequence{Nodes: nodes} }

func par(nodes ...plan.Node) *plan.Parallel { return &plan.Parallel{Nodes: nodes} }

func flatten(path string, node plan.Node) *plan.Flatten {
	return &plan.Flatten{Path: value.ParsePath(path), Node: node}
}

func rootFetch(service, operation string, variables ...string) *plan.Fetch {
	return &plan.Fetch{FetchSpec: plan.FetchSpec{
		ServiceName:    service,
		Operation:      operation,
		VariableUsages: variables,
		OperationKind:  plan.OperationQuery,
	}}
}

// entityFetch builds an _entities fetch requiring typeName's key fields.
func entityFetch(t *testing.T, service, typeName, key string) *plan.Fetch {
	t.Helper()
	requires, err := selection.ParseFieldSet(typeName, key)
	if err != nil {
		t.Fatalf("parse field set: %v", err)
	}
	return &plan.Fetch{FetchSpec: plan.FetchSpec{
		ServiceName:   service,
		Requires:      requires,
		Operation:     "query($representations: [_Any!]!) { _entities(representations: $representations) { __typename } }",
		OperationKind: plan.OperationQuery,
	}}
}

// respond returns a handler that always answers with data and errs.
func respond(data any, errs ...graphql.Error) fetch.ServiceFunc {
	return func(context.Context, *graphql.Request) (*graphql.Response, error) {
		return &graphql.Response{Data: data, Errors: errs}, nil
	}
}

// resolveEntities answers an _entities call by applying fn to each
// representation.
func resolveEntities(fn func(rep map[string]any) any) fetch.ServiceFunc {
	return func(_ context.Context, req *graphql.Request) (*graphql.Response, error) {
		reps := req.Variables["representations"].([]any)
		out := make([]any, len(reps))
		for i, r := range reps {
			out[i] = fn(r.(map[string]any))
		}
		return &graphql.Response{Data: map[string]any{"_entities": out}}, nil
	}
}

func representations(req *graphql.Request) []any {
	reps, _ := req.Variables["representations"].([]any)
	return reps
}
