package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/federate/internal/eventbus"
	events "github.com/hanpama/federate/internal/events"
	"github.com/hanpama/federate/internal/graphql"
	"github.com/hanpama/federate/internal/plan"
	"github.com/hanpama/federate/internal/value"
)

func entitySpec(service string) *plan.FetchSpec {
	return &plan.FetchSpec{
		ServiceName:   service,
		Requires:      userRequires(),
		Operation:     "query($representations: [_Any!]!) { _entities(representations: $representations) { ... on User { name } } }",
		OperationKind: plan.OperationQuery,
	}
}

// entitiesEcho answers an entity fetch with one entity per representation,
// named after its id.
func entitiesEcho(ctx context.Context, req *graphql.Request) (*graphql.Response, error) {
	reps := req.Variables["representations"].([]any)
	entities := make([]any, len(reps))
	for i, r := range reps {
		id := r.(map[string]any)["id"].(string)
		entities[i] = map[string]any{"name": "user-" + id}
	}
	return &graphql.Response{Data: map[string]any{"_entities": entities}}, nil
}

func TestEntityFetchScattersDeduplicatedBatch(t *testing.T) {
	svc := NewMockService(entitiesEcho)
	f := &Fetcher{Services: Services{"accounts": svc}}

	res, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{
		Path:      value.Path{"t"},
		Data:      threeUsers(),
		Variables: map[string]any{"unused": true},
		Dedup:     true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Batch)

	calls := svc.Calls()
	require.Len(t, calls, 1)
	if diff := cmp.Diff(map[string]any{"representations": []any{user("1"), user("2")}}, calls[0].Variables); diff != "" {
		t.Fatalf("variables mismatch (-want +got):\n%s", diff)
	}

	want := map[string]any{
		"t": []any{
			map[string]any{"name": "user-1"},
			map[string]any{"name": "user-1"},
			map[string]any{"name": "user-2"},
		},
	}
	if diff := cmp.Diff(want, res.Value); diff != "" {
		t.Fatalf("scattered value mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, res.Errors)
}

func TestEntityFetchDedupDoesNotChangeResult(t *testing.T) {
	run := func(dedup bool) *Result {
		f := &Fetcher{Services: Services{"accounts": NewMockService(entitiesEcho)}}
		res, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{
			Path:  value.Path{"t"},
			Data:  threeUsers(),
			Dedup: dedup,
		})
		require.NoError(t, err)
		return res
	}
	on, off := run(true), run(false)
	if diff := cmp.Diff(off.Value, on.Value); diff != "" {
		t.Fatalf("dedup changed the result (-off +on):\n%s", diff)
	}
	require.Equal(t, 2, on.Batch)
	require.Equal(t, 3, off.Batch)
}

func TestEntityFetchSkipsWithoutCandidates(t *testing.T) {
	svc := NewMockService(entitiesEcho)
	f := &Fetcher{Services: Services{"accounts": svc}}

	res, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{
		Path: value.Path{"t"},
		Data: map[string]any{"t": []any{nil, nil}},
	})
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Nil(t, res.Value)
	require.Empty(t, res.Errors)
	require.Empty(t, svc.Calls())
}

func TestEntityFetchRebasesErrors(t *testing.T) {
	svc := NewMockService(func(ctx context.Context, req *graphql.Request) (*graphql.Response, error) {
		return &graphql.Response{
			Data: map[string]any{"_entities": []any{map[string]any{"name": nil}, map[string]any{"name": "b"}}},
			Errors: []graphql.Error{
				{Message: "name failed", Path: value.Path{"_entities", 0, "name"}, Locations: []graphql.Location{{Line: 1, Column: 2}}},
				{Message: "elsewhere", Path: value.Path{"other"}},
				{Message: "global"},
			},
		}, nil
	})
	f := &Fetcher{Services: Services{"accounts": svc}}

	res, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{
		Path:  value.Path{"t", value.Flatten},
		Data:  threeUsers(),
		Dedup: true,
	})
	require.NoError(t, err)

	want := []graphql.Error{
		{Message: "name failed", Path: value.Path{"t", 0, "name"}},
		{Message: "name failed", Path: value.Path{"t", 1, "name"}},
		{Message: "elsewhere", Path: value.Path{"t", "other"}},
		{Message: "global"},
	}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestEntityFetchMissingEntities(t *testing.T) {
	t.Run("With backend errors", func(t *testing.T) {
		svc := NewMockServiceResponses(&graphql.Response{
			Errors: []graphql.Error{{Message: "forbidden", Path: value.Path{"_entities", 1}}},
		})
		f := &Fetcher{Services: Services{"accounts": svc}}

		res, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{Path: value.Path{"t"}, Data: threeUsers(), Dedup: true})
		require.NoError(t, err)
		require.Nil(t, res.Value)
		require.Len(t, res.Errors, 2)
		require.Equal(t, graphql.Error{Message: "forbidden", Path: value.Path{"t", 2}}, res.Errors[0])
		require.Equal(t, value.Path{"t"}, res.Errors[1].Path)
		require.Equal(t, map[string]any{"code": CodeMalformedResponse, "service": "accounts"}, res.Errors[1].Extensions)
	})

	t.Run("Without errors", func(t *testing.T) {
		svc := NewMockServiceResponses(&graphql.Response{Data: map[string]any{}})
		f := &Fetcher{Services: Services{"accounts": svc}}

		_, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{Path: value.Path{"t"}, Data: threeUsers()})
		var fe *Error
		require.True(t, errors.As(err, &fe))
		require.Equal(t, CodeMalformedResponse, fe.Code)
	})

	t.Run("Length mismatch", func(t *testing.T) {
		svc := NewMockServiceResponses(&graphql.Response{Data: map[string]any{"_entities": []any{nil}}})
		f := &Fetcher{Services: Services{"accounts": svc}}

		_, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{Path: value.Path{"t"}, Data: threeUsers(), Dedup: true})
		var fe *Error
		require.True(t, errors.As(err, &fe))
		require.Equal(t, CodeMalformedResponse, fe.Code)
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("Not a list", func(t *testing.T) {
		svc := NewMockServiceResponses(&graphql.Response{Data: map[string]any{"_entities": "nope"}})
		f := &Fetcher{Services: Services{"accounts": svc}}

		_, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{Path: value.Path{"t"}, Data: threeUsers()})
		require.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestRootFetch(t *testing.T) {
	t.Run("Splices data at the current path", func(t *testing.T) {
		svc := NewMockServiceResponses(&graphql.Response{
			Data:   map[string]any{"x": 1},
			Errors: []graphql.Error{{Message: "partial", Path: value.Path{"x"}}},
		})
		f := &Fetcher{Services: Services{"inventory": svc}}
		spec := &plan.FetchSpec{
			ServiceName:    "inventory",
			VariableUsages: []string{"first", "absent"},
			Operation:      "query($first: Int) { x }",
			OperationName:  "Inventory",
		}

		res, err := f.Fetch(context.Background(), spec, Input{
			Path:      value.Path{"a", "b"},
			Data:      map[string]any{"a": map[string]any{"b": map[string]any{}}},
			Variables: map[string]any{"first": 2, "other": 3},
		})
		require.NoError(t, err)

		if diff := cmp.Diff(map[string]any{"a": map[string]any{"b": map[string]any{"x": 1}}}, res.Value); diff != "" {
			t.Fatalf("value mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, []graphql.Error{{Message: "partial", Path: value.Path{"a", "b", "x"}}}, res.Errors)

		calls := svc.Calls()
		require.Len(t, calls, 1)
		require.Equal(t, &graphql.Request{
			Query:         "query($first: Int) { x }",
			OperationName: "Inventory",
			Variables:     map[string]any{"first": 2},
		}, calls[0])
	})

	t.Run("Skips below null", func(t *testing.T) {
		svc := NewMockServiceResponses()
		f := &Fetcher{Services: Services{"inventory": svc}}
		spec := &plan.FetchSpec{ServiceName: "inventory", Operation: "{ x }"}

		res, err := f.Fetch(context.Background(), spec, Input{Path: value.Path{"a"}, Data: map[string]any{"a": nil}})
		require.NoError(t, err)
		require.True(t, res.Skipped)
		require.Empty(t, svc.Calls())
	})

	t.Run("Unknown service", func(t *testing.T) {
		f := &Fetcher{Services: Services{}}
		_, err := f.Fetch(context.Background(), &plan.FetchSpec{ServiceName: "nope", Operation: "{ x }"}, Input{})
		var fe *Error
		require.True(t, errors.As(err, &fe))
		require.Equal(t, CodeUnknownService, fe.Code)
		require.ErrorIs(t, err, ErrUnknownService)
	})

	t.Run("Transport failure", func(t *testing.T) {
		f := &Fetcher{Services: Services{"inventory": NewMockServiceError(errors.New("connection refused"))}}
		_, err := f.Fetch(context.Background(), &plan.FetchSpec{ServiceName: "inventory", Operation: "{ x }"}, Input{})
		var fe *Error
		require.True(t, errors.As(err, &fe))
		require.Equal(t, CodeHTTPError, fe.Code)

		gerr := fe.GraphQLError(value.Path{"a"})
		require.Equal(t, value.Path{"a"}, gerr.Path)
		require.Equal(t, map[string]any{"code": CodeHTTPError, "service": "inventory"}, gerr.Extensions)
	})
}

func TestFetchEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var starts []events.FetchStart
	var finishes []events.FetchFinish
	eventbus.Subscribe(func(_ context.Context, e events.FetchStart) { starts = append(starts, e) })
	eventbus.Subscribe(func(_ context.Context, e events.FetchFinish) { finishes = append(finishes, e) })

	f := &Fetcher{Services: Services{"accounts": NewMockService(entitiesEcho)}}
	_, err := f.Fetch(context.Background(), entitySpec("accounts"), Input{Path: value.Path{"t"}, Data: threeUsers(), Dedup: true})
	require.NoError(t, err)

	require.Len(t, starts, 1)
	require.Len(t, finishes, 1)
	require.Equal(t, starts[0].ID, finishes[0].ID)
	require.True(t, starts[0].Entity)
	require.Equal(t, 2, starts[0].Representations)
	require.Equal(t, 3, starts[0].Candidates)
	require.Equal(t, "/t", finishes[0].Path)
	require.False(t, finishes[0].Skipped)
}
