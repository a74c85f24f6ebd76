package httptp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/federate/internal/eventbus"
	events "github.com/hanpama/federate/internal/events"
	"github.com/hanpama/federate/internal/fetch"
	"github.com/hanpama/federate/internal/graphql"
	"github.com/hanpama/federate/internal/value"
)

func TestBackend_Call(t *testing.T) {
	var got struct {
		Method      string
		ContentType string
		Tenant      string
		Body        map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Method = r.Method
		got.ContentType = r.Header.Get("Content-Type")
		got.Tenant = r.Header.Get("X-Tenant")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"_entities":[{"id":1}]},"errors":[{"message":"bad","path":["_entities",0,"name"]}]}`)
	}))
	defer srv.Close()

	b := New("accounts", srv.URL, WithHeader("X-Tenant", "acme"))
	resp, err := b.Call(t.Context(), &graphql.Request{
		Query:         "query Q { x }",
		OperationName: "Q",
		Variables:     map[string]any{"representations": []any{}},
	})
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "application/json", got.ContentType)
	require.Equal(t, "acme", got.Tenant)
	require.Equal(t, map[string]any{
		"query":         "query Q { x }",
		"operationName": "Q",
		"variables":     map[string]any{"representations": []any{}},
	}, got.Body)

	want := &graphql.Response{
		Data:   map[string]any{"_entities": []any{map[string]any{"id": json.Number("1")}}},
		Errors: []graphql.Error{{Message: "bad", Path: value.Path{"_entities", 0, "name"}}},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Fatalf("Response mismatch (-want +got):\n%s", diff)
	}
}

func TestBackend_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New("accounts", srv.URL).Call(t.Context(), &graphql.Request{Query: "{ x }"})
	require.ErrorIs(t, err, ErrStatus)
	require.Contains(t, err.Error(), "503")
	require.Contains(t, err.Error(), "overloaded")

	var fe *fetch.Error
	require.False(t, errors.As(err, &fe))
}

func TestBackend_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	_, err := New("accounts", srv.URL).Call(t.Context(), &graphql.Request{Query: "{ x }"})
	var fe *fetch.Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, fetch.CodeMalformedResponse, fe.Code)
}

func TestBackend_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New("accounts", srv.URL, WithTimeout(50*time.Millisecond)).Call(t.Context(), &graphql.Request{Query: "{ x }"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackend_PublishesBackendEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var (
		mu       sync.Mutex
		finishes []events.BackendCallFinish
	)
	eventbus.Subscribe(func(_ context.Context, e events.BackendCallFinish) {
		mu.Lock()
		defer mu.Unlock()
		finishes = append(finishes, e)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	ctx := events.WithFetchID(t.Context(), 7)
	_, err := New("accounts", srv.URL).Call(ctx, &graphql.Request{Query: "{ x }"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, finishes, 1)
	require.Equal(t, uint64(7), finishes[0].FetchID)
	require.Equal(t, "http", finishes[0].Transport)
	require.Equal(t, srv.URL, finishes[0].Target)
	require.Equal(t, "200", finishes[0].Status)
	require.NoError(t, finishes[0].Err)
}
