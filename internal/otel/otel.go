package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/federate/internal/eventbus"
	events "github.com/hanpama/federate/internal/events"
	reqid "github.com/hanpama/federate/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/hanpama/federate"

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Register(tp.Tracer(instrumentation))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Register turns plan, fetch and backend call events into spans of t.
// Fetch spans are children of their plan span and backend call spans are
// children of their fetch span.
func Register(t trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: t}
	return s.register()
}

type subscriber struct {
	tracer       trace.Tracer
	planSpans    sync.Map // rid -> trace.Span
	fetchSpans   sync.Map // fetch id -> trace.Span
	backendSpans sync.Map // call id -> trace.Span
}

func (s *subscriber) register() func() {
	unsubs := []func(){
		eventbus.Subscribe(s.planStart),
		eventbus.Subscribe(s.planFinish),
		eventbus.Subscribe(s.fetchStart),
		eventbus.Subscribe(s.fetchFinish),
		eventbus.Subscribe(s.backendStart),
		eventbus.Subscribe(s.backendFinish),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (s *subscriber) planStart(ctx context.Context, e events.PlanStart) {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(ctx, "federate.plan")
	span.SetAttributes(
		attribute.Int64("federate.execution", rid),
		attribute.Int("federate.plan.fetches", e.Fetches),
		attribute.Bool("federate.plan.mutations", e.Mutations),
	)
	s.planSpans.Store(rid, span)
}

func (s *subscriber) planFinish(ctx context.Context, e events.PlanFinish) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.planSpans.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attribute.Int("graphql.error_count", e.Errors))
	span.End()
}

func (s *subscriber) fetchStart(ctx context.Context, e events.FetchStart) {
	parent := ctx
	if rid, ok := reqid.FromContext(ctx); ok {
		if v, ok := s.planSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	_, span := s.tracer.Start(parent, "federate.fetch")
	span.SetAttributes(
		attribute.String("federate.service", e.Service),
		attribute.String("federate.path", e.Path),
		attribute.Bool("federate.fetch.entity", e.Entity),
	)
	if e.Entity {
		span.SetAttributes(
			attribute.Int("federate.fetch.representations", e.Representations),
			attribute.Int("federate.fetch.candidates", e.Candidates),
		)
	}
	s.fetchSpans.Store(e.ID, span)
}

func (s *subscriber) fetchFinish(_ context.Context, e events.FetchFinish) {
	v, ok := s.fetchSpans.LoadAndDelete(e.ID)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(
		attribute.Bool("federate.fetch.skipped", e.Skipped),
		attribute.Int("graphql.error_count", e.Errors),
	)
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	}
	span.End()
}

func (s *subscriber) backendStart(ctx context.Context, e events.BackendCallStart) {
	parent := ctx
	if v, ok := s.fetchSpans.Load(e.FetchID); ok {
		parent = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := s.tracer.Start(parent, e.Transport+".client", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("federate.service", e.Service),
		attribute.String("net.peer.name", e.Target),
	)
	if e.Transport == "grpc" {
		span.SetAttributes(semconv.RPCSystemKey.String("grpc"))
	}
	s.backendSpans.Store(e.ID, span)
}

func (s *subscriber) backendFinish(_ context.Context, e events.BackendCallFinish) {
	v, ok := s.backendSpans.LoadAndDelete(e.ID)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attribute.String(e.Transport+".status", e.Status))
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	}
	span.End()
}
