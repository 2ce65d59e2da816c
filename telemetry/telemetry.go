// Package telemetry wraps span creation and usage accounting for the
// indexing and query pipelines behind small interfaces, so a caller who
// doesn't want tracing can pass a no-op and pay nothing for it.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for pipeline stages and agent runs. StartSpan returns
// a context carrying the new span plus an end func the caller defers.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error))
}

// otelTracer adapts an otel trace.Tracer to Tracer, recording span errors
// via RecordError + SetStatus so they show up in any configured exporter.
type otelTracer struct {
	tracer trace.Tracer
}

// NewOtel wraps the named tracer from the global otel TracerProvider.
func NewOtel(instrumentationName string) Tracer {
	return &otelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t *otelTracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// NoOp is a Tracer that starts no spans, for callers that don't want
// tracing overhead.
var NoOp Tracer = noOpTracer{}

type noOpTracer struct{}

func (noOpTracer) StartSpan(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Usage is one LLM call's token accounting, reported by providers after
// each request.
type Usage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// UsageRecorder accumulates Usage events, e.g. for cost tracking or rate
// limiting. Record must be safe for concurrent use.
type UsageRecorder interface {
	Record(ctx context.Context, u Usage)
}

// NoOpUsageRecorder discards every Usage event.
var NoOpUsageRecorder UsageRecorder = noOpUsageRecorder{}

type noOpUsageRecorder struct{}

func (noOpUsageRecorder) Record(context.Context, Usage) {}
