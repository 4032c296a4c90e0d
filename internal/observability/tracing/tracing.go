// Package tracing provides a small tracer abstraction used by the core
// services, with noop, composite and OpenTelemetry implementations.
package tracing

import "context"

// Attribute represents a key/value pair attached to a span.
type Attribute struct {
	Key   string
	Value any
}

// Span represents an in-flight tracing span.
type Span interface {
	End(err error)
}

// Tracer starts spans for tracing operations.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// NoopTracer discards all tracing events.
type NoopTracer struct{}

// Start implements Tracer.
func (NoopTracer) Start(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

// End implements Span.
func (noopSpan) End(error) {}

type compositeTracer struct {
	tracers []Tracer
}

func (c compositeTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	spans := make(compositeSpan, 0, len(c.tracers))
	for _, tracer := range c.tracers {
		var span Span
		ctx, span = tracer.Start(ctx, name, attrs...)
		if span == nil {
			span = noopSpan{}
		}
		spans = append(spans, span)
	}
	return ctx, spans
}

type compositeSpan []Span

func (cs compositeSpan) End(err error) {
	for _, span := range cs {
		span.End(err)
	}
}

// WithTracer drops nil tracers and returns a single tracer fanning out to the rest.
func WithTracer(primary Tracer, others ...Tracer) Tracer {
	tracers := make([]Tracer, 0, 1+len(others))
	if primary != nil {
		tracers = append(tracers, primary)
	}
	for _, t := range others {
		if t != nil {
			tracers = append(tracers, t)
		}
	}
	switch len(tracers) {
	case 0:
		return NoopTracer{}
	case 1:
		return tracers[0]
	default:
		return compositeTracer{tracers: tracers}
	}
}

// OrNoop returns t, or a NoopTracer when t is nil.
func OrNoop(t Tracer) Tracer {
	if t == nil {
		return NoopTracer{}
	}
	return t
}

// String attribute helper.
func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

// Int attribute helper.
func Int(key string, value int) Attribute { return Attribute{Key: key, Value: value} }

// Bool attribute helper.
func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }
