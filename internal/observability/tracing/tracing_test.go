package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingTracer struct {
	started []string
	ended   []error
}

func (r *recordingTracer) Start(ctx context.Context, name string, _ ...Attribute) (context.Context, Span) {
	r.started = append(r.started, name)
	return ctx, recordingSpan{r: r}
}

type recordingSpan struct{ r *recordingTracer }

func (s recordingSpan) End(err error) { s.r.ended = append(s.r.ended, err) }

func TestWithTracer_Normalises(t *testing.T) {
	assert.IsType(t, NoopTracer{}, WithTracer(nil))

	one := &recordingTracer{}
	assert.Same(t, one, WithTracer(nil, one, nil))

	two := &recordingTracer{}
	composite := WithTracer(one, two)
	_, span := composite.Start(context.Background(), "ingest")
	boom := errors.New("boom")
	span.End(boom)

	assert.Equal(t, []string{"ingest"}, one.started)
	assert.Equal(t, []string{"ingest"}, two.started)
	assert.Equal(t, []error{boom}, two.ended)
}

func TestOrNoop(t *testing.T) {
	assert.IsType(t, NoopTracer{}, OrNoop(nil))
	r := &recordingTracer{}
	assert.Same(t, r, OrNoop(r))
}

func TestOTelTracer_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := NewOTelTracer(tp, "")
	_, span := tracer.Start(context.Background(), "retrieval.search", String("tag_match", "superset"), Int("k", 5))
	span.End(errors.New("embedding failed"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "retrieval.search", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Attributes(), 2)
}
