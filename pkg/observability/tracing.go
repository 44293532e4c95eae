package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for ingest operations.
	TracerName = "github.com/otherjamesbrown/minutes-cli/ingest"
)

// Span attribute keys
const (
	AttrJobID      = "job_id"
	AttrFile       = "file"
	AttrStage      = "stage"
	AttrMeetingID  = "meeting_id"
	AttrItems      = "items"
	AttrAttendees  = "attendees"
	AttrDurationMs = "duration_ms"
	AttrErrorCode  = "error_code"
	AttrRetryable  = "retryable"
)

// Span names
const (
	SpanIngestJob       = "ingest.job"
	SpanProcessDocument = "ingest.document"
)

// Tracer provides tracing for ingest operations. Spans are no-ops unless the
// process installs a TracerProvider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// NewTracerWithProvider creates a tracer from an explicit provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartJobSpan starts the root span of a batch run.
func (t *Tracer) StartJobSpan(ctx context.Context, jobID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanIngestJob,
		trace.WithAttributes(attribute.String(AttrJobID, jobID)),
	)
}

// StartDocumentSpan starts a span for processing one document.
func (t *Tracer) StartDocumentSpan(ctx context.Context, jobID, path string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanProcessDocument,
		trace.WithAttributes(
			attribute.String(AttrJobID, jobID),
			attribute.String(AttrFile, path),
		),
	)
}

// StartStageSpan starts a span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ingest.stage."+stage,
		trace.WithAttributes(attribute.String(AttrStage, stage)),
	)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetMeeting sets record attributes on the span.
func (h *SpanHelper) SetMeeting(id string, items, attendees int) {
	h.span.SetAttributes(
		attribute.String(AttrMeetingID, id),
		attribute.Int(AttrItems, items),
		attribute.Int(AttrAttendees, attendees),
	)
}

// SetDuration sets the duration attribute.
func (h *SpanHelper) SetDuration(durationMs int64) {
	h.span.SetAttributes(attribute.Int64(AttrDurationMs, durationMs))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, code string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span.
func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
