package observability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/otherjamesbrown/minutes-cli/pkg/buildinfo"
)

func TestIngestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestMetrics(reg)

	m.RecordOutcome(OutcomeImported)
	m.RecordOutcome(OutcomeImported)
	m.RecordOutcome(OutcomeFailed)
	m.RecordError("parse", "no_title_found")
	m.RecordStageLatency("extract", 0.2)
	m.RecordItem("unanimous")
	m.RecordItem("unknown")
	m.RecordItem("unanimous")
	m.RecordAttendees(12)
	m.RecordSkippedPrefix(40)
	m.MarkRunCompleted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues(OutcomeImported)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("parse", "no_title_found")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("unanimous")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.AttendeesTotal))
	assert.Greater(t, testutil.ToFloat64(m.LastRunTimestamp), 0.0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageSeconds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildInfo.WithLabelValues(buildinfo.Version, buildinfo.Commit, buildinfo.Get("").GoVersion)))
}

func TestIngestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewIngestMetrics(reg)
	assert.Panics(t, func() { NewIngestMetrics(reg) })
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestMetrics(reg)
	m.RecordOutcome(OutcomeSkipped)

	path := filepath.Join(t.TempDir(), "textfile", "minutes.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `minutes_documents_total{outcome="skipped"} 1`))

	assert.NoError(t, WriteTextfile("", reg), "an empty path disables the export")
}

func TestTracer_Spans(t *testing.T) {
	tr := NewTracerWithProvider(noop.NewTracerProvider())
	ctx := context.Background()

	ctx, job := tr.StartJobSpan(ctx, "job-1")
	defer job.End()
	docCtx, doc := tr.StartDocumentSpan(ctx, "job-1", "pv.pdf")
	_, stage := tr.StartStageSpan(docCtx, "parse")

	h := NewSpanHelper(stage)
	h.SetMeeting("m-1", 4, 12)
	h.SetDuration(5)
	h.SetError(errors.New("boom"), "processing_error", false)
	h.SetSuccess()
	h.AddEvent("done")
	stage.End()
	doc.End()

	assert.Empty(t, GetTraceID(docCtx), "noop spans carry no trace id")
	assert.NotNil(t, NewTracer())
}

func TestGetTraceID(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
	assert.Empty(t, GetTraceID(context.Background()))
}
