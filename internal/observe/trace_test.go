package observe

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// spanRecorder installs an in-memory exporter as the global tracer provider
// for the duration of one test.
func spanRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q, want empty", got)
	}

	spanRecorder(t)
	ctx, span := StartSpan(context.Background(), "stt.session")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 || !isHex(cid) {
		t.Errorf("CorrelationID = %q, want a 32-char lowercase hex trace id", cid)
	}
}

func TestStartSpan_RecordsNamedSpan(t *testing.T) {
	exp := spanRecorder(t)

	_, span := StartSpan(context.Background(), "stt.recognize")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "stt.recognize" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "stt.recognize")
	}
}

func TestCorrelationID_DistinctPerTrace(t *testing.T) {
	spanRecorder(t)

	seen := make(map[string]struct{}, 50)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "stt.chunk")
		cid := CorrelationID(ctx)
		span.End()
		if _, dup := seen[cid]; dup {
			t.Fatalf("trace id %s repeated", cid)
		}
		seen[cid] = struct{}{}
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	spanRecorder(t)

	var sb strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&sb, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	// Without a span: no trace attributes.
	Logger(context.Background()).Info("plain")
	if strings.Contains(sb.String(), "trace_id") {
		t.Errorf("log without a span should not carry trace_id: %s", sb.String())
	}

	// With a span: trace_id and span_id attached.
	sb.Reset()
	ctx, span := StartSpan(context.Background(), "stt.session")
	defer span.End()
	Logger(ctx).Info("correlated")

	out := sb.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log inside a span missing trace correlation: %s", out)
	}
}

func TestSessionLogger_CarriesSessionAndTrace(t *testing.T) {
	spanRecorder(t)

	var sb strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&sb, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx, span := StartSpan(context.Background(), "stt.session")
	defer span.End()
	SessionLogger(ctx, "sess-42").Info("chunk queued")

	out := sb.String()
	if !strings.Contains(out, "session_id=sess-42") {
		t.Errorf("log missing session_id: %s", out)
	}
	if !strings.Contains(out, "trace_id=") {
		t.Errorf("log missing trace correlation: %s", out)
	}

	// Without a span the session label still applies.
	sb.Reset()
	SessionLogger(context.Background(), "sess-43").Info("closing")
	if !strings.Contains(sb.String(), "session_id=sess-43") {
		t.Errorf("log missing session_id without a span: %s", sb.String())
	}
}

func TestTracer_NotNil(t *testing.T) {
	if Tracer() == nil {
		t.Fatal("Tracer() returned nil")
	}
}
