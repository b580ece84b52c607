package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Span and log correlation for the transcription server. A transcript block
// on the wire can be tied back to the connection and recognizer calls that
// produced it because every per-request and per-session log line carries
// the active trace identifiers.

// tracerName is the instrumentation scope name for the package-level tracer.
const tracerName = "github.com/MrWong99/streamstt"

// Tracer returns the server's tracer from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span named name under the trace carried by ctx, if any.
// The caller owns span.End.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID active in ctx, or the empty string
// when ctx carries no span with a valid trace. The middleware mirrors it to
// clients in the X-Correlation-ID response header, so a client-side report
// quoting that header pins down the exact server-side trace.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// traceAttrs returns the slog attributes identifying the span in ctx, or
// nil when ctx carries none.
func traceAttrs(ctx context.Context) []any {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return nil
	}
	return []any{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
}

// Logger returns the default logger annotated with the trace identifiers
// in ctx, or the plain default logger when there are none.
func Logger(ctx context.Context) *slog.Logger {
	if attrs := traceAttrs(ctx); attrs != nil {
		return slog.Default().With(attrs...)
	}
	return slog.Default()
}

// SessionLogger returns [Logger] further labeled with the transcription
// session's ID. Every per-connection record in the transport and the core
// pipeline uses this shape, so one grep over session_id reconstructs a
// connection's full history.
func SessionLogger(ctx context.Context, sessionID string) *slog.Logger {
	return Logger(ctx).With(slog.String("session_id", sessionID))
}
