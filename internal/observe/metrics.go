// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/streamstt"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecognizeDuration tracks recognizer invocation latency (one Transcribe
	// call).
	RecognizeDuration metric.Float64Histogram

	// FinalBlocks counts emitted TranscriptBlocks of kind Final.
	FinalBlocks metric.Int64Counter

	// InProgressBlocks counts emitted TranscriptBlocks of kind InProgress.
	InProgressBlocks metric.Int64Counter

	// RecognizerErrors counts recognizer invocation failures. Use with
	// attribute: attribute.String("recognizer", ...)
	RecognizerErrors metric.Int64Counter

	// ActiveSessions tracks the number of live transcription sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for interactive streaming-transcription latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognizeDuration, err = m.Float64Histogram("stt.recognize.duration",
		metric.WithDescription("Latency of a single recognizer invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FinalBlocks, err = m.Int64Counter("stt.final_blocks",
		metric.WithDescription("Total emitted final transcript blocks."),
	); err != nil {
		return nil, err
	}
	if met.InProgressBlocks, err = m.Int64Counter("stt.inprogress_blocks",
		metric.WithDescription("Total emitted in-progress transcript blocks."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerErrors, err = m.Int64Counter("stt.recognizer.errors",
		metric.WithDescription("Total recognizer invocation failures by recognizer name."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("stt.active_sessions",
		metric.WithDescription("Number of live transcription sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordRecognizeDuration records one recognizer invocation's latency.
func (m *Metrics) RecordRecognizeDuration(ctx context.Context, seconds float64, recognizer string) {
	m.RecognizeDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("recognizer", recognizer)),
	)
}

// RecordBlock increments the appropriate block counter for kind.
func (m *Metrics) RecordBlock(ctx context.Context, final bool) {
	if final {
		m.FinalBlocks.Add(ctx, 1)
		return
	}
	m.InProgressBlocks.Add(ctx, 1)
}

// RecordRecognizerError increments the recognizer error counter.
func (m *Metrics) RecordRecognizerError(ctx context.Context, recognizer string) {
	m.RecognizerErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("recognizer", recognizer)),
	)
}
