// Package observe provides application-wide observability primitives for
// Autocue: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Autocue metrics.
const meterName = "github.com/MrWong99/autocue"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// MatchDuration tracks candidate-search latency per transcript update.
	MatchDuration metric.Float64Histogram

	// TranscriptLag tracks the delay between a transcript's audio timestamp
	// and the moment the pipeline processed it.
	TranscriptLag metric.Float64Histogram

	// --- Counters ---

	// TrackerDecisions counts position-tracker outcomes. Use with attribute:
	//   attribute.String("action", ...) — one of "advanced", "hold", "exploring"
	TrackerDecisions metric.Int64Counter

	// Skips counts confirmed position jumps larger than the catch-up
	// threshold. Use with attribute:
	//   attribute.String("direction", ...) — "forward" is the only direction today
	Skips metric.Int64Counter

	// Transcripts counts transcript updates received from the STT provider.
	// Use with attribute:
	//   attribute.String("kind", ...) — "partial" or "final"
	Transcripts metric.Int64Counter

	// ProviderErrors counts STT provider errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live prompter sessions.
	ActiveSessions metric.Int64UpDownCounter

	// DisplayClients tracks the number of connected display websockets.
	DisplayClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-transcript matching work, which is expected to finish well under a
// frame interval.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.MatchDuration, err = m.Float64Histogram("autocue.match.duration",
		metric.WithDescription("Latency of candidate search per transcript update."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptLag, err = m.Float64Histogram("autocue.transcript.lag",
		metric.WithDescription("Delay between transcript audio timestamp and pipeline processing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TrackerDecisions, err = m.Int64Counter("autocue.tracker.decisions",
		metric.WithDescription("Total position-tracker outcomes by action."),
	); err != nil {
		return nil, err
	}
	if met.Skips, err = m.Int64Counter("autocue.tracker.skips",
		metric.WithDescription("Total confirmed position jumps beyond the catch-up threshold."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("autocue.transcripts",
		metric.WithDescription("Total transcript updates received by kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("autocue.provider.errors",
		metric.WithDescription("Total STT provider errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("autocue.active_sessions",
		metric.WithDescription("Number of live prompter sessions."),
	); err != nil {
		return nil, err
	}
	if met.DisplayClients, err = m.Int64UpDownCounter("autocue.display_clients",
		metric.WithDescription("Number of connected display websockets."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("autocue.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTrackerDecision records a tracker outcome counter increment with the
// standard attribute set.
func (m *Metrics) RecordTrackerDecision(ctx context.Context, action string) {
	m.TrackerDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordTranscript records a transcript counter increment by kind.
func (m *Metrics) RecordTranscript(ctx context.Context, isFinal bool) {
	kind := "partial"
	if isFinal {
		kind = "final"
	}
	m.Transcripts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordProviderError records an STT provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
