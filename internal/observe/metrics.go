// Package observe provides application-wide observability primitives for
// Vestibule: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. The [Collector] aggregates the
// same events into a snapshot served by the status endpoints. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vestibule metrics.
const meterName = "github.com/attalus-io/vestibule"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRDuration tracks speech-to-text transcription latency.
	ASRDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// LLMDuration tracks response enrichment latency.
	LLMDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end pipeline latency per workflow entry
	// point. Use with attribute:
	//   attribute.String("entry", "text"|"audio"|"stream")
	PipelineDuration metric.Float64Histogram

	// IntentDuration tracks intent handler execution latency.
	IntentDuration metric.Float64Histogram

	// ResampleDuration tracks sample-rate conversion latency. Use with
	// attribute: attribute.String("component", ...)
	ResampleDuration metric.Float64Histogram

	// DisambiguationDuration tracks contextual command resolution latency.
	DisambiguationDuration metric.Float64Histogram

	// --- Counters ---

	// IntentExecutions counts intent handler executions. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("domain", ...), attribute.String("status", ...)
	IntentExecutions metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ResampleOperations counts sample-rate conversions. Use with attributes:
	//   attribute.String("component", ...), attribute.String("status", ...)
	ResampleOperations metric.Int64Counter

	// DisambiguationResolutions counts contextual command resolutions. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("domain", ...), attribute.String("cache", "hit"|"miss")
	DisambiguationResolutions metric.Int64Counter

	// SessionEvents counts session lifecycle transitions. Use with attribute:
	//   attribute.String("event", "started"|"expired"|"cleared"|"shutdown")
	SessionEvents metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ComponentsReady tracks the number of successfully initialised
	// components.
	ComponentsReady metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// fastBuckets defines bucket boundaries (in seconds) for in-process work such
// as resampling and contextual resolution, which completes well under a
// second.
var fastBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ASRDuration, err = m.Float64Histogram("vestibule.asr.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("vestibule.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("vestibule.llm.duration",
		metric.WithDescription("Latency of LLM response enrichment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("vestibule.pipeline.duration",
		metric.WithDescription("End-to-end pipeline latency by entry point."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IntentDuration, err = m.Float64Histogram("vestibule.intent.duration",
		metric.WithDescription("Latency of intent handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResampleDuration, err = m.Float64Histogram("vestibule.resample.duration",
		metric.WithDescription("Latency of sample-rate conversion by component."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fastBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DisambiguationDuration, err = m.Float64Histogram("vestibule.disambiguation.duration",
		metric.WithDescription("Latency of contextual command resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fastBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.IntentExecutions, err = m.Int64Counter("vestibule.intent.executions",
		metric.WithDescription("Total intent executions by intent, domain, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("vestibule.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("vestibule.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ResampleOperations, err = m.Int64Counter("vestibule.resample.operations",
		metric.WithDescription("Total sample-rate conversions by component and status."),
	); err != nil {
		return nil, err
	}
	if met.DisambiguationResolutions, err = m.Int64Counter("vestibule.disambiguation.resolutions",
		metric.WithDescription("Total contextual command resolutions by method, domain, and cache outcome."),
	); err != nil {
		return nil, err
	}
	if met.SessionEvents, err = m.Int64Counter("vestibule.session.events",
		metric.WithDescription("Total session lifecycle events by event kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("vestibule.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}
	if met.ComponentsReady, err = m.Int64UpDownCounter("vestibule.components_ready",
		metric.WithDescription("Number of successfully initialised components."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vestibule.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSessionEvent records a session lifecycle counter increment and keeps
// the active-session gauge in step: "started" increments it, every other
// event decrements it.
func (m *Metrics) RecordSessionEvent(ctx context.Context, event string) {
	m.SessionEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event", event)),
	)
	if event == "started" {
		m.ActiveSessions.Add(ctx, 1)
	} else {
		m.ActiveSessions.Add(ctx, -1)
	}
}
