// Package observe provides application-wide observability primitives for
// framelens: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] and scraped through
// [MetricsHandler]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all framelens metrics.
const meterName = "github.com/MrWong99/framelens"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel instruments handle their own synchronisation.
type Metrics struct {
	// --- Highlighting ---

	// HighlightDuration tracks end-to-end highlight latency.
	HighlightDuration metric.Float64Histogram

	// Candidates counts candidate spans found before resolution. Use with
	// attribute.String("kind", "exact"|"fuzzy").
	Candidates metric.Int64Counter

	// Spans counts final spans after resolution, by kind and category.
	Spans metric.Int64Counter

	// --- Transcription ---

	// TranscriptionDuration tracks speech-to-text latency by provider.
	TranscriptionDuration metric.Float64Histogram

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// TranscriptCache counts transcript cache lookups by result (hit, miss).
	TranscriptCache metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by provider and
	// target state.
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// HTTPInFlight tracks requests currently being served.
	HTTPInFlight metric.Int64UpDownCounter
}

// highlightBuckets are bucket boundaries (in seconds) for in-memory text
// scanning.
var highlightBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// transcriptionBuckets are bucket boundaries (in seconds) for whole-file
// speech recognition.
var transcriptionBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.HighlightDuration, err = m.Float64Histogram("framelens.highlight.duration",
		metric.WithDescription("Latency of phrase highlighting."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(highlightBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("framelens.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(transcriptionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("framelens.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Candidates, err = m.Int64Counter("framelens.highlight.candidates",
		metric.WithDescription("Candidate spans found before resolution, by kind."),
	); err != nil {
		return nil, err
	}
	if met.Spans, err = m.Int64Counter("framelens.highlight.spans",
		metric.WithDescription("Final highlighted spans, by kind and category."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("framelens.provider.requests",
		metric.WithDescription("Total transcription provider requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("framelens.provider.errors",
		metric.WithDescription("Total transcription provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptCache, err = m.Int64Counter("framelens.transcript_cache.lookups",
		metric.WithDescription("Transcript cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("framelens.circuit_breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.HTTPInFlight, err = m.Int64UpDownCounter("framelens.http.in_flight",
		metric.WithDescription("Number of HTTP requests currently being served."),
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

// HighlightStats is the per-call outcome recorded by [Metrics.RecordHighlight].
type HighlightStats struct {
	ExactCandidates int
	FuzzyCandidates int

	// Spans holds final span counts per kind and category.
	Spans map[SpanKey]int
}

// SpanKey identifies a group of final spans.
type SpanKey struct {
	Kind     string
	Category string
}

// RecordHighlight records latency and candidate/span counts for one call.
func (m *Metrics) RecordHighlight(ctx context.Context, d time.Duration, s HighlightStats) {
	m.HighlightDuration.Record(ctx, d.Seconds())
	m.Candidates.Add(ctx, int64(s.ExactCandidates), metric.WithAttributes(Attr("kind", "exact")))
	m.Candidates.Add(ctx, int64(s.FuzzyCandidates), metric.WithAttributes(Attr("kind", "fuzzy")))
	for k, n := range s.Spans {
		m.Spans.Add(ctx, int64(n), metric.WithAttributes(
			Attr("kind", k.Kind),
			Attr("category", k.Category),
		))
	}
}

// RecordTranscription records latency and the request counter for one
// provider call. status is "ok" or "error".
func (m *Metrics) RecordTranscription(ctx context.Context, provider, status string, d time.Duration) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("provider", provider)))
	m.RecordProviderRequest(ctx, provider, status)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCacheLookup records a transcript cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.TranscriptCache.Add(ctx, 1, metric.WithAttributes(Attr("result", result)))
}

// RecordBreakerTransition records a circuit breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("state", state),
	))
}
