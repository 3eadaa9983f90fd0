package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

// sumByAttr returns the value of the first data point carrying all attrs.
func sumByAttr(t *testing.T, met *metricdata.Metrics, attrs map[string]string) (int64, bool) {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", met.Name)
	}
outer:
	for _, dp := range sum.DataPoints {
		for k, v := range attrs {
			got, ok := dp.Attributes.Value(attribute.Key(k))
			if !ok || got.AsString() != v {
				continue outer
			}
		}
		return dp.Value, true
	}
	return 0, false
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"framelens.highlight.duration", m.HighlightDuration},
		{"framelens.transcription.duration", m.TranscriptionDuration},
		{"framelens.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordHighlight(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordHighlight(ctx, 2*time.Millisecond, HighlightStats{
		ExactCandidates: 4,
		FuzzyCandidates: 1,
		Spans: map[SpanKey]int{
			{Kind: "exact", Category: "individualising"}: 2,
			{Kind: "fuzzy", Category: "collective_we"}:   1,
		},
	})
	m.RecordHighlight(ctx, time.Millisecond, HighlightStats{ExactCandidates: 1})

	rm := collect(t, reader)

	cands := findMetric(rm, "framelens.highlight.candidates")
	if cands == nil {
		t.Fatal("candidates metric not found")
	}
	if got, _ := sumByAttr(t, cands, map[string]string{"kind": "exact"}); got != 5 {
		t.Errorf("exact candidates = %d, want 5", got)
	}
	if got, _ := sumByAttr(t, cands, map[string]string{"kind": "fuzzy"}); got != 1 {
		t.Errorf("fuzzy candidates = %d, want 1", got)
	}

	spans := findMetric(rm, "framelens.highlight.spans")
	if spans == nil {
		t.Fatal("spans metric not found")
	}
	got, ok := sumByAttr(t, spans, map[string]string{"kind": "exact", "category": "individualising"})
	if !ok || got != 2 {
		t.Errorf("individualising exact spans = %d (found %v), want 2", got, ok)
	}

	hist := findMetric(rm, "framelens.highlight.duration").Data.(metricdata.Histogram[float64])
	if hist.DataPoints[0].Count != 2 {
		t.Errorf("highlight duration samples = %d, want 2", hist.DataPoints[0].Count)
	}
}

func TestRecordTranscription(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscription(ctx, "whisper", "ok", 3*time.Second)
	m.RecordTranscription(ctx, "whisper", "ok", time.Second)
	m.RecordTranscription(ctx, "whisper", "error", time.Second)
	m.RecordProviderError(ctx, "whisper", "transcription")

	rm := collect(t, reader)
	reqs := findMetric(rm, "framelens.provider.requests")
	if reqs == nil {
		t.Fatal("requests metric not found")
	}
	if got, _ := sumByAttr(t, reqs, map[string]string{"provider": "whisper", "status": "ok"}); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got, _ := sumByAttr(t, reqs, map[string]string{"status": "error"}); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}

	errs := findMetric(rm, "framelens.provider.errors")
	if errs == nil {
		t.Fatal("errors metric not found")
	}
	if got, _ := sumByAttr(t, errs, map[string]string{"kind": "transcription"}); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}

	hist := findMetric(rm, "framelens.transcription.duration").Data.(metricdata.Histogram[float64])
	if hist.DataPoints[0].Count != 3 {
		t.Errorf("transcription samples = %d, want 3", hist.DataPoints[0].Count)
	}
}

func TestRecordCacheLookupAndBreaker(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, false)
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, true)
	m.RecordBreakerTransition(ctx, "deepgram", "open")

	rm := collect(t, reader)
	cache := findMetric(rm, "framelens.transcript_cache.lookups")
	if cache == nil {
		t.Fatal("cache metric not found")
	}
	if got, _ := sumByAttr(t, cache, map[string]string{"result": "hit"}); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
	if got, _ := sumByAttr(t, cache, map[string]string{"result": "miss"}); got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}

	br := findMetric(rm, "framelens.circuit_breaker.transitions")
	if br == nil {
		t.Fatal("breaker metric not found")
	}
	if got, _ := sumByAttr(t, br, map[string]string{"provider": "deepgram", "state": "open"}); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestHTTPInFlight(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPInFlight.Add(ctx, 1)
	m.HTTPInFlight.Add(ctx, 1)
	m.HTTPInFlight.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "framelens.http.in_flight")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, _ := sumByAttr(t, met, nil); got != 1 {
		t.Errorf("in-flight = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
