package observe

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// apiMux mimics the framelens routes closely enough for the middleware.
func apiMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/highlight", func(w http.ResponseWriter, r *http.Request) {
		if CorrelationID(r.Context()) == "" {
			http.Error(w, "no trace", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/transcribe", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("GET /v1/legend", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// instrumented wraps apiMux with the middleware, recording into fresh
// metrics and a fresh in-memory span exporter.
func instrumented(t *testing.T) (http.Handler, func() metricdata.ResourceMetrics, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)
	tp, exp := newTestTracerProvider(t)
	useGlobalTracer(t, tp)
	return Middleware(m)(apiMux()), func() metricdata.ResourceMetrics { return collect(t, reader) }, exp
}

func TestMiddleware_Routes(t *testing.T) {
	h, _, exp := instrumented(t)

	tests := []struct {
		method, path string
		wantStatus   int
		wantSpan     string
	}{
		{"POST", "/v1/highlight", http.StatusOK, "HTTP POST /v1/highlight"},
		{"POST", "/v1/transcribe", http.StatusBadGateway, "HTTP POST /v1/transcribe"},
		{"GET", "/v1/legend", http.StatusOK, "HTTP GET /v1/legend"},
		{"GET", "/v1/unknown", http.StatusNotFound, "HTTP GET /v1/unknown"},
	}
	for i, tc := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}")))
		if rec.Code != tc.wantStatus {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, rec.Code, tc.wantStatus)
		}
		cid := rec.Header().Get("X-Correlation-ID")
		if !traceIDPattern.MatchString(cid) {
			t.Errorf("%s %s: X-Correlation-ID = %q", tc.method, tc.path, cid)
		}

		spans := exp.GetSpans()
		if len(spans) != i+1 {
			t.Fatalf("spans = %d, want %d", len(spans), i+1)
		}
		s := spans[i]
		if s.Name != tc.wantSpan {
			t.Errorf("span name = %q, want %q", s.Name, tc.wantSpan)
		}
		if s.SpanContext.TraceID().String() != cid {
			t.Errorf("span trace %s does not match header %s", s.SpanContext.TraceID(), cid)
		}
		var status int64
		for _, a := range s.Attributes {
			if a.Key == "http.response.status_code" {
				status = a.Value.AsInt64()
			}
		}
		if status != int64(tc.wantStatus) {
			t.Errorf("span status attribute = %d, want %d", status, tc.wantStatus)
		}
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	h, _, _ := instrumented(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	req := httptest.NewRequest("POST", "/v1/highlight", strings.NewReader("{}"))
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, traceID) {
		t.Errorf("response traceparent = %q, want trace %s", tp, traceID)
	}
}

func TestMiddleware_RecordsRouteMetrics(t *testing.T) {
	h, collectNow, _ := instrumented(t)

	for range 3 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/highlight", strings.NewReader("{}")))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/legend", nil))

	rm := collectNow()
	met := findMetric(rm, "framelens.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		method, _ := dp.Attributes.Value("method")
		path, _ := dp.Attributes.Value("path")
		counts[method.AsString()+" "+path.AsString()] = dp.Count
	}
	if counts["POST /v1/highlight"] != 3 || counts["GET /v1/legend"] != 1 || len(counts) != 2 {
		t.Errorf("samples per route = %v", counts)
	}

	inflight := findMetric(rm, "framelens.http.in_flight").Data.(metricdata.Sum[int64])
	if len(inflight.DataPoints) != 1 || inflight.DataPoints[0].Value != 0 {
		t.Errorf("in-flight = %+v, want 0", inflight.DataPoints)
	}
}
