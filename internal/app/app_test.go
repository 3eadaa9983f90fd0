package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/framelens/internal/app"
	"github.com/MrWong99/framelens/internal/config"
	"github.com/MrWong99/framelens/internal/observe"
	"github.com/MrWong99/framelens/internal/server"
	"github.com/MrWong99/framelens/internal/transcription"
	"github.com/MrWong99/framelens/pkg/provider/stt"
	sttmock "github.com/MrWong99/framelens/pkg/provider/stt/mock"
)

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	m, _ := testMetrics(t)
	opts = append([]app.Option{app.WithMetrics(m), app.WithGatherer(prometheus.NewRegistry())}, opts...)
	a, err := app.New(cfg, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func writeTaxonomy(t *testing.T, path, id, phrase string) {
	t.Helper()
	content := "categories:\n  - id: " + id + "\n    color: \"#123456\"\n    phrases:\n      - " + phrase + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// closingProvider records Close calls.
type closingProvider struct {
	*sttmock.Provider
	closed atomic.Bool
}

func (c *closingProvider) Close() error {
	c.closed.Store(true)
	return nil
}

func TestNew_ServesHighlight(t *testing.T) {
	t.Parallel()
	a := newApp(t, config.Default())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/highlight", "application/json", strings.NewReader(`{"text":"You should do your part."}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Spans []struct {
			Category string `json:"category"`
		} `json:"spans"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Spans) == 0 || body.Spans[0].Category != "individualising" {
		t.Errorf("spans = %+v, want individualising first", body.Spans)
	}
}

func TestNew_ProbesAndMetrics(t *testing.T) {
	t.Parallel()
	a := newApp(t, config.Default(), app.WithVersion("test"))
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		// No transcription backend: degraded but ready.
		{"/readyz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/v1/legend", http.StatusOK},
	}
	for _, tc := range tests {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("GET %s = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Telemetry.DisableMetrics = true
	a := newApp(t, cfg)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestNew_NoTranscriptionBackend(t *testing.T) {
	t.Parallel()
	a := newApp(t, config.Default())

	if a.Transcriber().Enabled() {
		t.Fatal("transcriber enabled without providers")
	}
	_, err := a.Transcriber().Transcribe(context.Background(), transcription.Request{Data: []byte("x"), Filename: "a.mp3"})
	if !errors.Is(err, stt.ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestNew_InjectedSTT(t *testing.T) {
	t.Parallel()
	p := &sttmock.Provider{Result: stt.Transcript{Text: "we're failing"}}
	a := newApp(t, config.Default(), app.WithSTT(p))

	tr, err := a.Transcriber().Transcribe(context.Background(), transcription.Request{Data: []byte("x"), Filename: "a.wav"})
	if err != nil || tr.Text != "we're failing" {
		t.Fatalf("Transcribe = %q, %v", tr.Text, err)
	}
}

func TestNew_BuildsFallbackChain(t *testing.T) {
	t.Parallel()

	failing := &sttmock.Provider{Err: &stt.TranscriptionError{Provider: "primary", Err: errors.New("down")}}
	healthy := &closingProvider{Provider: &sttmock.Provider{Result: stt.Transcript{Text: "from fallback", Provider: "backup"}}}

	reg := config.NewRegistry()
	reg.RegisterSTT("primary", func(config.ProviderEntry) (stt.Provider, error) { return failing, nil })
	reg.RegisterSTT("backup", func(config.ProviderEntry) (stt.Provider, error) { return healthy, nil })
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, stt.ErrModelUnavailable
	})

	cfg := config.Default()
	cfg.Transcription.Providers = []config.ProviderEntry{
		{Name: "broken"},
		{Name: "unregistered"},
		{Name: "primary"},
		{Name: "backup"},
	}
	cfg.Transcription.CircuitBreaker.MaxFailures = 1

	m, reader := testMetrics(t)
	a, err := app.New(cfg, app.WithRegistry(reg), app.WithMetrics(m), app.WithGatherer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	tr, err := a.Transcriber().Transcribe(context.Background(), transcription.Request{Data: []byte("x"), Filename: "a.mp3"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "from fallback" {
		t.Errorf("text = %q, want fallback transcript", tr.Text)
	}
	if failing.CallCount() != 1 {
		t.Errorf("primary calls = %d, want 1", failing.CallCount())
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	if !hasPoint(rm, "framelens.circuit_breaker.transitions", "provider", "primary") {
		t.Error("breaker transition for primary not recorded")
	}
	if !hasPoint(rm, "framelens.provider.requests", "provider", "backup") {
		t.Error("provider request for backup not recorded")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !healthy.closed.Load() {
		t.Error("closable backend was not closed on shutdown")
	}
}

func hasPoint(rm metricdata.ResourceMetrics, name, key, value string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				return false
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					return true
				}
			}
		}
	}
	return false
}

func TestNew_InvalidTaxonomy(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Highlight.TaxonomyFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := app.New(cfg); err == nil {
		t.Fatal("expected error for missing taxonomy file")
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	taxPath := filepath.Join(dir, "tax.yaml")
	writeTaxonomy(t, taxPath, "custom", "carbon neutral")

	level := new(slog.LevelVar)
	old := config.Default()
	a := newApp(t, old, app.WithLevelVar(level))
	before := a.Snapshot()

	// Threshold only: same highlighter, new threshold.
	updated := config.Default()
	updated.Highlight.DefaultThreshold = 65
	updated.Server.LogLevel = config.LogDebug
	a.ApplyConfig(old, updated)

	if got := a.Snapshot(); got.Threshold != 65 || got.Highlighter != before.Highlighter {
		t.Errorf("snapshot = %+v, want threshold 65 on the same highlighter", got)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if a.Config() != updated {
		t.Error("Config() was not updated")
	}

	// Taxonomy change rebuilds the highlighter.
	withTax := config.Default()
	withTax.Highlight.DefaultThreshold = 65
	withTax.Server.LogLevel = config.LogDebug
	withTax.Highlight.TaxonomyFile = taxPath
	a.ApplyConfig(updated, withTax)

	snap := a.Snapshot()
	if _, ok := snap.Highlighter.Taxonomy().Category("custom"); !ok {
		t.Error("taxonomy was not reloaded")
	}
	if snap.Threshold != 65 {
		t.Errorf("threshold = %d, want 65", snap.Threshold)
	}

	// A broken taxonomy keeps the previous highlighter.
	broken := config.Default()
	broken.Highlight.DefaultThreshold = 65
	broken.Server.LogLevel = config.LogDebug
	broken.Highlight.TaxonomyFile = filepath.Join(dir, "nope.yaml")
	a.ApplyConfig(withTax, broken)
	if a.Snapshot() != snap {
		t.Error("snapshot replaced although the taxonomy failed to load")
	}
}

func TestReload(t *testing.T) {
	t.Parallel()

	taxPath := filepath.Join(t.TempDir(), "tax.yaml")
	writeTaxonomy(t, taxPath, "first", "alpha beta")

	cfg := config.Default()
	cfg.Highlight.TaxonomyFile = taxPath
	a := newApp(t, cfg)

	writeTaxonomy(t, taxPath, "second", "gamma delta")
	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := a.Snapshot().Highlighter.Taxonomy().Category("second"); !ok {
		t.Error("Reload did not pick up the new taxonomy content")
	}

	if err := os.Remove(taxPath); err != nil {
		t.Fatal(err)
	}
	if err := a.Reload(); err == nil {
		t.Error("Reload should fail when the taxonomy file is gone")
	}
}

// waitForCategory polls the live highlighter until it knows category id.
func waitForCategory(t *testing.T, a *app.App, id string) *server.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap := a.Snapshot()
		if _, ok := snap.Highlighter.Taxonomy().Category(id); ok {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("category %q never became live", id)
	return nil
}

func TestWatchTaxonomy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.yaml")
	writeTaxonomy(t, first, "first", "alpha beta")

	cfg := config.Default()
	cfg.Highlight.TaxonomyFile = first
	cfg.Highlight.DefaultThreshold = 70
	a := newApp(t, cfg)

	if err := a.WatchTaxonomy(); err != nil {
		t.Fatalf("WatchTaxonomy: %v", err)
	}

	writeTaxonomy(t, first, "edited", "gamma delta")
	if snap := waitForCategory(t, a, "edited"); snap.Threshold != 70 {
		t.Errorf("threshold = %d after reload, want 70", snap.Threshold)
	}

	// A new path moves the watch.
	second := filepath.Join(dir, "second.yaml")
	writeTaxonomy(t, second, "second", "epsilon")
	moved := config.Default()
	moved.Highlight.TaxonomyFile = second
	moved.Highlight.DefaultThreshold = 70
	a.ApplyConfig(cfg, moved)
	waitForCategory(t, a, "second")

	writeTaxonomy(t, second, "third", "zeta eta")
	waitForCategory(t, a, "third")
}

func TestWatchTaxonomy_BuiltinTaxonomy(t *testing.T) {
	t.Parallel()
	a := newApp(t, config.Default())
	if err := a.WatchTaxonomy(); err != nil {
		t.Errorf("WatchTaxonomy without a taxonomy file: %v", err)
	}
}

func TestWatchConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "framelens.yaml")
	if err := os.WriteFile(path, []byte("highlight:\n  default_threshold: 80\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	a := newApp(t, cfg)
	if err := a.WatchConfig(path, 20*time.Millisecond); err != nil {
		t.Fatalf("WatchConfig: %v", err)
	}

	if err := os.WriteFile(path, []byte("highlight:\n  default_threshold: 55\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	_ = os.Chtimes(path, future, future)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Snapshot().Threshold == 55 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("threshold = %d, want 55 after watcher reload", a.Snapshot().Threshold)
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:-1"
	a := newApp(t, cfg)

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a := newApp(t, config.Default())
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
