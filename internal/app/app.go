// Package app wires the framelens subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the highlighter snapshot,
// the transcription chain and the HTTP handler from the config, Run serves
// until the context is cancelled, and Shutdown tears everything down in order.
// ApplyConfig applies hot-reloadable settings coming from a config watcher
// and WatchTaxonomy follows edits to the taxonomy file.
//
// For testing, inject doubles via functional options (WithSTT, WithMetrics).
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/framelens/internal/config"
	"github.com/MrWong99/framelens/internal/health"
	"github.com/MrWong99/framelens/internal/observe"
	"github.com/MrWong99/framelens/internal/resilience"
	"github.com/MrWong99/framelens/internal/server"
	"github.com/MrWong99/framelens/internal/transcription"
	"github.com/MrWong99/framelens/pkg/highlight"
	"github.com/MrWong99/framelens/pkg/provider/stt"
	"github.com/MrWong99/framelens/pkg/taxonomy"
)

// App owns all subsystem lifetimes.
type App struct {
	// mu guards cfg and taxWatcher during reloads.
	mu         sync.Mutex
	cfg        *config.Config
	taxWatcher *taxonomy.FileWatcher

	registry *config.Registry
	level    *slog.LevelVar
	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	version  string
	stt      stt.Provider

	snap        atomic.Pointer[server.Snapshot]
	transcriber *transcription.Service
	fallback    *resilience.STTFallback
	handler     http.Handler
	httpSrv     *http.Server
	watcher     *config.Watcher

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithRegistry sets the registry used to build transcription backends.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithSTT injects a transcription backend instead of building the chain from
// the configured providers.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.stt = p }
}

// WithLevelVar sets the log level variable adjusted on hot reload.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics sets the metrics recorder. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the Prometheus gatherer served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithVersion sets the build version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// New creates an App from cfg. Transcription backends that cannot be
// created are logged and skipped; when none remain, transcription reports
// the speech model as unavailable.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.level.Set(cfg.Server.LogLevel.SlogLevel())

	snap, err := buildSnapshot(cfg.Highlight)
	if err != nil {
		return nil, fmt.Errorf("app: init highlighter: %w", err)
	}
	a.snap.Store(snap)

	a.initTranscription()
	a.initHandler()
	return a, nil
}

// Snapshot returns the highlighting state currently in effect.
func (a *App) Snapshot() *server.Snapshot { return a.snap.Load() }

// Handler returns the HTTP handler serving the API, probes and metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Transcriber returns the transcription service.
func (a *App) Transcriber() *transcription.Service { return a.transcriber }

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// buildSnapshot loads the taxonomy and compiles a highlighter for hc.
func buildSnapshot(hc config.HighlightConfig) (*server.Snapshot, error) {
	tax := taxonomy.Default()
	if hc.TaxonomyFile != "" {
		var err error
		tax, err = taxonomy.Load(hc.TaxonomyFile)
		if err != nil {
			return nil, err
		}
	}
	return compileSnapshot(tax, hc)
}

// compileSnapshot builds a highlighter over tax with the settings of hc.
func compileSnapshot(tax *taxonomy.Taxonomy, hc config.HighlightConfig) (*server.Snapshot, error) {
	var opts []highlight.Option
	if hc.Workers > 0 {
		opts = append(opts, highlight.WithWorkers(hc.Workers))
	}
	h, err := highlight.New(tax, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("highlighter ready",
		"categories", tax.Len(),
		"phrases", tax.PhraseCount(),
		"taxonomy_file", hc.TaxonomyFile,
	)
	return &server.Snapshot{Highlighter: h, Threshold: highlight.ClampThreshold(hc.DefaultThreshold)}, nil
}

// initTranscription builds the fallback chain and the transcription service.
func (a *App) initTranscription() {
	backend := a.stt
	if backend == nil {
		if fb := a.buildFallback(); fb != nil {
			a.fallback = fb
			backend = fb
		}
	}
	tc := a.cfg.Transcription
	a.transcriber = transcription.New(backend,
		transcription.WithCache(tc.CacheSize, tc.CacheTTL),
		transcription.WithMetrics(a.metrics),
	)
}

// buildFallback creates every configured backend through the registry and
// chains them in preference order. It returns nil when no backend could be
// created.
func (a *App) buildFallback() *resilience.STTFallback {
	tc := a.cfg.Transcription
	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  tc.CircuitBreaker.MaxFailures,
			ResetTimeout: tc.CircuitBreaker.ResetTimeout,
			HalfOpenMax:  tc.CircuitBreaker.HalfOpenMax,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("transcription backend circuit breaker changed state",
					"backend", name, "from", from.String(), "to", to.String())
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}

	var fb *resilience.STTFallback
	seen := make(map[string]int)
	for _, entry := range tc.Providers {
		p, err := a.registry.CreateSTT(entry)
		if err != nil {
			slog.Error("transcription backend unavailable", "name", entry.Name, "err", err)
			continue
		}
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}

		name := entry.Name
		if n := seen[entry.Name]; n > 0 {
			name = fmt.Sprintf("%s#%d", entry.Name, n+1)
		}
		seen[entry.Name]++

		p = transcription.Instrument(name, transcription.Bounded(p, entry.Timeout), a.metrics)
		if fb == nil {
			fb = resilience.NewSTTFallback(p, name, fcfg)
		} else {
			fb.AddFallback(name, p)
		}
	}
	if fb != nil {
		chain := make([]string, 0)
		for _, b := range fb.Backends() {
			chain = append(chain, b.Name)
		}
		slog.Info("transcription backends ready", "chain", chain)
	}
	return fb
}

// initHandler assembles the HTTP routes.
func (a *App) initHandler() {
	probes := health.New(
		health.Checker{Name: "highlighter", Check: func(context.Context) error {
			if a.Snapshot() == nil {
				return errors.New("no highlighter loaded")
			}
			return nil
		}},
		health.Checker{Name: "transcription", Optional: true, Check: a.transcriber.Ping},
	).WithVersion(a.version)

	opts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithMaxUploadBytes(a.cfg.Server.MaxUploadBytes),
		server.WithRequestTimeout(a.cfg.Server.RequestTimeout),
		server.WithRoutes(probes.Register),
	}
	if !a.cfg.Telemetry.DisableMetrics {
		metrics := observe.MetricsHandler(a.gatherer)
		opts = append(opts, server.WithRoutes(func(mux *http.ServeMux) {
			mux.Handle("GET /metrics", metrics)
		}))
	}

	var tr server.Transcriber
	if a.transcriber.Enabled() {
		tr = a.transcriber
	}
	a.handler = server.New(a, tr, opts...).Handler()
}

// WatchConfig starts polling path and applies changes via [App.ApplyConfig].
// The watcher is stopped by Shutdown.
func (a *App) WatchConfig(path string, interval time.Duration) error {
	w, err := config.NewWatcher(path, a.ApplyConfig, config.WithInterval(interval))
	if err != nil {
		return fmt.Errorf("app: watch config: %w", err)
	}
	a.watcher = w
	return nil
}

// ApplyConfig applies the hot-reloadable differences between old and updated:
// log level, default threshold, taxonomy file and worker count. Other
// changes are logged as requiring a restart.
func (a *App) ApplyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)
	if !d.Changed() {
		return
	}
	a.mu.Lock()
	a.cfg = updated
	watching := a.taxWatcher != nil
	a.mu.Unlock()

	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	cur := a.Snapshot()
	switch {
	case d.TaxonomyChanged || d.WorkersChanged:
		snap, err := buildSnapshot(updated.Highlight)
		if err != nil {
			slog.Error("keeping previous highlighter", "err", err)
			break
		}
		a.snap.Store(snap)
	case d.ThresholdChanged:
		a.snap.Store(&server.Snapshot{
			Highlighter: cur.Highlighter,
			Threshold:   highlight.ClampThreshold(d.NewThreshold),
		})
		slog.Info("default threshold changed", "threshold", d.NewThreshold)
	}

	if d.TaxonomyChanged && watching {
		if err := a.WatchTaxonomy(); err != nil {
			slog.Error("taxonomy watcher not restarted", "err", err)
		}
	}

	for _, setting := range d.RestartRequired {
		slog.Warn("config change takes effect after restart", "setting", setting)
	}
}

// Reload re-reads the taxonomy file of the current config. Use it when the
// file's content changed but its path did not.
func (a *App) Reload() error {
	snap, err := buildSnapshot(a.Config().Highlight)
	if err != nil {
		return fmt.Errorf("app: reload taxonomy: %w", err)
	}
	a.snap.Store(snap)
	return nil
}

// WatchTaxonomy follows the configured taxonomy file and swaps in a new
// highlighter whenever its content changes. Calling it again moves the
// watch to the file currently configured; with no taxonomy file configured
// it only stops a previous watch. The watcher is stopped by Shutdown.
func (a *App) WatchTaxonomy() error {
	a.mu.Lock()
	prev := a.taxWatcher
	a.taxWatcher = nil
	path := a.cfg.Highlight.TaxonomyFile
	a.mu.Unlock()

	// Stop outside mu: a reload in flight calls Config.
	stopTaxonomyWatcher(prev)
	if path == "" {
		return nil
	}
	w, err := taxonomy.Watch(path, a.applyTaxonomy)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	a.mu.Lock()
	prev, a.taxWatcher = a.taxWatcher, w
	a.mu.Unlock()
	stopTaxonomyWatcher(prev)

	slog.Info("watching taxonomy file", "path", w.Path())
	return nil
}

func stopTaxonomyWatcher(w *taxonomy.FileWatcher) {
	if w == nil {
		return
	}
	if err := w.Stop(); err != nil {
		slog.Warn("taxonomy watcher stop error", "err", err)
	}
}

// applyTaxonomy compiles tax with the current settings and makes it live.
func (a *App) applyTaxonomy(tax *taxonomy.Taxonomy) {
	snap, err := compileSnapshot(tax, a.Config().Highlight)
	if err != nil {
		slog.Error("keeping previous highlighter", "err", err)
		return
	}
	a.snap.Store(snap)
}

// Run serves HTTP on the configured address until ctx is cancelled or the
// listener fails. The caller should call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	srvCfg := a.Config().Server
	a.httpSrv = &http.Server{
		Addr:              srvCfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srvCfg.ListenAddr, "tls", srvCfg.TLS != nil)
		var err error
		if srvCfg.TLS != nil {
			err = a.httpSrv.ListenAndServeTLS(srvCfg.TLS.CertFile, srvCfg.TLS.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops the file watchers, drains the HTTP server and closes the
// transcription backends. It respects the context deadline: if ctx expires
// before all closers finish, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}
		a.mu.Lock()
		tw := a.taxWatcher
		a.taxWatcher = nil
		a.mu.Unlock()
		stopTaxonomyWatcher(tw)
		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
