// Package server exposes the highlighter and the transcription service over
// HTTP.
//
// Routes:
//
//	POST /v1/highlight    JSON {text, threshold?}           -> highlighted text
//	POST /v1/transcribe   multipart file, language?, threshold?, format?
//	GET  /v1/legend       category key
//	GET  /v1/languages    selectable transcription languages
//
// Errors are JSON objects of the form {"error": "..."} with a status code
// derived from the error class (see [statusOf]).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MrWong99/framelens/internal/observe"
	"github.com/MrWong99/framelens/internal/transcription"
	"github.com/MrWong99/framelens/pkg/highlight"
	"github.com/MrWong99/framelens/pkg/provider/stt"
)

// Snapshot is the highlighting state used for one request. The host swaps
// whole snapshots when the configuration changes, so a request never sees a
// highlighter from one reload and a threshold from another.
type Snapshot struct {
	Highlighter *highlight.Highlighter

	// Threshold is applied when a request does not carry its own.
	Threshold int
}

// Source returns the current [Snapshot].
type Source interface {
	Snapshot() *Snapshot
}

// SourceFunc adapts a function to [Source].
type SourceFunc func() *Snapshot

// Snapshot calls f.
func (f SourceFunc) Snapshot() *Snapshot { return f() }

// Transcriber converts uploads into transcripts.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcription.Request) (stt.Transcript, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics recorder. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMaxUploadBytes caps request bodies. Values below 1 keep the default.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithRequestTimeout bounds the handling of each API request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithRoutes lets register add extra routes (for example health probes or
// /metrics) to the server's mux.
func WithRoutes(register func(*http.ServeMux)) Option {
	return func(s *Server) { s.extra = append(s.extra, register) }
}

// Server serves the framelens API.
type Server struct {
	source      Source
	transcriber Transcriber
	metrics     *observe.Metrics
	maxUpload   int64
	timeout     time.Duration
	extra       []func(*http.ServeMux)
}

// defaultMaxUpload is used when no limit is configured.
const defaultMaxUpload = 100 << 20

// New creates a [Server]. transcriber may be nil, in which case
// /v1/transcribe reports the speech model as unavailable.
func New(source Source, transcriber Transcriber, opts ...Option) *Server {
	s := &Server{
		source:      source,
		transcriber: transcriber,
		maxUpload:   defaultMaxUpload,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed API wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/highlight", s.limit(http.HandlerFunc(s.handleHighlight)))
	mux.Handle("POST /v1/transcribe", s.limit(http.HandlerFunc(s.handleTranscribe)))
	mux.HandleFunc("GET /v1/legend", s.handleLegend)
	mux.HandleFunc("GET /v1/languages", s.handleLanguages)
	for _, register := range s.extra {
		register(mux)
	}
	return observe.Middleware(s.metrics)(mux)
}

// limit applies the body size cap and the request timeout.
func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		if s.timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
