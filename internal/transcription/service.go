// Package transcription turns uploaded media into text for the highlighter.
//
// A [Service] resolves the requested language, validates the upload, serves
// repeated uploads from an in-memory cache and otherwise hands the audio to a
// single [stt.Provider], typically a [resilience.STTFallback] chaining the
// configured backends. Failures are returned as typed errors from the stt
// package and are never turned into transcript text.
package transcription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/framelens/internal/observe"
	"github.com/MrWong99/framelens/pkg/provider/stt"
)

// Request is one upload to transcribe.
type Request struct {
	// Data is the complete media file.
	Data []byte

	// Filename is the client-supplied name; only its extension matters.
	Filename string

	// Language is an ISO code, a display name such as "German", "Auto" or
	// empty. Empty falls back to the configured defaults while "Auto" always
	// asks for detection. See [stt.ResolveLanguage].
	Language string
}

// Option configures a [Service].
type Option func(*Service)

// WithCache keeps up to size transcripts for ttl. A size below 1 disables
// caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size < 1 {
			s.cache = nil
			return
		}
		s.cache = expirable.NewLRU[string, stt.Transcript](size, nil, ttl)
	}
}

// WithMetrics sets the metrics the service records into. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultLanguage sets the language used when a request names none. An
// explicit "Auto" still requests detection. It accepts the same forms as
// [Request.Language].
func WithDefaultLanguage(lang string) Option {
	return func(s *Service) { s.defaultLang = lang }
}

// Service transcribes uploads. It is safe for concurrent use.
type Service struct {
	backend     stt.Provider
	cache       *expirable.LRU[string, stt.Transcript]
	metrics     *observe.Metrics
	defaultLang string
}

// New creates a [Service] on top of backend. A nil backend yields a service
// whose every call fails with [stt.ErrModelUnavailable].
func New(backend stt.Provider, opts ...Option) *Service {
	s := &Service{backend: backend}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Enabled reports whether a backend is configured.
func (s *Service) Enabled() bool { return s.backend != nil }

// Transcribe returns the transcript of req. Request problems fail with
// [stt.ErrEmptyAudio], [stt.ErrUnsupportedFormat] or [stt.ErrUnknownLanguage]
// before any backend is contacted.
func (s *Service) Transcribe(ctx context.Context, req Request) (tr stt.Transcript, err error) {
	ctx, span := observe.StartSpan(ctx, "transcription.Transcribe",
		trace.WithAttributes(
			attribute.String("upload.filename", req.Filename),
			attribute.Int("upload.bytes", len(req.Data)),
		))
	defer func() { observe.EndSpan(span, err) }()

	lang, err := s.language(req.Language)
	if err != nil {
		return stt.Transcript{}, err
	}
	audio := stt.Audio{Data: req.Data, Filename: req.Filename, Language: lang}
	if err := audio.Validate(); err != nil {
		return stt.Transcript{}, err
	}
	if s.backend == nil {
		return stt.Transcript{}, fmt.Errorf("%w: no transcription provider configured", stt.ErrModelUnavailable)
	}

	key := cacheKey(audio)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.RecordCacheLookup(ctx, true)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		s.metrics.RecordCacheLookup(ctx, false)
	}

	start := time.Now()
	tr, err = s.backend.Transcribe(ctx, audio)
	if err != nil {
		observe.Logger(ctx).Warn("transcription failed",
			"filename", req.Filename,
			"language", lang,
			"elapsed", time.Since(start),
			"err", err,
		)
		return stt.Transcript{}, err
	}
	if tr.Language == "" && lang != stt.AutoDetect {
		tr.Language = lang
	}
	if s.cache != nil {
		s.cache.Add(key, tr)
	}
	observe.Logger(ctx).Debug("transcription complete",
		"provider", tr.Provider,
		"chars", len(tr.Text),
		"elapsed", time.Since(start),
	)
	span.SetAttributes(attribute.String("stt.provider", tr.Provider))
	return tr, nil
}

// Ping checks the backend. It fails with [stt.ErrModelUnavailable] when no
// backend is configured.
func (s *Service) Ping(ctx context.Context) error {
	if s.backend == nil {
		return fmt.Errorf("%w: no transcription provider configured", stt.ErrModelUnavailable)
	}
	if p, ok := s.backend.(stt.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Languages returns the selectable languages, "Auto" first.
func (s *Service) Languages() []stt.Language { return stt.Languages() }

// Purge drops every cached transcript.
func (s *Service) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// language resolves the requested language. The default applies only when
// the request names none; an explicit "Auto" is kept.
func (s *Service) language(requested string) (string, error) {
	lang, err := stt.ResolveLanguage(requested)
	if err != nil {
		return "", err
	}
	if lang != "" || s.defaultLang == "" {
		return lang, nil
	}
	lang, err = stt.ResolveLanguage(s.defaultLang)
	if err != nil {
		return "", fmt.Errorf("transcription: default language: %w", err)
	}
	return lang, nil
}

// cacheKey identifies an upload by content, container and language.
func cacheKey(a stt.Audio) string {
	sum := sha256.Sum256(a.Data)
	return hex.EncodeToString(sum[:]) + "|" + a.Ext() + "|" + a.Language
}

// ErrorKind classifies err for metrics and logs.
func ErrorKind(err error) string {
	var te *stt.TranscriptionError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case stt.IsPermanent(err):
		return "request"
	case errors.Is(err, stt.ErrModelUnavailable):
		return "unavailable"
	case errors.As(err, &te):
		return "backend"
	}
	return "other"
}
