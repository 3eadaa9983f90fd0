// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider turns one uploaded media file into plain text. The upload is
// an explicit [Audio] value (raw bytes, the original filename used to infer the
// container format, and an optional language code) and the result is a
// [Transcript]. Providers report failures as errors and never as text: callers
// can rely on a nil error meaning Transcript.Text is genuine speech content.
//
// Failures are classified with the sentinel errors in this package so that
// hosts can map them to user-facing conditions:
//
//   - [ErrEmptyAudio], [ErrUnsupportedFormat] and [ErrUnknownLanguage] are
//     problems with the request itself and retrying on another backend is
//     pointless (see [IsPermanent]).
//   - [ErrModelUnavailable] means the backend could not be initialised.
//   - Everything else is wrapped in a [*TranscriptionError] naming the backend.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts audio into text. The provider may block for as long
	// as recognition takes; it must return early with ctx.Err() wrapped when
	// ctx is cancelled.
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)
}

// Pinger is implemented by providers that can cheaply check that their backend
// is reachable. Readiness probes use it when available.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DefaultExtension is assumed for uploads whose filename carries no extension.
const DefaultExtension = ".mp3"

// SupportedExtensions lists the media containers accepted for transcription.
var SupportedExtensions = []string{".mp3", ".mp4", ".m4a", ".wav", ".webm"}

// contentTypes maps supported extensions to their MIME types.
var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".webm": "audio/webm",
}

// Audio is one upload to transcribe.
type Audio struct {
	// Data holds the complete encoded media file.
	Data []byte

	// Filename is the client-supplied name of the upload. Only its extension
	// is significant.
	Filename string

	// Language is an ISO 639-1 code (e.g. "en") or [AutoDetect]. Empty
	// leaves the choice to the provider's configured default, which is
	// auto-detection unless one is set. Use [ResolveLanguage] to convert
	// user input.
	Language string
}

// LanguageOr returns the language a provider should request: a.Language, or
// fallback when it is empty. [AutoDetect] yields "", so an explicit request
// for detection beats any fallback.
func (a Audio) LanguageOr(fallback string) string {
	lang := a.Language
	if lang == "" {
		lang = fallback
	}
	if lang == AutoDetect {
		return ""
	}
	return lang
}

// Ext returns the lower-cased file extension (with leading dot), or
// [DefaultExtension] when the filename has none.
func (a Audio) Ext() string {
	ext := strings.ToLower(filepath.Ext(a.Filename))
	if ext == "" || ext == "." {
		return DefaultExtension
	}
	return ext
}

// Name returns a filename suitable for forwarding to a backend: the base of
// Filename, or "audio" plus [Audio.Ext] when Filename is empty or lacks an
// extension.
func (a Audio) Name() string {
	base := filepath.Base(a.Filename)
	if base == "." || base == "/" || base == "" {
		return "audio" + a.Ext()
	}
	if filepath.Ext(base) == "" {
		return base + a.Ext()
	}
	return base
}

// ContentType returns the MIME type implied by the extension.
func (a Audio) ContentType() string {
	if ct, ok := contentTypes[a.Ext()]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Validate checks that the upload is non-empty and in a supported container.
func (a Audio) Validate() error {
	if len(a.Data) == 0 {
		return ErrEmptyAudio
	}
	if !slices.Contains(SupportedExtensions, a.Ext()) {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, a.Ext(), strings.Join(SupportedExtensions, ", "))
	}
	return nil
}
