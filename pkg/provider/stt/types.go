package stt

import (
	"errors"
	"fmt"
	"time"
)

// Transcript is the result of transcribing one upload.
type Transcript struct {
	// Text is the full transcribed speech content, whitespace-trimmed.
	Text string `json:"text"`

	// Language is the ISO code of the recognised language when the backend
	// reports one, otherwise the requested language.
	Language string `json:"language,omitempty"`

	// Duration is the length of the decoded audio when known.
	Duration time.Duration `json:"duration,omitempty"`

	// Segments holds per-utterance timing when the backend provides it.
	Segments []Segment `json:"segments,omitempty"`

	// Provider names the backend that produced the transcript.
	Provider string `json:"provider,omitempty"`
}

// Segment is one timed piece of a transcript.
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

var (
	// ErrEmptyAudio is returned for uploads without any data.
	ErrEmptyAudio = errors.New("stt: empty audio")

	// ErrUnsupportedFormat is returned for containers the backend cannot decode.
	ErrUnsupportedFormat = errors.New("stt: unsupported audio format")

	// ErrUnknownLanguage is returned when a language hint cannot be resolved.
	ErrUnknownLanguage = errors.New("stt: unknown language")

	// ErrModelUnavailable is returned when the speech model could not be
	// loaded or the backend is not configured.
	ErrModelUnavailable = errors.New("stt: speech model unavailable")
)

// TranscriptionError reports a backend failure while transcribing.
type TranscriptionError struct {
	// Provider names the failing backend.
	Provider string

	// StatusCode is the HTTP status returned by remote backends, if any.
	StatusCode int

	Err error
}

func (e *TranscriptionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stt: %s: transcription failed (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stt: %s: transcription failed: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Failed wraps err in a [*TranscriptionError] for provider unless it already
// is one or is a classified request error.
func Failed(provider string, err error) error {
	if err == nil {
		return nil
	}
	var te *TranscriptionError
	if errors.As(err, &te) || IsPermanent(err) || errors.Is(err, ErrModelUnavailable) {
		return err
	}
	return &TranscriptionError{Provider: provider, Err: err}
}

// IsPermanent reports whether err is caused by the request itself, so that
// retrying it against another backend cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrEmptyAudio) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrUnknownLanguage)
}
