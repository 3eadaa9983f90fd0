// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/framelens/pkg/provider/stt"
)

const nativeProviderName = "whisper-native"

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// construction and shared by all calls; inference is serialised because a
// single transcription already saturates the available cores.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint

	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the fallback language code used when an upload
// carries none. Defaults to auto-detection.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads sets the number of CPU threads whisper.cpp may use. Zero
// keeps the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. A missing or unreadable model yields an error wrapping
// [stt.ErrModelUnavailable]. The caller must call Close when the provider is
// no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: modelPath must not be empty: %w", stt.ErrModelUnavailable)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w (%v)", modelPath, stt.ErrModelUnavailable, err)
	}

	p := &NativeProvider{model: model}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Transcribe decodes audio to 16 kHz mono and runs it through the model.
func (p *NativeProvider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if err := audio.Validate(); err != nil {
		return stt.Transcript{}, err
	}
	samples, err := decodeAudio(audio)
	if err != nil {
		return stt.Transcript{}, err
	}
	if len(samples) == 0 {
		return stt.Transcript{}, stt.Failed(nativeProviderName, errNoSamples)
	}

	lang := audio.LanguageOr(p.language)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	if p.model == nil {
		return stt.Transcript{}, fmt.Errorf("whisper: provider closed: %w", stt.ErrModelUnavailable)
	}

	start := time.Now()
	segments, detected, err := p.infer(ctx, samples, lang)
	if err != nil {
		return stt.Transcript{}, stt.Failed(nativeProviderName, err)
	}

	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		texts = append(texts, s.Text)
	}
	slog.Debug("whisper native transcription finished",
		"samples", len(samples),
		"segments", len(segments),
		"language", detected,
		"elapsed", time.Since(start),
	)
	return stt.Transcript{
		Text:     strings.Join(texts, " "),
		Language: detected,
		Duration: samplesDuration(len(samples)),
		Segments: segments,
		Provider: nativeProviderName,
	}, nil
}

// infer runs the model over samples and collects the non-empty segments.
// Must be called with p.mu held.
func (p *NativeProvider) infer(ctx context.Context, samples []float32, lang string) ([]stt.Segment, string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, "", fmt.Errorf("create context: %w", err)
	}

	if lang == "" {
		lang = autoLanguage
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, "", fmt.Errorf("set language %q: %w", lang, err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	// The encoder callback lets a cancelled request stop before the expensive
	// encoder pass starts.
	encoderBegin := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, encoderBegin, nil, nil); err != nil {
		return nil, "", fmt.Errorf("process: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var segments []stt.Segment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		segments = append(segments, stt.Segment{Text: text, Start: segment.Start, End: segment.End})
	}

	detected := wctx.DetectedLanguage()
	if detected == "" && lang != autoLanguage {
		detected = lang
	}
	return segments, detected, nil
}
