// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Uploaded media is streamed to Deepgram in its container format (mp3, wav,
// webm, mp4); Deepgram sniffs the encoding itself. Once the whole file has
// been sent the provider asks Deepgram to flush with a CloseStream message and
// joins every final result into a single transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/framelens/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultChunkSize = 32 * 1024
	providerName     = "deepgram"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code used when an upload carries
// none (e.g., "en", "de-DE"). Without it Deepgram detects the language.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the WebSocket endpoint. Mostly useful for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithChunkSize sets how many bytes are sent per WebSocket frame.
func WithChunkSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey    string
	model     string
	language  string
	endpoint  string
	chunkSize int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:    apiKey,
		model:     defaultModel,
		endpoint:  deepgramEndpoint,
		chunkSize: defaultChunkSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the upload to Deepgram and returns the joined final
// results.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if err := audio.Validate(); err != nil {
		return stt.Transcript{}, err
	}
	lang := audio.LanguageOr(p.language)

	wsURL, err := p.buildURL(lang)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, dialError(resp, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	var (
		segments []stt.Segment
		detected string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.send(gctx, conn, audio.Data)
	})
	g.Go(func() error {
		var err error
		segments, detected, err = collect(gctx, conn)
		return err
	})
	if err := g.Wait(); err != nil {
		return stt.Transcript{}, stt.Failed(providerName, err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "transcription complete")

	texts := make([]string, 0, len(segments))
	var duration time.Duration
	for _, s := range segments {
		texts = append(texts, s.Text)
		duration = max(duration, s.End)
	}
	if detected == "" {
		detected = lang
	}
	return stt.Transcript{
		Text:     strings.Join(texts, " "),
		Language: detected,
		Duration: duration,
		Segments: segments,
		Provider: providerName,
	}, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given
// language. An empty language enables detection.
func (p *Provider) buildURL(lang string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if lang != "" {
		q.Set("language", lang)
	} else {
		q.Set("detect_language", "true")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// send writes data in chunks and then asks Deepgram to flush.
func (p *Provider) send(ctx context.Context, conn *websocket.Conn, data []byte) error {
	for len(data) > 0 {
		n := min(p.chunkSize, len(data))
		if err := conn.Write(ctx, websocket.MessageBinary, data[:n]); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		data = data[n:]
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// collect reads results until Deepgram reports the stream metadata or closes
// the connection normally.
func collect(ctx context.Context, conn *websocket.Conn) ([]stt.Segment, string, error) {
	var (
		segments []stt.Segment
		detected string
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return segments, detected, nil
			}
			return nil, "", fmt.Errorf("read: %w", err)
		}

		resp, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		switch resp.Type {
		case "Metadata":
			return segments, detected, nil
		case "Error":
			return nil, "", fmt.Errorf("server error: %s", resp.Description)
		case "Results":
			seg, lang, ok := resp.final()
			if !ok {
				continue
			}
			segments = append(segments, seg)
			if detected == "" {
				detected = lang
			}
		}
	}
}

// deepgramResponse is the JSON structure returned by Deepgram.
type deepgramResponse struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	Channel     struct {
		DetectedLanguage string `json:"detected_language"`
		Alternatives     []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Languages  []string `json:"languages"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// final returns the segment carried by a final, non-empty Results message.
func (r deepgramResponse) final() (stt.Segment, string, bool) {
	if !r.IsFinal || len(r.Channel.Alternatives) == 0 {
		return stt.Segment{}, "", false
	}
	alt := r.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return stt.Segment{}, "", false
	}
	lang := r.Channel.DetectedLanguage
	if lang == "" && len(alt.Languages) > 0 {
		lang = alt.Languages[0]
	}
	return stt.Segment{
		Text:  text,
		Start: seconds(r.Start),
		End:   seconds(r.Start + r.Duration),
	}, lang, true
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns false if the message should be ignored.
func parseDeepgramResponse(data []byte) (deepgramResponse, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return deepgramResponse{}, false
	}
	return resp, resp.Type != ""
}

// dialError keeps the HTTP status of a rejected handshake.
func dialError(resp *http.Response, err error) error {
	if resp == nil {
		return stt.Failed(providerName, fmt.Errorf("dial: %w", err))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("deepgram: dial: %w (HTTP %d)", stt.ErrModelUnavailable, resp.StatusCode)
	}
	return &stt.TranscriptionError{Provider: providerName, StatusCode: resp.StatusCode, Err: err}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
