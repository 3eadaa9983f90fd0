// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST API
// at POST /inference accepting the media file as multipart/form-data. The
// upload is forwarded unchanged, so the server must be able to decode the
// container (start it with --convert to let it shell out to ffmpeg for mp4,
// m4a and webm).
//
// [NativeProvider] links whisper.cpp directly through its CGO bindings and
// decodes WAV and MP3 in-process.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("base"))
//	tr, err := p.Transcribe(ctx, stt.Audio{Data: data, Filename: "talk.mp3"})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrWong99/framelens/pkg/provider/stt"
)

const (
	providerName = "whisper"

	// autoLanguage asks whisper.cpp to detect the spoken language.
	autoLanguage = "auto"

	defaultTimeout = 5 * time.Minute

	// maxErrorBody bounds how much of an error response is kept for messages.
	maxErrorBody = 512
)

// Compile-time assertions.
var (
	_ stt.Provider = (*Provider)(nil)
	_ stt.Pinger   = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). By default the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the fallback language code used when an upload carries
// none. Defaults to auto-detection.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. The default client times out after
// five minutes, which covers long recordings on CPU-only servers.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads audio to the /inference endpoint and returns the text.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if err := audio.Validate(); err != nil {
		return stt.Transcript{}, err
	}
	lang := audio.LanguageOr(p.language)

	body, contentType, err := p.encodeForm(audio, lang)
	if err != nil {
		return stt.Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, stt.Failed(providerName, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return stt.Transcript{}, &stt.TranscriptionError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server said: %s", strings.TrimSpace(string(msg))),
		}
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Transcript{}, stt.Failed(providerName, fmt.Errorf("parse JSON response: %w", err))
	}
	if result.Error != "" {
		return stt.Transcript{}, stt.Failed(providerName, errors.New(result.Error))
	}

	detected := result.Language
	if detected == "" {
		detected = lang
	}
	return stt.Transcript{
		Text:     strings.TrimSpace(result.Text),
		Language: detected,
		Provider: providerName,
	}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeForm builds the multipart body: the media file plus hint fields.
func (p *Provider) encodeForm(audio stt.Audio, lang string) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(audio.Name())))
	h.Set("Content-Type", audio.ContentType())
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	if lang == "" {
		lang = autoLanguage
	}
	fields := [][2]string{
		{"language", lang},
		{"response_format", "json"},
		{"temperature", "0.0"},
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// Ping checks that the server answers HTTP at all.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/", nil)
	if err != nil {
		return fmt.Errorf("whisper: create ping request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper: ping: server returned HTTP %d", resp.StatusCode)
	}
	return nil
}
