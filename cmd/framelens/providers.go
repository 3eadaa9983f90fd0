package main

import (
	"net/http"
	"time"

	"github.com/MrWong99/framelens/internal/config"
	"github.com/MrWong99/framelens/pkg/provider/stt"
	"github.com/MrWong99/framelens/pkg/provider/stt/deepgram"
	"github.com/MrWong99/framelens/pkg/provider/stt/openai"
	"github.com/MrWong99/framelens/pkg/provider/stt/whisper"
)

// registerBuiltinProviders registers every STT backend that ships with
// framelens. Per-call timeouts (ProviderEntry.Timeout) are applied by the app.
func registerBuiltinProviders(reg *config.Registry) {
	// whisper is a whisper.cpp server reached over HTTP.
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		if entry.Timeout > 0 {
			opts = append(opts, whisper.WithHTTPClient(&http.Client{Timeout: entry.Timeout + 5*time.Second}))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// whisper-native loads a ggml model in-process; Model is the file path.
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.Option("model_path")
		}
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		if n := entry.IntOption("threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if entry.Language != "" {
			opts = append(opts, openai.WithLanguage(entry.Language))
		}
		if entry.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(entry.Timeout))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if n := entry.IntOption("chunk_size"); n > 0 {
			opts = append(opts, deepgram.WithChunkSize(n))
		}
		return deepgram.New(entry.APIKey, opts...)
	})
}
