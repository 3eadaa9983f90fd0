package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the STT provider names that ship with framelens.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"whisper", "whisper-native", "openai", "deepgram"}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load env file %q: %w", path, err)
	}
	slog.Debug("loaded environment file", "path", path)
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. ${VAR} and $VAR references are expanded from the environment
// before decoding so secrets can stay out of the file.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %v must not be negative", cfg.Server.RequestTimeout))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Highlight
	if t := cfg.Highlight.DefaultThreshold; t != 0 && (t < 50 || t > 100) {
		errs = append(errs, fmt.Errorf("highlight.default_threshold %d is out of range [50, 100]", t))
	}
	if cfg.Highlight.Workers < 0 {
		errs = append(errs, fmt.Errorf("highlight.workers %d must not be negative", cfg.Highlight.Workers))
	}

	// Transcription
	if cfg.Transcription.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("transcription.cache_ttl %v must not be negative", cfg.Transcription.CacheTTL))
	}
	seen := make(map[string]int, len(cfg.Transcription.Providers))
	for i, p := range cfg.Transcription.Providers {
		prefix := fmt.Sprintf("transcription.providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		key := p.Name + "|" + p.BaseURL + "|" + p.Model
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates transcription.providers[%d]", prefix, prev))
		}
		seen[key] = i
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %v must not be negative", prefix, p.Timeout))
		}
		validateProviderName(p.Name)
	}
	if len(cfg.Transcription.Providers) == 0 {
		slog.Warn("no transcription provider configured; /v1/transcribe will report the model as unavailable")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not in [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown transcription provider name, may be a typo or a third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
