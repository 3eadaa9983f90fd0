// Package config provides the configuration schema, loader, watcher and
// transcription provider registry for the framelens server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the framelens server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel converts l to the matching [slog.Level]. Unknown values map to
// [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr     = ":8080"
	DefaultRequestTimeout = 2 * time.Minute
	DefaultMaxUploadBytes = 100 << 20
	DefaultThreshold      = 80
	DefaultCacheSize      = 128
	DefaultCacheTTL       = time.Hour
	DefaultServiceName    = "framelens"
)

// Config is the root configuration structure for framelens.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Highlight     HighlightConfig     `yaml:"highlight"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, sends logs to a size-rotated file instead of stderr.
	LogFile string `yaml:"log_file"`

	// RequestTimeout bounds every API call, transcription included.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxUploadBytes caps the size of a media upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// HighlightConfig configures the phrase highlighter.
type HighlightConfig struct {
	// TaxonomyFile is a YAML taxonomy. Empty uses the built-in taxonomy.
	// Hot-reloadable: the config watcher picks up a new path and the
	// taxonomy watcher follows edits to the file itself.
	TaxonomyFile string `yaml:"taxonomy_file"`

	// DefaultThreshold is used when a request carries no threshold.
	// Must lie in [50, 100]. Hot-reloadable.
	DefaultThreshold int `yaml:"default_threshold"`

	// Workers bounds the per-phrase scan parallelism. Zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// TranscriptionConfig configures speech-to-text.
type TranscriptionConfig struct {
	// Providers lists STT backends in preference order. The first entry is
	// the primary, the rest are fallbacks. Empty disables transcription.
	Providers []ProviderEntry `yaml:"providers"`

	// CacheSize is the number of transcripts kept in memory. Zero uses
	// [DefaultCacheSize]; a negative value disables the cache.
	CacheSize int `yaml:"cache_size"`

	// CacheTTL bounds how long a cached transcript stays valid.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CircuitBreaker tunes the per-backend breaker.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig mirrors the tunables of the resilience breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProviderEntry is the configuration block of one STT backend.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Required for
	// the whisper-server backend.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1",
	// "nova-3") or, for whisper-native, the model file path.
	Model string `yaml:"model"`

	// Language is the fallback language when an upload carries none.
	Language string `yaml:"language"`

	// Timeout bounds a single call to this backend. Zero means no extra
	// limit beyond the request timeout.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name"`

	// DisableMetrics turns off the /metrics endpoint.
	DisableMetrics bool `yaml:"disable_metrics"`
}

// ApplyDefaults fills zero-valued fields of cfg with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Highlight.DefaultThreshold == 0 {
		cfg.Highlight.DefaultThreshold = DefaultThreshold
	}
	if cfg.Transcription.CacheSize == 0 {
		cfg.Transcription.CacheSize = DefaultCacheSize
	}
	if cfg.Transcription.CacheTTL == 0 {
		cfg.Transcription.CacheTTL = DefaultCacheTTL
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Default returns a configuration with every default applied and no
// transcription backend.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Option returns the string value stored under key in the entry's Options,
// or "" when the key is absent or not a string.
func (e ProviderEntry) Option(key string) string {
	if e.Options == nil {
		return ""
	}
	s, _ := e.Options[key].(string)
	return s
}

// IntOption returns the integer value stored under key, or 0.
func (e ProviderEntry) IntOption(key string) int {
	if e.Options == nil {
		return 0
	}
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
