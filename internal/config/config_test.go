package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/framelens/internal/config"
	"github.com/MrWong99/framelens/pkg/provider/stt"
	sttmock "github.com/MrWong99/framelens/pkg/provider/stt/mock"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_file: /var/log/framelens.log
  request_timeout: 90s
  max_upload_bytes: 1048576
highlight:
  taxonomy_file: taxonomy.yaml
  default_threshold: 75
  workers: 4
transcription:
  cache_size: 16
  cache_ttl: 10m
  circuit_breaker:
    max_failures: 2
    reset_timeout: 1m
  providers:
    - name: whisper
      base_url: http://localhost:8081
      language: en
      timeout: 3m
    - name: openai
      api_key: sk-test
      model: whisper-1
      options:
        organization: org-1
        chunk_size: 4096
telemetry:
  service_name: framelens-test
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != 90*time.Second {
		t.Errorf("request_timeout = %v, want 90s", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxUploadBytes != 1<<20 {
		t.Errorf("max_upload_bytes = %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Highlight.DefaultThreshold != 75 || cfg.Highlight.Workers != 4 || cfg.Highlight.TaxonomyFile != "taxonomy.yaml" {
		t.Errorf("highlight = %+v", cfg.Highlight)
	}
	tr := cfg.Transcription
	if tr.CacheSize != 16 || tr.CacheTTL != 10*time.Minute {
		t.Errorf("cache = %d/%v", tr.CacheSize, tr.CacheTTL)
	}
	if tr.CircuitBreaker.MaxFailures != 2 || tr.CircuitBreaker.ResetTimeout != time.Minute {
		t.Errorf("circuit_breaker = %+v", tr.CircuitBreaker)
	}
	if len(tr.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(tr.Providers))
	}
	if p := tr.Providers[0]; p.Name != "whisper" || p.BaseURL != "http://localhost:8081" || p.Language != "en" || p.Timeout != 3*time.Minute {
		t.Errorf("providers[0] = %+v", p)
	}
	p := tr.Providers[1]
	if p.Option("organization") != "org-1" || p.IntOption("chunk_size") != 4096 {
		t.Errorf("providers[1] options = %v", p.Options)
	}
	if p.Option("missing") != "" || p.IntOption("organization") != 0 {
		t.Error("absent or mistyped options should yield zero values")
	}
	if cfg.Telemetry.ServiceName != "framelens-test" {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "server: {}\n"} {
		cfg, err := config.LoadFromReader(strings.NewReader(input))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): %v", input, err)
		}
		want := config.Default()
		if cfg.Server.ListenAddr != want.Server.ListenAddr ||
			cfg.Server.LogLevel != config.LogInfo ||
			cfg.Server.RequestTimeout != config.DefaultRequestTimeout ||
			cfg.Server.MaxUploadBytes != config.DefaultMaxUploadBytes ||
			cfg.Highlight.DefaultThreshold != 80 ||
			cfg.Transcription.CacheSize != config.DefaultCacheSize ||
			cfg.Transcription.CacheTTL != time.Hour ||
			cfg.Telemetry.ServiceName != "framelens" {
			t.Errorf("defaults for %q = %+v", input, cfg)
		}
	}
}

func TestLoadFromReader_ExpandsEnvironment(t *testing.T) {
	t.Setenv("FRAMELENS_TEST_KEY", "sk-from-env")
	t.Setenv("FRAMELENS_TEST_PORT", "7070")

	cfg, err := config.LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":${FRAMELENS_TEST_PORT}"
transcription:
  providers:
    - name: deepgram
      api_key: ${FRAMELENS_TEST_KEY}
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("listen_addr = %q, want :7070", cfg.Server.ListenAddr)
	}
	if got := cfg.Transcription.Providers[0].APIKey; got != "sk-from-env" {
		t.Errorf("api_key = %q, want sk-from-env", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen: \":80\"\n"))
	if err == nil || !strings.Contains(err.Error(), "decode yaml") {
		t.Fatalf("err = %v, want decode yaml error", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "framelens.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("FRAMELENS_DOTENV_A=from-file\nFRAMELENS_DOTENV_B=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRAMELENS_DOTENV_B", "from-process")
	t.Cleanup(func() { os.Unsetenv("FRAMELENS_DOTENV_A") })

	if err := config.LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("FRAMELENS_DOTENV_A"); got != "from-file" {
		t.Errorf("A = %q, want from-file", got)
	}
	if got := os.Getenv("FRAMELENS_DOTENV_B"); got != "from-process" {
		t.Errorf("B = %q, want the existing value to win", got)
	}

	if err := config.LoadEnvFile(filepath.Join(dir, "absent.env")); err != nil {
		t.Errorf("missing env file: %v, want nil", err)
	}
	if err := config.LoadEnvFile(""); err != nil {
		t.Errorf("empty path: %v, want nil", err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		got = e
		return &sttmock.Provider{}, nil
	})
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, errors.New("no model")
	})

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://x"}); err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if got.BaseURL != "http://x" {
		t.Errorf("factory got %+v", got)
	}

	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateSTT(config.ProviderEntry{Name: "broken"})
	if err == nil || !strings.Contains(err.Error(), "no model") {
		t.Errorf("err = %v, want factory error", err)
	}

	names := reg.STTNames()
	if len(names) != 2 || names[0] != "broken" || names[1] != "whisper" {
		t.Errorf("STTNames = %v", names)
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := tc.in.SlogLevel(); got != tc.want {
			t.Errorf("%q.SlogLevel() = %v, want %v", tc.in, got, tc.want)
		}
	}
}
