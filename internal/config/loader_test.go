package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/framelens/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: bananas\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name:    "negative timeout and upload",
			yaml:    "server:\n  request_timeout: -1s\n  max_upload_bytes: -5\n",
			wantErr: []string{"request_timeout", "max_upload_bytes"},
		},
		{
			name:    "half tls",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: []string{"server.tls"},
		},
		{
			name:    "threshold out of range",
			yaml:    "highlight:\n  default_threshold: 30\n",
			wantErr: []string{"highlight.default_threshold 30"},
		},
		{
			name:    "threshold above range",
			yaml:    "highlight:\n  default_threshold: 101\n",
			wantErr: []string{"out of range [50, 100]"},
		},
		{
			name:    "negative workers",
			yaml:    "highlight:\n  workers: -1\n",
			wantErr: []string{"highlight.workers"},
		},
		{
			name: "provider without name",
			yaml: "transcription:\n  providers:\n    - base_url: http://x\n",
			wantErr: []string{"transcription.providers[0].name is required"},
		},
		{
			name: "duplicate provider",
			yaml: `
transcription:
  providers:
    - name: whisper
      base_url: http://x
    - name: whisper
      base_url: http://x
`,
			wantErr: []string{"providers[1] duplicates transcription.providers[0]"},
		},
		{
			name: "several errors are joined",
			yaml: "server:\n  log_level: loud\nhighlight:\n  default_threshold: 10\n",
			wantErr: []string{"log_level", "default_threshold"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestValidate_AcceptsUnknownProviderName(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("transcription:\n  providers:\n    - name: my-custom-stt\n"))
	if err != nil {
		t.Fatalf("unknown provider names only warn, got: %v", err)
	}
	if cfg.Transcription.Providers[0].Name != "my-custom-stt" {
		t.Errorf("providers = %+v", cfg.Transcription.Providers)
	}
}

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("Validate(Default()): %v", err)
	}
}
