package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/salescoach/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantSub []string
	}{
		{
			name:    "no providers",
			yaml:    "server:\n  log_level: info\n",
			wantSub: []string{"at least one of gemini, deepseek, openai"},
		},
		{
			name:    "bad log level and format",
			yaml:    "server:\n  log_level: loud\n  log_format: xml\nproviders:\n  gemini: {}\n",
			wantSub: []string{"server.log_level", "server.log_format"},
		},
		{
			name:    "default not configured",
			yaml:    "providers:\n  default: openai\n  gemini: {}\n",
			wantSub: []string{`providers.default "openai" is not configured`},
		},
		{
			name:    "case study provider not configured",
			yaml:    "providers:\n  default: deepseek\n  deepseek:\n    api_key: k\n",
			wantSub: []string{`providers.case_study "gemini" is not configured`},
		},
		{
			name:    "openrouter needs key",
			yaml:    "providers:\n  gemini: {}\n  deepseek: {}\n  openai:\n    backend: openai\n",
			wantSub: []string{"providers.deepseek.api_key", "providers.openai.api_key", "SALESCOACH_DEEPSEEK_API_KEY"},
		},
		{
			name:    "custom backend needs model",
			yaml:    "providers:\n  gemini: {}\n  deepseek:\n    backend: custom\n",
			wantSub: []string{"providers.deepseek.model"},
		},
		{
			name:    "thresholds out of range",
			yaml:    "providers:\n  gemini: {}\nbudget:\n  thresholds: [0, 150]\n",
			wantSub: []string{"budget.thresholds[0]", "budget.thresholds[1]"},
		},
		{
			name:    "storage driver",
			yaml:    "providers:\n  gemini: {}\nstorage:\n  driver: sqlite\n",
			wantSub: []string{"storage.driver"},
		},
		{
			name:    "mongodb needs uri",
			yaml:    "providers:\n  gemini: {}\nstorage:\n  driver: mongodb\n",
			wantSub: []string{"storage.mongo_uri"},
		},
		{
			name:    "redis needs url",
			yaml:    "providers:\n  gemini: {}\nstorage:\n  driver: redis\n",
			wantSub: []string{"storage.redis_url"},
		},
		{
			name:    "postgres needs dsn",
			yaml:    "providers:\n  gemini: {}\nstorage:\n  driver: postgres\n",
			wantSub: []string{"storage.postgres_dsn"},
		},
		{
			name:    "tls incomplete",
			yaml:    "server:\n  tls:\n    cert_file: c.pem\nproviders:\n  gemini: {}\n",
			wantSub: []string{"server.tls"},
		},
		{
			name:    "sample ratio",
			yaml:    "server:\n  trace_sample_ratio: 2\nproviders:\n  gemini: {}\n",
			wantSub: []string{"trace_sample_ratio"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, sub := range tc.wantSub {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error %q does not mention %q", err, sub)
				}
			}
		})
	}
}

func TestValidate_GeminiKeyOptional(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("providers:\n  gemini: {}\n")); err != nil {
		t.Fatalf("gemini without key should validate (SDK reads its own env): %v", err)
	}
}

func TestValidate_FileDriverGetsDefaultPath(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  gemini: {}\nstorage:\n  driver: file\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Storage.Path != "salescoach.json" {
		t.Errorf("path = %q", cfg.Storage.Path)
	}
}
