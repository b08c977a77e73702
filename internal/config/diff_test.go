package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/salescoach/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{Default: "gemini", CaseStudy: "gemini", Gemini: &config.ProviderEntry{Model: "gemini-2.5-flash"}},
		Budget:    config.BudgetConfig{MonthlyTokens: 500000, Thresholds: []int{50, 75, 90, 100}},
		Storage:   config.StorageConfig{Driver: config.StorageMemory, HistoryLimit: 10},
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		mutate      func(*config.Config)
		wantLog     bool
		wantBudget  bool
		wantRestart []string
	}{
		{name: "no changes", mutate: func(*config.Config) {}},
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLog: true,
		},
		{
			name:       "monthly budget",
			mutate:     func(c *config.Config) { c.Budget.MonthlyTokens = 1_000_000 },
			wantBudget: true,
		},
		{
			name:        "thresholds",
			mutate:      func(c *config.Config) { c.Budget.Thresholds = []int{80, 100} },
			wantRestart: []string{"budget.thresholds"},
		},
		{
			name:        "listen addr",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9090" },
			wantRestart: []string{"server"},
		},
		{
			name:        "provider model",
			mutate:      func(c *config.Config) { c.Providers.Gemini = &config.ProviderEntry{Model: "gemini-2.5-pro"} },
			wantRestart: []string{"providers"},
		},
		{
			name: "provider added",
			mutate: func(c *config.Config) {
				c.Providers.DeepSeek = &config.ProviderEntry{APIKey: "k"}
			},
			wantRestart: []string{"providers"},
		},
		{
			name: "storage and resilience",
			mutate: func(c *config.Config) {
				c.Storage.Driver = config.StorageFile
				c.Resilience.MaxFailures = 2
			},
			wantRestart: []string{"storage", "resilience"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tc.mutate(new)

			d := config.Diff(old, new)
			if d.LogLevelChanged != tc.wantLog {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tc.wantLog)
			}
			if d.BudgetChanged != tc.wantBudget {
				t.Errorf("BudgetChanged = %v, want %v", d.BudgetChanged, tc.wantBudget)
			}
			if !slices.Equal(d.RestartRequired, tc.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantRestart)
			}
			wantEmpty := !tc.wantLog && !tc.wantBudget && len(tc.wantRestart) == 0
			if d.Empty() != wantEmpty {
				t.Errorf("Empty = %v, want %v", d.Empty(), wantEmpty)
			}
		})
	}
}

func TestDiff_NewValues(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogWarn
	new.Budget.MonthlyTokens = 42

	d := config.Diff(old, new)
	if d.NewLogLevel != config.LogWarn {
		t.Errorf("NewLogLevel = %q", d.NewLogLevel)
	}
	if d.NewMonthlyTokens != 42 {
		t.Errorf("NewMonthlyTokens = %d", d.NewMonthlyTokens)
	}
}
