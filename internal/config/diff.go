package config

import "slices"

// ConfigDiff describes what changed between two configs. Log level and
// budget changes can be applied to a running server; everything listed in
// RestartRequired only takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	BudgetChanged    bool
	NewMonthlyTokens int

	// RestartRequired names the changed sections that cannot be applied live.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.BudgetChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Budget.MonthlyTokens != new.Budget.MonthlyTokens {
		d.BudgetChanged = true
		d.NewMonthlyTokens = new.Budget.MonthlyTokens
	}

	if !slices.Equal(old.Budget.Thresholds, new.Budget.Thresholds) {
		d.RestartRequired = append(d.RestartRequired, "budget.thresholds")
	}
	os, ns := old.Server, new.Server
	if os.ListenAddr != ns.ListenAddr || os.MetricsAddr != ns.MetricsAddr ||
		os.LogFormat != ns.LogFormat || os.TraceSampleRatio != ns.TraceSampleRatio ||
		!equalTLS(os.TLS, ns.TLS) || !slices.Equal(os.AllowedOrigins, ns.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !equalProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	return d
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalProviders(a, b ProvidersConfig) bool {
	if a.Default != b.Default || a.CaseStudy != b.CaseStudy {
		return false
	}
	ea, eb := a.Entries(), b.Entries()
	if len(ea) != len(eb) {
		return false
	}
	for id, e := range ea {
		if other, ok := eb[id]; !ok || other != e {
			return false
		}
	}
	return true
}
