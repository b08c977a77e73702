package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidBackends lists the backend names the default registry understands.
// Used by [Validate] to warn about unrecognised backends.
var ValidBackends = []string{BackendGemini, BackendOpenRouter, BackendOpenAI, BackendAnyLLM}

// keyedBackends cannot fall back to an SDK environment variable.
var keyedBackends = []string{BackendOpenRouter, BackendOpenAI}

// envPrefix prefixes every environment override.
const envPrefix = "SALESCOACH_"

// Defaults applied by [ApplyDefaults].
const (
	defaultListenAddr      = ":8080"
	defaultShutdownTimeout = 15 * time.Second
	defaultMonthlyTokens   = 500_000
	defaultHistoryLimit    = 10
	defaultFilePath        = "salescoach.json"
	defaultOpenRouterTitle = "Analizador de Ventas IA"
)

var defaultThresholds = []int{50, 75, 90, 100}

// defaultModels maps backend and provider identifier to the model used when
// the entry names none.
var defaultModels = map[string]map[string]string{
	BackendGemini: {
		ProviderGemini: "gemini-2.5-flash",
	},
	BackendOpenRouter: {
		ProviderDeepSeek: "deepseek/deepseek-chat",
		ProviderOpenAI:   "openai/gpt-4o-mini",
		ProviderGemini:   "google/gemini-2.5-flash",
	},
	BackendOpenAI: {
		ProviderOpenAI: "gpt-4o-mini",
	},
	BackendAnyLLM: {
		ProviderDeepSeek: "deepseek-chat",
		ProviderOpenAI:   "gpt-4o-mini",
		ProviderGemini:   "gemini-2.5-flash",
	},
}

// Load reads the YAML configuration file at path, applies SALESCOACH_*
// environment overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := Parse(bytes.NewReader(data), os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	return Parse(r, nil)
}

// Parse decodes r, applies overrides from lookupEnv (which may be nil),
// applies defaults and validates.
func Parse(r io.Reader, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if lookupEnv != nil {
		ApplyEnv(cfg, lookupEnv)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and addresses from the environment:
//
//	SALESCOACH_GEMINI_API_KEY, SALESCOACH_DEEPSEEK_API_KEY,
//	SALESCOACH_OPENAI_API_KEY, SALESCOACH_POSTGRES_DSN,
//	SALESCOACH_REDIS_URL, SALESCOACH_MONGO_URI, SALESCOACH_LISTEN_ADDR
//
// An API key for a provider without a providers entry configures that
// provider with defaults.
func ApplyEnv(cfg *Config, lookupEnv func(string) (string, bool)) {
	for id, slot := range providerSlots(&cfg.Providers) {
		key, ok := lookupEnv(envPrefix + strings.ToUpper(id) + "_API_KEY")
		if !ok || key == "" {
			continue
		}
		if *slot == nil {
			*slot = &ProviderEntry{}
		}
		(*slot).APIKey = key
	}
	if dsn, ok := lookupEnv(envPrefix + "POSTGRES_DSN"); ok && dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if url, ok := lookupEnv(envPrefix + "REDIS_URL"); ok && url != "" {
		cfg.Storage.RedisURL = url
	}
	if uri, ok := lookupEnv(envPrefix + "MONGO_URI"); ok && uri != "" {
		cfg.Storage.MongoURI = uri
	}
	if addr, ok := lookupEnv(envPrefix + "LISTEN_ADDR"); ok && addr != "" {
		cfg.Server.ListenAddr = addr
	}
}

// ApplyDefaults fills zero values with their documented defaults.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = defaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = LogFormatText
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = defaultShutdownTimeout
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{"*"}
	}

	p := &cfg.Providers
	if p.Default == "" {
		p.Default = ProviderGemini
	}
	if p.CaseStudy == "" {
		p.CaseStudy = ProviderGemini
	}
	for id, slot := range providerSlots(p) {
		if e := *slot; e != nil {
			applyEntryDefaults(id, e)
		}
	}

	b := &cfg.Budget
	if b.MonthlyTokens <= 0 {
		b.MonthlyTokens = defaultMonthlyTokens
	}
	if len(b.Thresholds) == 0 {
		b.Thresholds = slices.Clone(defaultThresholds)
	}

	st := &cfg.Storage
	if st.Driver == "" {
		st.Driver = StorageMemory
	}
	if st.Driver == StorageFile && st.Path == "" {
		st.Path = defaultFilePath
	}
	if st.HistoryLimit <= 0 {
		st.HistoryLimit = defaultHistoryLimit
	}

	r := &cfg.Resilience
	if r.MaxFailures <= 0 {
		r.MaxFailures = 5
	}
	if r.ResetTimeout <= 0 {
		r.ResetTimeout = 30 * time.Second
	}
	if r.HalfOpenMax <= 0 {
		r.HalfOpenMax = 1
	}
}

func applyEntryDefaults(id string, e *ProviderEntry) {
	e.Name = id
	if e.Backend == "" {
		if id == ProviderGemini {
			e.Backend = BackendGemini
		} else {
			e.Backend = BackendOpenRouter
		}
	}
	if e.Backend == BackendAnyLLM && e.AnyLLMBackend == "" {
		e.AnyLLMBackend = id
	}
	if e.Model == "" {
		e.Model = defaultModels[e.Backend][id]
	}
	if e.Timeout <= 0 {
		e.Timeout = DefaultTimeout
	}
	if e.Backend == BackendOpenRouter && e.Title == "" {
		e.Title = defaultOpenRouterTitle
	}
}

// providerSlots returns addressable provider entries keyed by identifier.
func providerSlots(p *ProvidersConfig) map[string]**ProviderEntry {
	return map[string]**ProviderEntry{
		ProviderGemini:   &p.Gemini,
		ProviderDeepSeek: &p.DeepSeek,
		ProviderOpenAI:   &p.OpenAI,
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if f := cfg.Server.LogFormat; f != "" && f != LogFormatText && f != LogFormatJSON {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", f))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	entries := cfg.Providers.Entries()
	if len(entries) == 0 {
		errs = append(errs, errors.New("providers: at least one of gemini, deepseek, openai must be configured"))
	}
	for _, sel := range []struct{ field, id string }{
		{"providers.default", cfg.Providers.Default},
		{"providers.case_study", cfg.Providers.CaseStudy},
	} {
		if sel.id == "" {
			continue
		}
		if _, ok := entries[sel.id]; !ok && len(entries) > 0 {
			errs = append(errs, fmt.Errorf("%s %q is not configured", sel.field, sel.id))
		}
	}
	for _, id := range []string{ProviderGemini, ProviderDeepSeek, ProviderOpenAI} {
		e, ok := entries[id]
		if !ok {
			continue
		}
		prefix := "providers." + id
		validateBackendName(prefix, e.Backend)
		if slices.Contains(keyedBackends, e.Backend) && e.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for backend %q (or set %s%s_API_KEY)",
				prefix, e.Backend, envPrefix, strings.ToUpper(id)))
		}
		if e.Model == "" && e.Backend != BackendGemini {
			errs = append(errs, fmt.Errorf("%s.model is required for backend %q", prefix, e.Backend))
		}
		if e.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout must not be negative", prefix))
		}
	}

	// Budget
	if cfg.Budget.MonthlyTokens < 0 {
		errs = append(errs, errors.New("budget.monthly_tokens must not be negative"))
	}
	for i, th := range cfg.Budget.Thresholds {
		if th <= 0 || th > 100 {
			errs = append(errs, fmt.Errorf("budget.thresholds[%d] %d is out of range (0, 100]", i, th))
		}
	}

	// Storage
	switch d := cfg.Storage.Driver; {
	case d != "" && !d.IsValid():
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: memory, file, postgres, redis, mongodb", d))
	case d == StorageFile && cfg.Storage.Path == "":
		errs = append(errs, errors.New("storage.path is required when driver is file"))
	case d == StoragePostgres && cfg.Storage.PostgresDSN == "":
		errs = append(errs, errors.New("storage.postgres_dsn is required when driver is postgres"))
	case d == StorageRedis && cfg.Storage.RedisURL == "":
		errs = append(errs, errors.New("storage.redis_url is required when driver is redis"))
	case d == StorageMongo && cfg.Storage.MongoURI == "":
		errs = append(errs, errors.New("storage.mongo_uri is required when driver is mongodb"))
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is not in [ValidBackends]. A
// custom backend may still have been registered with the [Registry].
func validateBackendName(field, name string) {
	if name == "" || slices.Contains(ValidBackends, name) {
		return
	}
	slog.Warn("unknown llm backend, may be a typo or a custom registration",
		"field", field+".backend",
		"name", name,
		"known", ValidBackends,
	)
}
