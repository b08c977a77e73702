// Package config provides the configuration schema, loader, hot-reload
// watcher and LLM backend registry for the salescoach server.
package config

import "time"

// LogLevel controls log verbosity for the server.
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

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageDriver selects the persistence backend for history and token
// statistics.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StorageFile     StorageDriver = "file"
	StoragePostgres StorageDriver = "postgres"
	StorageRedis    StorageDriver = "redis"
	StorageMongo    StorageDriver = "mongodb"
)

// IsValid reports whether d is a recognised storage driver.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageMemory, StorageFile, StoragePostgres, StorageRedis, StorageMongo:
		return true
	}
	return false
}

// Provider identifiers accepted under providers.*. They match the identifiers
// clients send to select a provider.
const (
	ProviderGemini   = "gemini"
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
)

// Backend names understood by the default [Registry] factories.
const (
	BackendGemini     = "gemini"
	BackendOpenRouter = "openrouter"
	BackendOpenAI     = "openai"
	BackendAnyLLM     = "anyllm"
)

// DefaultTimeout bounds a single upstream LLM call.
const DefaultTimeout = 120 * time.Second

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Budget     BudgetConfig     `yaml:"budget"`
	Storage    StorageConfig    `yaml:"storage"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network, logging and telemetry settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the API (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr serves /metrics on a separate listener when set. When
	// empty, /metrics is mounted on the API mux.
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// TraceSampleRatio is the fraction of new traces recorded. Zero samples
	// everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the API. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists the browser origins allowed by CORS.
	// Default: ["*"].
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the LLM backends behind each provider identifier.
// A nil entry leaves that provider unconfigured; requests for it are
// rejected.
type ProvidersConfig struct {
	// Default serves requests that name no provider or an unknown one.
	// Default: "gemini".
	Default string `yaml:"default"`

	// CaseStudy is the only provider that generates case studies.
	// Default: "gemini".
	CaseStudy string `yaml:"case_study"`

	Gemini   *ProviderEntry `yaml:"gemini"`
	DeepSeek *ProviderEntry `yaml:"deepseek"`
	OpenAI   *ProviderEntry `yaml:"openai"`
}

// Entries returns the configured entries keyed by provider identifier.
func (p ProvidersConfig) Entries() map[string]ProviderEntry {
	out := make(map[string]ProviderEntry, 3)
	for id, e := range map[string]*ProviderEntry{
		ProviderGemini:   p.Gemini,
		ProviderDeepSeek: p.DeepSeek,
		ProviderOpenAI:   p.OpenAI,
	} {
		if e != nil {
			out[id] = *e
		}
	}
	return out
}

// ProviderEntry configures one provider. Backend selects the factory
// registered in the [Registry].
type ProviderEntry struct {
	// Name is the provider identifier this entry was declared under. It is
	// filled in by the loader.
	Name string `yaml:"-"`

	// Backend selects the registered factory ("gemini", "openrouter",
	// "openai", "anyllm").
	Backend string `yaml:"backend"`

	// APIKey authenticates against the backend. Environment variables
	// SALESCOACH_<PROVIDER>_API_KEY take precedence.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the model within the backend
	// (e.g. "deepseek/deepseek-chat").
	Model string `yaml:"model"`

	// Timeout bounds one upstream call. Default: [DefaultTimeout].
	Timeout time.Duration `yaml:"timeout"`

	// Referer and Title are the OpenRouter attribution headers.
	Referer string `yaml:"referer"`
	Title   string `yaml:"title"`

	// AnyLLMBackend picks the any-llm-go backend when Backend is "anyllm"
	// (e.g. "deepseek", "ollama").
	AnyLLMBackend string `yaml:"anyllm_backend"`
}

// BudgetConfig tunes the advisory monthly token budget.
type BudgetConfig struct {
	// MonthlyTokens is the budget. Default: 500000.
	MonthlyTokens int `yaml:"monthly_tokens"`

	// Thresholds are the usage percentages that trigger a notification.
	// Default: 50, 75, 90, 100.
	Thresholds []int `yaml:"thresholds"`
}

// StorageConfig selects where history and token statistics are kept.
type StorageConfig struct {
	// Driver is memory, file, postgres, redis or mongodb. Default: memory.
	Driver StorageDriver `yaml:"driver"`

	// Path is the JSON document file used by the file driver.
	Path string `yaml:"path"`

	// PostgresDSN is the connection string used by the postgres driver.
	// SALESCOACH_POSTGRES_DSN takes precedence.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisURL is the redis:// URL used by the redis driver.
	// SALESCOACH_REDIS_URL takes precedence.
	RedisURL string `yaml:"redis_url"`

	// MongoURI is the connection string used by the mongodb driver.
	// SALESCOACH_MONGO_URI takes precedence.
	MongoURI string `yaml:"mongo_uri"`

	// HistoryLimit caps each saved history list. Default: 10.
	HistoryLimit int `yaml:"history_limit"`
}

// ResilienceConfig tunes the per-provider circuit breakers.
type ResilienceConfig struct {
	// Disabled turns the breakers off.
	Disabled bool `yaml:"disabled"`

	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}
