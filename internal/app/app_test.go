package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/salescoach/internal/app"
	"github.com/MrWong99/salescoach/internal/coach"
	"github.com/MrWong99/salescoach/internal/config"
	"github.com/MrWong99/salescoach/internal/observe"
	"github.com/MrWong99/salescoach/internal/store"
	"github.com/MrWong99/salescoach/pkg/provider/llm"
	llmmock "github.com/MrWong99/salescoach/pkg/provider/llm/mock"
)

// testConfig returns a defaulted config with an in-memory store.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			Gemini: &config.ProviderEntry{Backend: config.BackendGemini, Model: "gemini-2.5-flash"},
			OpenAI: &config.ProviderEntry{Backend: config.BackendOpenRouter, Model: "openai/gpt-4o-mini"},
		},
		Storage:    config.StorageConfig{Driver: config.StorageMemory},
		Resilience: config.ResilienceConfig{MaxFailures: 2, ResetTimeout: time.Minute},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// closeCounter is a memory store that counts Close calls.
type closeCounter struct {
	*store.Memory
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func newApp(t *testing.T, cfg *config.Config, providers app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_ServesCoachingAPI(t *testing.T) {
	t.Parallel()
	gemini := &llmmock.Provider{Responses: []llmmock.Response{
		{Content: `{"category":"Seguros"}`, Usage: llm.Usage{TotalTokens: 9}},
	}}
	a := newApp(t, testConfig(), app.Providers{coach.ProviderGemini: gemini})

	rec := post(t, a.Handler(), "/v1/categorize", `{"text":"un seguro de vida"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var out struct {
		Result   string           `json:"result"`
		Provider coach.ProviderID `json:"provider"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result != "Seguros" || out.Provider != coach.ProviderGemini {
		t.Errorf("outcome = %+v", out)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("response should carry a correlation id")
	}
}

func TestNew_RequiresDefaultProvider(t *testing.T) {
	t.Parallel()
	_, err := app.New(context.Background(), testConfig(),
		app.Providers{coach.ProviderOpenAI: &llmmock.Provider{}},
		app.WithMetrics(testMetrics(t)),
	)
	if err == nil {
		t.Fatal("expected an error without a default provider backend")
	}
}

func TestNew_UnknownStorageDriver(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Storage.Driver = "sqlite"
	_, err := app.New(context.Background(), cfg,
		app.Providers{coach.ProviderGemini: &llmmock.Provider{}},
		app.WithMetrics(testMetrics(t)),
	)
	if err == nil {
		t.Fatal("expected an error for an unknown storage driver")
	}
}

func TestNew_BreakerFailsFastAndStaysReady(t *testing.T) {
	t.Parallel()
	gemini := &llmmock.Provider{CompleteErr: &llm.APIError{Provider: "gemini", StatusCode: 500, Message: "boom"}}
	a := newApp(t, testConfig(), app.Providers{coach.ProviderGemini: gemini})
	h := a.Handler()

	for range 2 {
		if rec := post(t, h, "/v1/categorize", `{"text":"hola"}`); rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
	}
	if rec := post(t, h, "/v1/categorize", `{"text":"hola"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after trip = %d, want 503", rec.Code)
	}
	if n := len(gemini.Calls()); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200 while only a breaker is open", rec.Code)
	}
}

func TestNew_ResilienceDisabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Resilience.Disabled = true
	gemini := &llmmock.Provider{CompleteErr: &llm.APIError{Provider: "gemini", StatusCode: 500, Message: "boom"}}
	a := newApp(t, cfg, app.Providers{coach.ProviderGemini: gemini})

	for range 4 {
		post(t, a.Handler(), "/v1/categorize", `{"text":"hola"}`)
	}
	if n := len(gemini.Calls()); n != 4 {
		t.Errorf("upstream calls = %d, want every request forwarded", n)
	}
}

func TestNew_MetricsEndpoint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		metricsAddr string
		want        int
	}{
		{name: "on api mux", want: http.StatusOK},
		{name: "separate listener", metricsAddr: "127.0.0.1:0", want: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Server.MetricsAddr = tc.metricsAddr
			a := newApp(t, cfg, app.Providers{coach.ProviderGemini: &llmmock.Provider{}})

			rec := httptest.NewRecorder()
			a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if rec.Code != tc.want {
				t.Errorf("GET /metrics = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()
	lv := new(slog.LevelVar)
	cfg := testConfig()
	a := newApp(t, cfg, app.Providers{coach.ProviderGemini: &llmmock.Provider{}}, app.WithLevelVar(lv))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Budget.MonthlyTokens = 1234
	next.Server.ListenAddr = ":9999"
	a.ApplyConfig(context.Background(), cfg, next)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	st, err := a.Service().Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if st.MonthlyBudget != 1234 {
		t.Errorf("monthly budget = %d, want 1234", st.MonthlyBudget)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	st := &closeCounter{Memory: store.NewMemory()}
	a, err := app.New(context.Background(), testConfig(),
		app.Providers{coach.ProviderGemini: &llmmock.Provider{}},
		app.WithStore(st),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range 2 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}
	// Injected stores belong to the caller.
	if st.closed != 0 {
		t.Errorf("injected store closed %d times, want 0", st.closed)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.ShutdownTimeout = time.Second
	a := newApp(t, cfg, app.Providers{coach.ProviderGemini: &llmmock.Provider{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.ListenAddr = "256.0.0.1:bad"
	a := newApp(t, cfg, app.Providers{coach.ProviderGemini: &llmmock.Provider{}})

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected a listen error")
	} else if errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want the listen error", err)
	}
}

func TestSlogLevel(t *testing.T) {
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
		if got := app.SlogLevel(tc.in); got != tc.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
