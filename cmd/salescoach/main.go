// Command salescoach is the main entry point for the sales coaching server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/salescoach/internal/app"
	"github.com/MrWong99/salescoach/internal/coach"
	"github.com/MrWong99/salescoach/internal/config"
	"github.com/MrWong99/salescoach/internal/observe"
	"github.com/MrWong99/salescoach/pkg/provider/llm"
	"github.com/MrWong99/salescoach/pkg/provider/llm/anyllm"
	"github.com/MrWong99/salescoach/pkg/provider/llm/gemini"
	"github.com/MrWong99/salescoach/pkg/provider/llm/openai"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "salescoach: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "salescoach: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger := newLogger(os.Stderr, cfg.Server.LogFormat, level)
	slog.SetDefault(logger)

	slog.Info("salescoach starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Setup(ctx, observe.TelemetryConfig{
		ServiceName:    "salescoach",
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBackends(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(os.Stdout, cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLevelVar(level),
		app.WithLogger(logger),
		app.WithMetricsHandler(telemetry.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		application.ApplyConfig(ctx, old, new)
	}, config.WithWatchLogger(logger))
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go reloadOnHangup(ctx, watcher)
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if watcher != nil {
		watcher.Stop()
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// reloadOnHangup re-reads the config file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if changed, err := w.Reload(); err == nil && !changed {
				slog.Info("SIGHUP: config unchanged")
			}
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBackends wires the built-in backend factories into reg. Each
// factory receives a config.ProviderEntry and applies its timeout, endpoint
// and attribution settings.
func registerBackends(ctx context.Context, reg *config.Registry) {
	reg.RegisterLLM(config.BackendGemini, func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []gemini.Option{gemini.WithTimeout(entry.Timeout)}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(ctx, entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM(config.BackendOpenRouter, func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []openai.Option{openai.WithTimeout(entry.Timeout)}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.NewOpenRouter(entry.APIKey, entry.Model, entry.Referer, entry.Title, opts...)
	})

	reg.RegisterLLM(config.BackendOpenAI, func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []openai.Option{openai.WithTimeout(entry.Timeout)}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// any-llm covers the remaining backends; the API key may also come from
	// the backend's own environment variable.
	reg.RegisterLLM(config.BackendAnyLLM, func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New(entry.AnyLLMBackend, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		p.SetTimeout(entry.Timeout)
		return p, nil
	})

	slog.Debug("registered llm backends", "backends", reg.Backends())
}

// buildProviders instantiates every configured provider using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (app.Providers, error) {
	entries := cfg.Providers.Entries()
	ps := make(app.Providers, len(entries))
	for id, entry := range entries {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create provider %q: %w", id, err)
		}
		ps[coach.ProviderID(id)] = p
		slog.Info("provider created", "provider", id, "backend", entry.Backend, "model", entry.Model)
	}
	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Salescoach: startup summary        ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════════╣")
	entries := cfg.Providers.Entries()
	for _, id := range []string{config.ProviderGemini, config.ProviderDeepSeek, config.ProviderOpenAI} {
		e, ok := entries[id]
		if !ok {
			printRow(w, id, "(not configured)")
			continue
		}
		printRow(w, id, e.Backend+" / "+e.Model)
	}
	printRow(w, "default", cfg.Providers.Default)
	printRow(w, "case studies", cfg.Providers.CaseStudy)
	printRow(w, "storage", string(cfg.Storage.Driver))
	printRow(w, "budget", fmt.Sprintf("%d tokens", cfg.Budget.MonthlyTokens))
	if cfg.Resilience.Disabled {
		printRow(w, "breakers", "(disabled)")
	} else {
		printRow(w, "breakers", fmt.Sprintf("%d failures / %s", cfg.Resilience.MaxFailures, cfg.Resilience.ResetTimeout))
	}
	printRow(w, "listen addr", cfg.Server.ListenAddr)
	if cfg.Server.MetricsAddr != "" {
		printRow(w, "metrics addr", cfg.Server.MetricsAddr)
	}
	if !slices.Equal(cfg.Server.AllowedOrigins, []string{"*"}) {
		printRow(w, "origins", fmt.Sprintf("%d allowed", len(cfg.Server.AllowedOrigins)))
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if value == "" {
		value = "(none)"
	}
	if r := []rune(value); len(r) > 25 {
		value = string(r[:24]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s : %-25s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
