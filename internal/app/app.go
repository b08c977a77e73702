// Package app wires the salescoach subsystems into a running server.
//
// New builds the store, knowledge base, provider adapters, dispatcher,
// budget tracker, coaching service and HTTP handler. Run serves the API
// until its context ends, and Shutdown releases everything in order.
//
// For testing, pass mock providers to New and inject a store with
// [WithStore]. When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/salescoach/internal/api"
	"github.com/MrWong99/salescoach/internal/budget"
	"github.com/MrWong99/salescoach/internal/coach"
	"github.com/MrWong99/salescoach/internal/coaching"
	"github.com/MrWong99/salescoach/internal/config"
	"github.com/MrWong99/salescoach/internal/health"
	"github.com/MrWong99/salescoach/internal/knowledge"
	"github.com/MrWong99/salescoach/internal/observe"
	"github.com/MrWong99/salescoach/internal/resilience"
	"github.com/MrWong99/salescoach/internal/store"
	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// Providers holds the raw LLM backend behind each provider identifier.
// Populated by main.go via the config registry.
type Providers map[coach.ProviderID]llm.Provider

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers Providers

	store    store.Store
	kb       *knowledge.Base
	metrics  *observe.Metrics
	level    *slog.LevelVar
	log      *slog.Logger
	breakers map[coach.ProviderID]*resilience.CircuitBreaker
	tracker  *budget.Tracker
	service  *coaching.Service
	handler  http.Handler
	scrape   http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler behind GET /metrics. Defaults to the
// default Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of the handler
// behind lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// New creates an App from cfg. providers must contain a backend for the
// configured default provider.
func New(ctx context.Context, cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
		breakers:  make(map[coach.ProviderID]*resilience.CircuitBreaker),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	kb, err := knowledge.Load()
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: load knowledge: %w", err)
	}
	a.kb = kb

	dispatcher, err := a.initDispatcher()
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init dispatcher: %w", err)
	}

	a.tracker = budget.New(a.store,
		budget.WithMonthlyBudget(cfg.Budget.MonthlyTokens),
		budget.WithThresholds(cfg.Budget.Thresholds),
		budget.WithLogger(a.log),
	)
	a.service = coaching.New(dispatcher, a.store, a.tracker, kb,
		coaching.WithHistoryLimit(cfg.Storage.HistoryLimit),
		coaching.WithMetrics(a.metrics),
		coaching.WithLogger(a.log),
	)
	a.handler = a.buildHandler()
	return a, nil
}

// initStore opens the configured store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	sc := a.cfg.Storage
	switch sc.Driver {
	case config.StorageFile:
		s, err := store.OpenFile(sc.Path)
		if err != nil {
			return err
		}
		a.store = s
	case config.StoragePostgres:
		s, err := store.OpenPostgres(ctx, sc.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = s
	case config.StorageRedis:
		s, err := store.OpenRedis(ctx, sc.RedisURL)
		if err != nil {
			return err
		}
		a.store = s
	case config.StorageMongo:
		s, err := store.OpenMongo(ctx, sc.MongoURI)
		if err != nil {
			return err
		}
		a.store = s
	case config.StorageMemory, "":
		a.store = store.NewMemory()
	default:
		return fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
	a.closers = append(a.closers, a.store.Close)
	a.log.Info("store opened", "driver", sc.Driver)
	return nil
}

// initDispatcher wraps each backend in a circuit breaker and metrics, then
// adapts it to the coaching operations.
func (a *App) initDispatcher() (*coach.Dispatcher, error) {
	caseStudy := coach.ProviderID(a.cfg.Providers.CaseStudy)
	adapters := make(map[coach.ProviderID]coach.Coach, len(a.providers))
	for id, p := range a.providers {
		if p == nil {
			continue
		}
		if !a.cfg.Resilience.Disabled {
			g := resilience.GuardLLM(p, resilience.CircuitBreakerConfig{
				Name:         string(id),
				MaxFailures:  a.cfg.Resilience.MaxFailures,
				ResetTimeout: a.cfg.Resilience.ResetTimeout,
				HalfOpenMax:  a.cfg.Resilience.HalfOpenMax,
				Logger:       a.log,
			})
			a.breakers[id] = g.Breaker()
			p = g
		}
		p = observe.InstrumentLLM(p, string(id), a.metrics)

		opts := []coach.Option{coach.WithLogger(a.log)}
		if id == caseStudy {
			opts = append(opts, coach.WithCaseStudies())
		}
		adapters[id] = coach.NewAdapter(id, p, a.kb, opts...)
	}

	dopts := []coach.DispatcherOption{
		coach.WithDispatchLogger(a.log),
		coach.WithDispatchMetrics(a.metrics),
	}
	if id := a.cfg.Providers.Default; id != "" {
		dopts = append(dopts, coach.WithDefaultProvider(coach.ProviderID(id)))
	}
	if caseStudy != "" {
		dopts = append(dopts, coach.WithCaseStudyProvider(caseStudy))
	}
	return coach.NewDispatcher(adapters, dopts...)
}

// buildHandler assembles health probes, the API and /metrics behind CORS
// and the observability middleware.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	checkers := []health.Checker{health.PingChecker("store", a.store)}
	ids := make([]coach.ProviderID, 0, len(a.breakers))
	for id := range a.breakers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		checkers = append(checkers, health.BreakerChecker("llm:"+string(id), a.breakers[id]))
	}
	health.New(checkers...).Register(mux)

	origins := a.cfg.Server.AllowedOrigins
	api.New(a.service, a.kb,
		api.WithLogger(a.log),
		api.WithMetrics(a.metrics),
		api.WithAllowedOrigins(origins),
	).Register(mux)

	if a.cfg.Server.MetricsAddr == "" {
		mux.Handle("GET /metrics", a.scrape)
	}
	return observe.Middleware(a.metrics,
		observe.WithRequestLogger(a.log),
		observe.WithQuietRoutes("GET /healthz", "GET /readyz", "GET /metrics"),
	)(api.CORS(origins, mux))
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Service returns the coaching service.
func (a *App) Service() *coaching.Service { return a.service }

// Run serves the API (and the separate metrics listener, if configured)
// until ctx is cancelled, then drains connections for at most the
// configured shutdown timeout. It returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	sc := a.cfg.Server
	servers := []*http.Server{{
		Addr:              sc.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if sc.MetricsAddr != "" {
		mmux := http.NewServeMux()
		mmux.Handle("GET /metrics", a.scrape)
		servers = append(servers, &http.Server{
			Addr:              sc.MetricsAddr,
			Handler:           mmux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			a.log.Info("http server listening", "addr", srv.Addr, "tls", i == 0 && sc.TLS != nil)
			var err error
			if i == 0 && sc.TLS != nil {
				err = srv.ListenAndServeTLS(sc.TLS.CertFile, sc.TLS.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: serve %s: %w", srv.Addr, err)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sc.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("app: shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// ApplyConfig applies the live-reloadable parts of a config change: the log
// level and the monthly budget. Everything else is logged as requiring a
// restart.
func (a *App) ApplyConfig(ctx context.Context, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.BudgetChanged {
		if _, err := a.service.SetMonthlyBudget(ctx, d.NewMonthlyTokens); err != nil {
			a.log.Error("apply monthly budget", "err", err)
		} else {
			a.log.Info("monthly budget changed", "tokens", d.NewMonthlyTokens)
		}
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Shutdown releases all resources. It is safe to call more than once; only
// the first call has any effect.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- a.closeAll() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("app: shutdown: %w", ctx.Err())
		}
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
