package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewYorkCrimes/internal/api"
	"NewYorkCrimes/internal/config"
	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/hosts"
	"NewYorkCrimes/internal/infrastructure/browser"
	"NewYorkCrimes/internal/infrastructure/cache"
	"NewYorkCrimes/internal/infrastructure/scheduler"
	"NewYorkCrimes/internal/infrastructure/storage"
	"NewYorkCrimes/internal/logging"
	"NewYorkCrimes/internal/ports"
	"NewYorkCrimes/internal/probe"
	"NewYorkCrimes/internal/resolver"
	"NewYorkCrimes/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	service *usecase.ResolveService
	repo    *storage.HistoryRepository
}

// New builds the application graph. A non-nil pages factory replaces the
// HTTP browsing surface.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, pages ports.PageFactory) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rules := hosts.FromConfig(cfg.Hosts)

	detector, err := probe.NewDetector(cfg.Probe.Patterns, baseLogger.With("component", "probe"))
	if err != nil {
		return nil, fmt.Errorf("build probe: %w", err)
	}

	engine := resolver.NewEngine(resolver.EngineDeps{
		Rules: rules,
		Probe: detector,
		Options: resolver.Options{
			PreferReader:    cfg.Resolver.PreferReader,
			ReaderCapable:   cfg.Resolver.ReaderCapable,
			ChainCandidates: cfg.Resolver.ChainCandidates,
		},
		Timeout: cfg.Resolver.Timeout,
		Logger:  baseLogger.With("component", "resolver"),
	})

	if pages == nil {
		factory, err := browser.NewFactory(cfg.Browser, nil, baseLogger.With("component", "browser"))
		if err != nil {
			return nil, fmt.Errorf("build browser: %w", err)
		}
		pages = factory
	}

	application := &Application{cfg: cfg, logger: baseLogger}

	deps := usecase.ResolveDeps{
		Gate:     usecase.NewLinkGate(rules, baseLogger.With("component", "gate")),
		Engine:   engine,
		Pages:    pages,
		Cache:    cache.NewResolvedCache(cfg.Cache.TTL, cfg.Cache.CleanupInterval),
		CacheTTL: cfg.Cache.TTL,
		Logger:   baseLogger.With("component", "usecase"),
	}

	if cfg.History.Enabled() {
		repo, err := storage.Open(cfg.History)
		if err != nil {
			return nil, err
		}
		if err := repo.Init(ctx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("init history: %w", err)
		}
		application.repo = repo
		deps.History = repo
	}

	application.service = usecase.NewResolveService(deps)
	return application, nil
}

// Resolve resolves a single article URL.
func (a *Application) Resolve(ctx context.Context, raw string) (domain.Resolution, error) {
	return a.service.Resolve(ctx, raw)
}

// Classify reports the host class of raw and whether it would be intercepted.
func (a *Application) Classify(raw string) (domain.HostClass, bool) {
	return a.service.Classify(raw)
}

// History lists recently recorded resolutions.
func (a *Application) History(ctx context.Context, limit int) ([]domain.Resolution, error) {
	return a.service.History(ctx, limit)
}

// Serve runs the HTTP API until ctx is cancelled. While serving, history rows
// older than the configured retention are pruned.
func (a *Application) Serve(ctx context.Context) error {
	if a.repo != nil {
		retention := usecase.NewRetention(
			scheduler.NewTicker(a.cfg.History.PruneInterval),
			a.repo,
			a.cfg.History.Retention,
			a.logger.With("component", "retention"),
		)
		if err := retention.Start(ctx); err != nil {
			return fmt.Errorf("start retention: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = retention.Stop(stopCtx)
		}()
	}

	server := api.NewServer(a.service, a.logger.With("component", "api"))
	return server.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// Close releases the history database, if any.
func (a *Application) Close() error {
	if a.repo == nil {
		return nil
	}
	return a.repo.Close()
}
