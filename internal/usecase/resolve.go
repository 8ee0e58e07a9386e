package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/hosts"
	"NewYorkCrimes/internal/ports"
	"NewYorkCrimes/internal/resolver"
)

var (
	// ErrInvalidURL is returned for input that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid article url")
	// ErrNotArticle is returned for links that should navigate normally.
	ErrNotArticle = errors.New("url is not an article")
)

// LinkGate decides which link taps are intercepted for resolution.
type LinkGate struct {
	rules  *hosts.Rules
	logger *slog.Logger
}

// NewLinkGate wires classification rules.
func NewLinkGate(rules *hosts.Rules, logger *slog.Logger) *LinkGate {
	return &LinkGate{rules: rules, logger: logger}
}

// Intercept reports whether raw is an article that should be resolved
// instead of loaded in the main browsing surface.
func (g *LinkGate) Intercept(raw string) bool {
	ok := g.rules.IsArticle(raw)
	if ok && hosts.IsAMP(raw) && g.logger != nil {
		g.logger.Debug("intercepting AMP article", "url", raw)
	}
	return ok
}

// Classify exposes the host class for diagnostics.
func (g *LinkGate) Classify(raw string) domain.HostClass {
	return g.rules.Classify(raw)
}

// ResolveDeps wires the driven adapters of the resolve use case.
type ResolveDeps struct {
	Gate     *LinkGate
	Engine   *resolver.Engine
	Pages    ports.PageFactory
	Cache    ports.ResolvedCache
	History  ports.HistoryRepository
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// ResolveService turns article links into readable URLs.
type ResolveService struct {
	gate     *LinkGate
	engine   *resolver.Engine
	pages    ports.PageFactory
	cache    ports.ResolvedCache
	history  ports.HistoryRepository
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewResolveService constructs the use case.
func NewResolveService(deps ResolveDeps) *ResolveService {
	return &ResolveService{
		gate:     deps.Gate,
		engine:   deps.Engine,
		pages:    deps.Pages,
		cache:    deps.Cache,
		history:  deps.History,
		cacheTTL: deps.CacheTTL,
		logger:   deps.Logger,
	}
}

// Classify reports the host class of raw and whether a tap on it would be
// intercepted.
func (s *ResolveService) Classify(raw string) (domain.HostClass, bool) {
	raw = strings.TrimSpace(raw)
	return s.gate.Classify(raw), s.gate.Intercept(raw)
}

// Resolve runs one resolution attempt for raw, or serves it from cache.
// Fallback outcomes are never cached, so the next tap tries again.
func (s *ResolveService) Resolve(ctx context.Context, raw string) (domain.Resolution, error) {
	original, err := normalize(raw)
	if err != nil {
		return domain.Resolution{}, err
	}
	if inner, ok := s.gate.rules.UnwrapReader(original); ok {
		original = inner
	}
	if !s.gate.Intercept(original) {
		return domain.Resolution{}, fmt.Errorf("%w: %s", ErrNotArticle, original)
	}

	if s.cache != nil {
		if res, ok := s.cache.Get(original); ok {
			s.debug("serving cached resolution", "original", original, "resolved", res.Resolved)
			return res, nil
		}
	}

	if s.engine == nil || s.pages == nil {
		return domain.Resolution{}, fmt.Errorf("resolver is not configured")
	}

	outcome := s.engine.Resolve(ctx, s.pages.NewPage(), original)
	if !outcome.Resolved {
		if err := ctx.Err(); err != nil {
			return domain.Resolution{}, fmt.Errorf("resolve %s: %w", original, err)
		}
		return domain.Resolution{}, fmt.Errorf("resolve %s: attempt ended without a result", original)
	}

	res := outcome.Resolution()
	if s.cache != nil && !res.Fallback {
		s.cache.Put(res, s.cacheTTL)
	}
	if s.history != nil {
		if err := s.history.Record(ctx, res); err != nil && s.logger != nil {
			s.logger.Warn("cannot record resolution", "id", res.ID, "error", err)
		}
	}
	return res, nil
}

// History lists recent resolutions; without a repository it is empty.
func (s *ResolveService) History(ctx context.Context, limit int) ([]domain.Resolution, error) {
	if s.history == nil {
		return nil, nil
	}
	items, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return items, nil
}

func normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, raw)
	}
	return raw, nil
}

func (s *ResolveService) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
