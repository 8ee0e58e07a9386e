// Package browser is a headless browser surface backed by net/http.
// "Page scripts" are goquery selections over the last fetched document.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"NewYorkCrimes/internal/config"
	"NewYorkCrimes/internal/ports"
)

// ErrNoDocument is returned by scripts run before any page has loaded.
var ErrNoDocument = errors.New("browser: no document loaded")

// Factory hands out surfaces that share an HTTP client and rate limiter but
// keep their own navigation state.
type Factory struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
	logger    *slog.Logger
}

var _ ports.PageFactory = (*Factory)(nil)

// NewFactory builds the shared client. A nil client gets a cookie jar keyed by
// public suffix and the configured request timeout.
func NewFactory(cfg config.BrowserConfig, client *http.Client, logger *slog.Logger) (*Factory, error) {
	if client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout, Jar: jar}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Factory{
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: cfg.UserAgentString(),
		maxBody:   cfg.MaxBodyBytes,
		logger:    logger,
	}, nil
}

// NewPage returns a fresh surface.
func (f *Factory) NewPage() ports.Page {
	return &Surface{factory: f}
}

// Surface implements ports.Page. Loads replace each other: only the most
// recent Load may publish its document and notify the delegate.
type Surface struct {
	factory *Factory

	mu         sync.Mutex
	generation uint64
	current    *url.URL
	doc        *goquery.Document
	status     int
	delegate   ports.NavigationDelegate
}

var _ ports.Page = (*Surface)(nil)

// SetDelegate registers the navigation listener.
func (s *Surface) SetDelegate(d ports.NavigationDelegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = d
}

// Load fetches targetURL in the background. Transport failures never finish
// the navigation; callers rely on their own deadline.
func (s *Surface) Load(ctx context.Context, targetURL string) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	go s.fetch(ctx, gen, targetURL)
}

func (s *Surface) fetch(ctx context.Context, gen uint64, targetURL string) {
	final, status, doc, err := s.factory.fetchDocument(ctx, targetURL)
	if err != nil {
		s.debug("navigation failed", "url", targetURL, "error", err)
		return
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.debug("navigation superseded", "url", targetURL)
		return
	}
	s.current = final
	s.doc = doc
	s.status = status
	delegate := s.delegate
	s.mu.Unlock()

	s.debug("navigation finished", "url", final.String(), "status", status)
	if delegate != nil {
		delegate.NavigationFinished()
	}
}

// CurrentURL reports the effective URL after redirects.
func (s *Surface) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.String()
}

// Status is the HTTP status of the current document.
func (s *Surface) Status() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// InnerText returns the body text of the current document. A document
// without a body yields an empty string.
func (s *Surface) InnerText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil {
		return "", ErrNoDocument
	}
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

// FindLink returns the first anchor whose absolute href satisfies match.
func (s *Surface) FindLink(ctx context.Context, match func(href string) bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	doc, base := s.doc, s.current
	s.mu.Unlock()
	if doc == nil {
		return "", ErrNoDocument
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := absolutize(base, href)
		if abs != "" && match(abs) {
			found = abs
			return false
		}
		return true
	})
	return found, nil
}

func (f *Factory) fetchDocument(ctx context.Context, pageURL string) (*url.URL, int, *goquery.Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, 0, nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if f.maxBody > 0 {
		body = io.LimitReader(resp.Body, f.maxBody)
	}

	// Error pages are rendered too: a 403 body is exactly what the probe looks for.
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("parse document: %w", err)
	}

	return resp.Request.URL, resp.StatusCode, doc, nil
}

func absolutize(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func (s *Surface) debug(msg string, args ...interface{}) {
	if s.factory.logger != nil {
		s.factory.logger.Debug(msg, args...)
	}
}
