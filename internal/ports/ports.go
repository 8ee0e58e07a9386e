package ports

import (
	"context"
	"time"

	"NewYorkCrimes/internal/domain"
)

// NavigationDelegate is notified when a page finishes loading its main frame.
type NavigationDelegate interface {
	NavigationFinished()
}

// Page is the browser surface the resolver drives.
//
// Load is fire-and-forget: completion is only observed through the delegate.
// CurrentURL reports the effective URL after any server-side redirects.
type Page interface {
	Load(ctx context.Context, targetURL string)
	CurrentURL() string
	InnerText(ctx context.Context) (string, error)
	FindLink(ctx context.Context, match func(href string) bool) (string, error)
	SetDelegate(d NavigationDelegate)
}

// PageFactory opens an isolated surface per resolution attempt.
type PageFactory interface {
	NewPage() Page
}

// BlockProbe inspects the rendered page for block or CAPTCHA signals.
type BlockProbe interface {
	Probe(ctx context.Context, page Page) bool
}

// HistoryRepository persists finished resolutions.
type HistoryRepository interface {
	Record(ctx context.Context, res domain.Resolution) error
	Recent(ctx context.Context, limit int) ([]domain.Resolution, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler runs a recurring job until stopped.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// ResolvedCache remembers recent resolutions keyed by original URL.
type ResolvedCache interface {
	Get(original string) (domain.Resolution, bool)
	Put(res domain.Resolution, ttl time.Duration)
}
