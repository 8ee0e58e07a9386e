package domain

import "time"

// HostClass buckets a URL by the service that serves it.
type HostClass string

const (
	HostNYTArticle  HostClass = "nyt_article"
	HostReaderProxy HostClass = "reader_proxy"
	HostAggregator  HostClass = "aggregator"
	HostArchive     HostClass = "archive"
	HostOther       HostClass = "other"
)

// Stage enumerates resolution milestones.
type Stage string

const (
	StageStart             Stage = "start"
	StageReaderProxy       Stage = "reader_proxy"
	StagePaywallAggregator Stage = "paywall_aggregator"
	StageArchiveSnapshot   Stage = "archive_snapshot"
	StageResolved          Stage = "resolved"
)

// Resolution is the outcome handed to the presentation layer and kept in history.
type Resolution struct {
	ID        string
	Original  string
	Resolved  string
	Stage     Stage
	Fallback  bool
	Cached    bool
	Trail     []string
	StartedAt time.Time
	Duration  time.Duration
}
