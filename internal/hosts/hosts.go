// Package hosts classifies URLs by the service that serves them and builds
// the third-party URLs the resolver walks through.
package hosts

import (
	"net/url"
	"regexp"
	"strings"

	"NewYorkCrimes/internal/config"
	"NewYorkCrimes/internal/domain"
)

var datedPath = regexp.MustCompile(`^/\d{4}/\d{2}/\d{2}/`)

// Rules holds the domain literals used for classification. The zero value is
// not useful; build one with NewRules or FromConfig.
type Rules struct {
	contentDomain     string
	shortlinkDomain   string
	readerHost        string
	readerPrefix      string
	aggregatorHost    string
	aggregatorPrefix  string
	archiveDomains    []string
	archiveRunURL     string
	archiveCandidates []string
	excludedPrefixes  []string
}

// FromConfig lowercases host literals and copies templates from config.
func FromConfig(cfg config.HostsConfig) *Rules {
	r := &Rules{
		contentDomain:     normalizeHost(cfg.ContentDomain),
		shortlinkDomain:   normalizeHost(cfg.ShortlinkDomain),
		readerHost:        normalizeHost(cfg.ReaderHost),
		readerPrefix:      cfg.ReaderPrefix,
		aggregatorHost:    normalizeHost(cfg.AggregatorHost),
		aggregatorPrefix:  cfg.AggregatorPrefix,
		archiveRunURL:     cfg.ArchiveRunURL,
		archiveCandidates: append([]string(nil), cfg.ArchiveCandidates...),
		excludedPrefixes:  append([]string(nil), cfg.ExcludedPrefixes...),
	}
	for _, d := range cfg.ArchiveDomains {
		if d = normalizeHost(d); d != "" {
			r.archiveDomains = append(r.archiveDomains, d)
		}
	}
	return r
}

// Default returns rules for the built-in service list.
func Default() *Rules {
	return FromConfig(config.Default().Hosts)
}

// Classify buckets a URL by host. Unparsable input is HostOther.
func (r *Rules) Classify(raw string) domain.HostClass {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return domain.HostOther
	}
	return r.classifyHost(normalizeHost(u.Hostname()))
}

func (r *Rules) classifyHost(host string) domain.HostClass {
	switch {
	case host == "":
		return domain.HostOther
	case r.isContentHost(host):
		return domain.HostNYTArticle
	case host == r.readerHost:
		return domain.HostReaderProxy
	case host == r.aggregatorHost:
		return domain.HostAggregator
	case r.isArchiveHost(host):
		return domain.HostArchive
	default:
		return domain.HostOther
	}
}

func (r *Rules) isContentHost(host string) bool {
	if r.shortlinkDomain != "" && host == r.shortlinkDomain {
		return true
	}
	if r.contentDomain == "" {
		return false
	}
	return host == r.contentDomain || strings.HasSuffix(host, "."+r.contentDomain)
}

func (r *Rules) isArchiveHost(host string) bool {
	for _, d := range r.archiveDomains {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

// IsArchive reports whether raw points at an archive-family host.
func (r *Rules) IsArchive(raw string) bool {
	return r.Classify(raw) == domain.HostArchive
}

// IsArticle decides whether a link should be intercepted for resolution
// rather than allowed to navigate inside the main browsing surface.
func (r *Rules) IsArticle(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}

	host := normalizeHost(u.Hostname())
	path := u.Path
	if path == "/" {
		return false
	}

	if r.shortlinkDomain != "" && host == r.shortlinkDomain {
		return true
	}
	if !r.isContentHost(host) {
		return false
	}

	for _, prefix := range r.excludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}

	switch {
	case datedPath.MatchString(path):
		return true
	case strings.Contains(path, "/interactive/"):
		return true
	case strings.Contains(path, "/live/"):
		return true
	case strings.HasSuffix(path, ".html"):
		return true
	}
	return false
}

// IsAMP reports AMP renderings of an article.
func IsAMP(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "/amp") || strings.Contains(lower, "outputtype=amp")
}

// IsArchiveRoot matches archive pages that carry no snapshot: the bare root
// and submit forms with an empty target.
func (r *Rules) IsArchiveRoot(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	path := strings.TrimSuffix(u.Path, "/")
	query := u.Query()

	switch {
	case path == "" && u.RawQuery == "":
		return true
	case path == "" && query.Has("url") && strings.TrimSpace(query.Get("url")) == "":
		return true
	case path == "/submit" && strings.TrimSpace(query.Get("url")) == "":
		return true
	}
	return false
}

// ReaderURL wraps the original URL with the reader-proxy prefix.
func (r *Rules) ReaderURL(original string) string {
	return r.readerPrefix + original
}

// UnwrapReader strips the reader-proxy prefix; ok is false when raw is not wrapped.
func (r *Rules) UnwrapReader(raw string) (string, bool) {
	for _, prefix := range []string{r.readerPrefix, strings.Replace(r.readerPrefix, "https://", "http://", 1)} {
		if prefix != "" && strings.HasPrefix(raw, prefix) {
			return strings.TrimPrefix(raw, prefix), true
		}
	}
	return raw, false
}

// AggregatorURL wraps the original URL with the paywall-aggregator prefix.
func (r *Rules) AggregatorURL(original string) string {
	return r.aggregatorPrefix + original
}

// ArchiveRunURL asks the archive to capture the original URL fresh.
func (r *Rules) ArchiveRunURL(original string) string {
	return expand(r.archiveRunURL, original)
}

// ArchiveCandidates returns the direct-archive URLs in the order they should be tried.
func (r *Rules) ArchiveCandidates(original string) []string {
	out := make([]string, 0, len(r.archiveCandidates))
	for _, tpl := range r.archiveCandidates {
		out = append(out, expand(tpl, original))
	}
	return out
}

// HasReader reports whether a reader proxy is configured.
func (r *Rules) HasReader() bool {
	return r.readerPrefix != ""
}

func expand(tpl, original string) string {
	if tpl == "" {
		return ""
	}
	out := strings.ReplaceAll(tpl, "{encoded}", url.QueryEscape(original))
	return strings.ReplaceAll(out, "{url}", original)
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}
