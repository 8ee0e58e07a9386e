// Package probe sniffs rendered page text for block and CAPTCHA signals.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"NewYorkCrimes/internal/ports"
)

// Detector matches page text against compiled signal patterns.
type Detector struct {
	patterns []*regexp.Regexp
	logger   *slog.Logger
}

var _ ports.BlockProbe = (*Detector)(nil)

// NewDetector compiles patterns case-insensitively.
func NewDetector(patterns []string, logger *slog.Logger) (*Detector, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile probe pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Detector{patterns: compiled, logger: logger}, nil
}

// Blocked reports whether text contains any signal. Empty text is never blocked.
func (d *Detector) Blocked(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, re := range d.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Probe runs one text extraction against the page. Extraction errors fail open:
// a page that cannot be read is treated as not blocked.
func (d *Detector) Probe(ctx context.Context, page ports.Page) bool {
	if page == nil {
		return false
	}
	text, err := page.InnerText(ctx)
	if err != nil {
		d.debug("probe failed, treating page as readable", "url", page.CurrentURL(), "error", err)
		return false
	}
	blocked := d.Blocked(text)
	d.debug("probe finished", "url", page.CurrentURL(), "blocked", blocked, "text_len", len(text))
	return blocked
}

func (d *Detector) debug(msg string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}
