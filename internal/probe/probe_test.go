package probe

import (
	"context"
	"errors"
	"testing"

	"NewYorkCrimes/internal/config"
	"NewYorkCrimes/internal/ports"
)

type textPage struct {
	text string
	err  error
}

func (p textPage) Load(context.Context, string)              {}
func (p textPage) CurrentURL() string                        { return "https://r.jina.ai/x" }
func (p textPage) SetDelegate(ports.NavigationDelegate)      {}
func (p textPage) InnerText(context.Context) (string, error) { return p.text, p.err }
func (p textPage) FindLink(context.Context, func(string) bool) (string, error) {
	return "", nil
}

func newDefaultDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(config.Default().Probe.Patterns, nil)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return d
}

func TestBlocked(t *testing.T) {
	t.Parallel()

	d := newDefaultDetector(t)
	cases := []struct {
		text string
		want bool
	}{
		{"", false},
		{"   \n\t", false},
		{"Title: Example\n\nThe article body.", false},
		{"403 Forbidden", true},
		{"error: 403forbidden", true},
		{"Warning: Target URL returned error 403: Forbidden", true},
		{"Please complete the reCAPTCHA below", true},
		{"Verify you are human by completing the action below.", true},
		{"Performing security check", true},
		{"We checked security settings", false},
	}

	for _, tc := range cases {
		if got := d.Blocked(tc.text); got != tc.want {
			t.Fatalf("Blocked(%q) = %t, want %t", tc.text, got, tc.want)
		}
	}
}

func TestProbeFailsOpen(t *testing.T) {
	t.Parallel()

	d := newDefaultDetector(t)
	ctx := context.Background()

	if d.Probe(ctx, textPage{err: errors.New("script evaluation failed")}) {
		t.Fatal("probe error must be treated as not blocked")
	}
	if d.Probe(ctx, textPage{}) {
		t.Fatal("empty body must be treated as not blocked")
	}
	if d.Probe(ctx, nil) {
		t.Fatal("nil page must be treated as not blocked")
	}
	if !d.Probe(ctx, textPage{text: "CAPTCHA required"}) {
		t.Fatal("captcha page should be blocked")
	}
}

func TestNewDetectorRejectsBadPattern(t *testing.T) {
	t.Parallel()

	if _, err := NewDetector([]string{"("}, nil); err == nil {
		t.Fatal("expected compile error")
	}
	d, err := NewDetector([]string{"", "  "}, nil)
	if err != nil {
		t.Fatalf("blank patterns should be skipped: %v", err)
	}
	if d.Blocked("403 forbidden") {
		t.Fatal("detector without patterns never blocks")
	}
}
