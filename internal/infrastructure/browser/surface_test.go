package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"NewYorkCrimes/internal/config"
)

type chanDelegate chan struct{}

func (c chanDelegate) NavigationFinished() { c <- struct{}{} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/aggregator", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte(`<html><body>
			<a href="#top">Top</a>
			<a href="javascript:void(0)">Nothing</a>
			<a href="/reader/x">Option 2</a>
			<a href="https://archive.is/AbCd1">Option 1</a>
		</body></html>`))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Snapshot body</p></body></html>`))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`Warning: Target URL returned error 403: Forbidden`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestSurface(t *testing.T, server *httptest.Server) (*Surface, chanDelegate) {
	t.Helper()
	factory, err := NewFactory(config.Default().Browser, server.Client(), nil)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	surface := factory.NewPage().(*Surface)
	done := make(chanDelegate, 4)
	surface.SetDelegate(done)
	return surface, done
}

func waitNavigation(t *testing.T, done chanDelegate) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("navigation did not finish")
	}
}

func TestSurfaceFollowsRedirects(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	surface, done := newTestSurface(t, server)
	ctx := context.Background()

	surface.Load(ctx, server.URL+"/redirect")
	waitNavigation(t, done)

	if got := surface.CurrentURL(); got != server.URL+"/final" {
		t.Fatalf("expected effective url, got %s", got)
	}
	text, err := surface.InnerText(ctx)
	if err != nil {
		t.Fatalf("InnerText: %v", err)
	}
	if text != "Snapshot body" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestSurfaceRendersErrorPages(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	surface, done := newTestSurface(t, server)
	ctx := context.Background()

	surface.Load(ctx, server.URL+"/forbidden")
	waitNavigation(t, done)

	if surface.Status() != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", surface.Status())
	}
	text, err := surface.InnerText(ctx)
	if err != nil {
		t.Fatalf("InnerText: %v", err)
	}
	if !strings.Contains(text, "returned error 403") {
		t.Fatalf("block banner missing: %q", text)
	}
}

func TestSurfaceFindLink(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	surface, done := newTestSurface(t, server)
	ctx := context.Background()

	surface.Load(ctx, server.URL+"/aggregator")
	waitNavigation(t, done)

	link, err := surface.FindLink(ctx, func(href string) bool {
		return strings.Contains(href, "archive.is")
	})
	if err != nil {
		t.Fatalf("FindLink: %v", err)
	}
	if link != "https://archive.is/AbCd1" {
		t.Fatalf("unexpected link: %s", link)
	}

	relative, err := surface.FindLink(ctx, func(href string) bool {
		return strings.HasSuffix(href, "/reader/x")
	})
	if err != nil {
		t.Fatalf("FindLink: %v", err)
	}
	if relative != server.URL+"/reader/x" {
		t.Fatalf("relative href not resolved: %s", relative)
	}

	none, err := surface.FindLink(ctx, func(string) bool { return false })
	if err != nil || none != "" {
		t.Fatalf("expected no link, got %q %v", none, err)
	}
}

func TestSurfaceWithoutDocument(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	surface, _ := newTestSurface(t, server)
	ctx := context.Background()

	if _, err := surface.InnerText(ctx); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if _, err := surface.FindLink(ctx, func(string) bool { return true }); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if surface.CurrentURL() != "" {
		t.Fatalf("expected empty current url")
	}
}

func TestSurfaceTransportFailureDoesNotFinish(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	surface, done := newTestSurface(t, server)

	surface.Load(context.Background(), "http://127.0.0.1:1/unreachable")

	select {
	case <-done:
		t.Fatal("failed navigation must not notify the delegate")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAbsolutize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                      "",
		"#anchor":               "",
		"JavaScript:alert(1)":   "",
		"mailto:a@b.c":          "",
		"/path":                 "https://removepaywalls.com/path",
		"https://archive.is/x":  "https://archive.is/x",
		"//archive.today/y?z=1": "https://archive.today/y?z=1",
	}
	base, err := url.Parse("https://removepaywalls.com/https://www.nytimes.com/x.html")
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	for in, want := range cases {
		if got := absolutize(base, in); got != want {
			t.Fatalf("absolutize(%q) = %q, want %q", in, got, want)
		}
	}
}
