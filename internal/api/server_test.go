package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/usecase"
)

const article = "https://www.nytimes.com/2024/03/05/us/politics/example.html"

type stubService struct {
	resolution domain.Resolution
	err        error
	history    []domain.Resolution
	historyErr error

	mu        sync.Mutex
	lastLimit int
}

func (s *stubService) Resolve(_ context.Context, raw string) (domain.Resolution, error) {
	if s.err != nil {
		return domain.Resolution{}, s.err
	}
	res := s.resolution
	res.Original = raw
	return res, nil
}

func (s *stubService) History(_ context.Context, limit int) ([]domain.Resolution, error) {
	s.mu.Lock()
	s.lastLimit = limit
	s.mu.Unlock()
	return s.history, s.historyErr
}

func (s *stubService) Classify(raw string) (domain.HostClass, bool) {
	if raw == article {
		return domain.HostNYTArticle, true
	}
	return domain.HostOther, false
}

func newTestServer(t *testing.T, svc Service) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewServer(svc, nil).Router())
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, target string, out any) int {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &stubService{})
	var payload map[string]string
	if code := getJSON(t, server.URL+"/health", &payload); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if payload["status"] != "ok" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &stubService{})
	var payload map[string]any
	code := getJSON(t, server.URL+"/classify?url="+url.QueryEscape(article), &payload)
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if payload["class"] != string(domain.HostNYTArticle) || payload["intercept"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}

	var missing map[string]string
	if code := getJSON(t, server.URL+"/classify", &missing); code != http.StatusBadRequest || missing["error"] == "" {
		t.Fatalf("expected bad request, got %d %v", code, missing)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	svc := &stubService{resolution: domain.Resolution{
		ID:       "abc",
		Resolved: "https://archive.ph/Snap9",
		Stage:    domain.StageArchiveSnapshot,
		Duration: 1200 * time.Millisecond,
	}}
	server := newTestServer(t, svc)

	var payload map[string]any
	code := getJSON(t, server.URL+"/resolve?url="+url.QueryEscape(article), &payload)
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if payload["resolved"] != "https://archive.ph/Snap9" || payload["original"] != article {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["duration_ms"] != float64(1200) {
		t.Fatalf("unexpected duration %v", payload["duration_ms"])
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not article", fmt.Errorf("%w: x", usecase.ErrNotArticle), http.StatusUnprocessableEntity},
		{"invalid", fmt.Errorf("%w: x", usecase.ErrInvalidURL), http.StatusBadRequest},
		{"deadline", fmt.Errorf("resolve: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, &stubService{err: tc.err})
			var payload map[string]any
			code := getJSON(t, server.URL+"/resolve?url="+url.QueryEscape("https://example.com/a"), &payload)
			if code != tc.code {
				t.Fatalf("status %d, want %d", code, tc.code)
			}
			if tc.code == http.StatusUnprocessableEntity {
				if payload["intercept"] != false {
					t.Fatalf("unexpected payload %v", payload)
				}
				return
			}
			if payload["error"] == nil {
				t.Fatalf("missing error body: %v", payload)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	svc := &stubService{history: []domain.Resolution{{ID: "a", Original: article, Resolved: article, Fallback: true}}}
	server := newTestServer(t, svc)

	var payload struct {
		Resolutions []map[string]any `json:"resolutions"`
	}
	if code := getJSON(t, server.URL+"/history?limit=1000", &payload); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(payload.Resolutions) != 1 || payload.Resolutions[0]["fallback"] != true {
		t.Fatalf("unexpected payload %+v", payload)
	}
	svc.mu.Lock()
	limit := svc.lastLimit
	svc.mu.Unlock()
	if limit != maxHistoryLimit {
		t.Fatalf("limit not clamped: %d", limit)
	}

	var bad map[string]string
	if code := getJSON(t, server.URL+"/history?limit=abc", &bad); code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", code)
	}
}
