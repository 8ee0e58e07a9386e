package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"NewYorkCrimes/internal/config"
	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/hosts"
	"NewYorkCrimes/internal/logging"
	"NewYorkCrimes/internal/resolver/resolvertest"
)

const article = "https://www.nytimes.com/2024/03/05/us/politics/example.html"

func TestApplicationResolveRecordsHistory(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Resolver.Timeout = 2 * time.Second
	cfg.History.DSN = filepath.Join(t.TempDir(), "history.db")

	rules := hosts.FromConfig(cfg.Hosts)
	run := rules.ArchiveRunURL(article)
	pages := resolvertest.NewFactory(map[string][]resolvertest.Response{
		rules.AggregatorURL(article): {{Text: "Option 1 Option 2"}},
		run:                          {{Final: "https://archive.today/AbCd1", Text: "article body"}},
	})

	ctx := context.Background()
	application, err := New(ctx, cfg, logging.Discard(), pages)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = application.Close() })

	res, err := application.Resolve(ctx, article)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Resolved != "https://archive.today/AbCd1" || res.Stage != domain.StageArchiveSnapshot {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	recent, err := application.History(ctx, 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != res.ID || len(recent[0].Trail) != 2 {
		t.Fatalf("unexpected history: %+v", recent)
	}
}

func TestApplicationRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Resolver.Timeout = 0
	if _, err := New(context.Background(), cfg, logging.Discard(), resolvertest.NewFactory(nil)); err == nil {
		t.Fatal("expected validation error")
	}

	cfg = config.Default()
	cfg.Probe.Patterns = []string{"("}
	if _, err := New(context.Background(), cfg, logging.Discard(), resolvertest.NewFactory(nil)); err == nil {
		t.Fatal("expected probe compile error")
	}
}

func TestApplicationClassify(t *testing.T) {
	t.Parallel()

	application, err := New(context.Background(), config.Default(), logging.Discard(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if class, ok := application.Classify(article); class != domain.HostNYTArticle || !ok {
		t.Fatalf("unexpected classification: %s %v", class, ok)
	}
	if items, err := application.History(context.Background(), 5); err != nil || len(items) != 0 {
		t.Fatalf("history should be empty without a database: %v %v", items, err)
	}
}

func TestApplicationServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.History.DSN = filepath.Join(t.TempDir(), "history.db")

	application, err := New(context.Background(), cfg, logging.Discard(), resolvertest.NewFactory(nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = application.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- application.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
