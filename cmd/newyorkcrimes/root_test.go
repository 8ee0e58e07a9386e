package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("NYCRIMES_CONFIG", "")
	t.Setenv("NYCRIMES_HISTORY_DSN", "")

	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, _, err := run(t, "classify",
		"https://www.nytimes.com/2024/03/05/us/politics/example.html",
		"https://archive.ph/Snap9",
	)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(lines[0], "nyt_article") || !strings.Contains(lines[0], "intercept=true") {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "archive") || !strings.Contains(lines[1], "intercept=false") {
		t.Fatalf("unexpected second line: %q", lines[1])
	}
}

func TestResolveCommandRejectsNonArticles(t *testing.T) {
	_, stderr, err := run(t, "resolve", "https://example.com/story")
	if err == nil {
		t.Fatal("expected failure for non-article url")
	}
	if !strings.Contains(stderr, "not an article") {
		t.Fatalf("unexpected stderr: %q", stderr)
	}
}

func TestResolveCommandRequiresArgs(t *testing.T) {
	if _, _, err := run(t, "resolve"); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestHistoryCommand(t *testing.T) {
	_, stderr, err := run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(stderr, "no recorded resolutions") {
		t.Fatalf("unexpected stderr: %q", stderr)
	}

	dsn := filepath.Join(t.TempDir(), "history.db")
	t.Setenv("NYCRIMES_HISTORY_DSN", dsn)
	var stdout, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&errOut)
	root.SetArgs([]string{"history", "--limit", "5"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("history with sqlite: %v", err)
	}
	if stdout.Len() != 0 {
		t.Fatalf("fresh database should be empty: %q", stdout.String())
	}
}
