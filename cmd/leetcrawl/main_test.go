package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("..", "..", "pkg", "catalog", "testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return body
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.Writer = &out
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := root.Run(ctx, append([]string{"leetcrawl"}, args...)); err != nil {
		t.Fatalf("leetcrawl %v failed: %v\noutput:\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCLI_OfflineServer(t *testing.T) {
	listing := fixture(t, "listing.json")
	detail := fixture(t, "two_sum.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/problems/algorithms/":
			w.Write(listing)
		case "/graphql":
			var req struct {
				Variables map[string]string `json:"variables"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if req.Variables["titleSlug"] == "two-sum" {
				w.Write(detail)
				return
			}
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Setenv("LEETCRAWL_FETCH_CATEGORIES", "algorithms")
	t.Setenv("LEETCRAWL_LOG_LEVEL", "error")
	dbPath := filepath.Join(t.TempDir(), "leetcode.db")
	common := []string{"--db", dbPath, "--base-url", srv.URL, "--rate", "1000"}

	out := run(t, append(common, "migrate")...)
	if !strings.Contains(out, "up to date") {
		t.Fatalf("unexpected migrate output:\n%s", out)
	}

	out = run(t, append(common, "list")...)
	if !strings.Contains(out, "1 documents") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	out = run(t, append(common, "frontier")...)
	ids := strings.Fields(out)
	if len(ids) != 2 {
		t.Fatalf("expected 2 pending ids, got %q", out)
	}

	out = run(t, append(common, "crawl", "--skip-list", "--workers", "1")...)
	if !strings.Contains(out, "1 fetch failures") {
		t.Fatalf("unexpected crawl output:\n%s", out)
	}

	out = run(t, append(common, "stats")...)
	for _, want := range []string{"items          2", "enrichments    1", "pending        1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output missing %q:\n%s", want, out)
		}
	}

	out = run(t, append(common, "show", "two-sum")...)
	var item map[string]any
	if err := json.Unmarshal([]byte(out), &item); err != nil {
		t.Fatalf("show output is not JSON: %v\n%s", err, out)
	}
	if item["accept_rate"] != 53.2 {
		t.Fatalf("expected accept_rate 53.2, got %v", item["accept_rate"])
	}
}

func TestCLI_DetailRequiresSlug(t *testing.T) {
	root := newRootCommand()
	root.Writer = &bytes.Buffer{}
	err := root.Run(context.Background(), []string{"leetcrawl", "--db", filepath.Join(t.TempDir(), "x.db"), "detail"})
	if err == nil {
		t.Fatal("expected error without slug")
	}
}
