package preflight_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"folio/internal/preflight"
	"folio/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := preflight.CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := preflight.CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	testsupport.WriteFile(t, path, testsupport.DictionaryText)

	result := preflight.CheckDictionary(path)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "raw") {
		t.Fatalf("expected raw dictionary detail, got %q", result.Detail)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	testsupport.WriteFile(t, empty, nil)
	if preflight.CheckDictionary(empty).Passed {
		t.Fatal("expected failure for empty dictionary")
	}
	if preflight.CheckDictionary(filepath.Join(t.TempDir(), "missing")).Passed {
		t.Fatal("expected failure for missing dictionary")
	}
}

func TestCheckRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "folio-test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := preflight.CheckRemote(context.Background(), srv.URL, "folio-test")
	if !result.Passed {
		t.Fatalf("expected 404 root to count as reachable, got: %s", result.Detail)
	}
}

func TestCheckRemote_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := preflight.CheckRemote(context.Background(), srv.URL, "")
	if result.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestCheckRemote_MissingURL(t *testing.T) {
	if preflight.CheckRemote(context.Background(), "  ", "").Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckRemote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if preflight.CheckRemote(context.Background(), url, "").Passed {
		t.Fatal("expected failure for closed server")
	}
}

func TestRunAll(t *testing.T) {
	fake := testsupport.NewFakeRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(fake.URL()), testsupport.WithDictionary(testsupport.DictionaryText))

	results := preflight.RunAll(context.Background(), cfg, preflight.Options{})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if failed := preflight.Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	offline := preflight.RunAll(context.Background(), cfg, preflight.Options{SkipRemote: true})
	if len(offline) != 4 {
		t.Fatalf("expected remote check skipped, got %d results", len(offline))
	}

	cfg.Paths.DictionaryPath = filepath.Join(t.TempDir(), "missing")
	failed := preflight.Failed(preflight.RunAll(context.Background(), cfg, preflight.Options{SkipRemote: true}))
	if len(failed) != 1 || failed[0].Name != "Dictionary" {
		t.Fatalf("expected dictionary failure only, got %+v", failed)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if got := preflight.RunAll(context.Background(), nil, preflight.Options{}); got != nil {
		t.Fatalf("expected nil results, got %+v", got)
	}
}
