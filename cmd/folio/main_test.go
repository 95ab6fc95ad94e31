package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"folio/internal/config"
	"folio/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	fake       *testsupport.FakeRemote
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	fake := testsupport.NewFakeRemote(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithRemote(fake.URL()),
		testsupport.WithDictionary(testsupport.DictionaryText),
		testsupport.WithCheckpointEvery(3),
	)
	cfg.Logging.Level = "error"

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "folio.toml")
	testsupport.WriteFile(t, configPath, data)

	return &cliTestEnv{cfg: cfg, fake: fake, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestIngestAndInspectBundles(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.AddBook(1, 7)
	env.fake.AddBook(2, 2)

	out, _, err := runCLI(t, []string{"ingest", "1", "2", "--plain"}, env.configPath)
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	requireContains(t, out, "books processed=2 skipped=0 failed=0")
	requireContains(t, out, "book=1 outcome=processed strategy=forward new=7")

	if _, err := os.Stat(env.cfg.Paths.ReportLog); err != nil {
		t.Fatalf("expected run report log: %v", err)
	}

	out, _, err = runCLI(t, []string{"ingest", "1", "--plain"}, env.configPath)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	requireContains(t, out, "book=1 outcome=skipped")

	out, _, err = runCLI(t, []string{"bundle", "ls"}, env.configPath)
	if err != nil {
		t.Fatalf("bundle ls: %v", err)
	}
	requireContains(t, out, "Chapters")
	requireContains(t, out, "v2")

	out, _, err = runCLI(t, []string{"bundle", "cat", "1", "4", "--title"}, env.configPath)
	if err != nil {
		t.Fatalf("bundle cat: %v", err)
	}
	requireContains(t, out, testsupport.ChapterTitle(4))
	requireContains(t, out, testsupport.ChapterBody(1, 4))

	out, _, err = runCLI(t, []string{"bundle", "meta", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("bundle meta: %v", err)
	}
	requireContains(t, out, testsupport.ChapterTitle(7))

	out, _, err = runCLI(t, []string{"bundle", "stats", "1", env.cfg.BundlePath(2)}, env.configPath)
	if err != nil {
		t.Fatalf("bundle stats: %v", err)
	}
	requireContains(t, out, "1.blib")
	requireContains(t, out, "2.blib")
	requireContains(t, out, "1-7")

	exportDir := t.TempDir()
	out, _, err = runCLI(t, []string{"bundle", "export", "1", exportDir}, env.configPath)
	if err != nil {
		t.Fatalf("bundle export: %v", err)
	}
	requireContains(t, out, "7 chapters")
	original := testsupport.ReadFile(t, env.cfg.BundlePath(1))
	if exported := testsupport.ReadFile(t, filepath.Join(exportDir, "1.blib")); !bytes.Equal(exported, original) {
		t.Fatal("exported bundle differs from the original")
	}

	out, _, err = runCLI(t, []string{"recover", "1", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	requireContains(t, out, "ok")
}

func TestIngestReportsFailedBooks(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.AddBook(3, 2)

	out, _, err := runCLI(t, []string{"ingest", "3", "4", "--plain"}, env.configPath)
	if err == nil {
		t.Fatal("expected error when a book fails")
	}
	requireContains(t, err.Error(), "1 book(s) failed")
	requireContains(t, out, "book=4 outcome=failed")
	requireContains(t, out, "reason=not_found")
}

func TestIngestRequiresBooks(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"ingest"}, env.configPath); err == nil {
		t.Fatal("expected error without book ids")
	}
}

func TestIngestReadsIDFile(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.AddBook(5, 1)
	env.fake.AddBook(6, 1)
	idFile := filepath.Join(t.TempDir(), "ids.txt")
	testsupport.WriteFile(t, idFile, []byte("# backlog\n5\n\n6\n"))

	out, _, err := runCLI(t, []string{"ingest", "--file", idFile, "--plain"}, env.configPath)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	requireContains(t, out, "books processed=2")
}

func TestCheckCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Bundle directory")
	requireContains(t, out, "Chapter API")

	if err := os.Remove(env.cfg.Paths.DictionaryPath); err != nil {
		t.Fatalf("remove dictionary: %v", err)
	}
	out, _, err = runCLI(t, []string{"check", "--offline"}, env.configPath)
	if err == nil {
		t.Fatal("expected check failure without a dictionary")
	}
	requireContains(t, out, "FAIL")
	if strings.Contains(out, "Chapter API") {
		t.Fatalf("expected remote check skipped offline, got %q", out)
	}

	env.fake.AddBook(8, 1)
	_, _, err = runCLI(t, []string{"ingest", "8", "--plain"}, env.configPath)
	if err == nil {
		t.Fatal("expected ingest to stop at preflight")
	}
	requireContains(t, err.Error(), "preflight failed: Dictionary")
	if got := env.fake.BookFetches(8); got != 0 {
		t.Fatalf("expected no remote traffic, got %d book fetches", got)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}

func TestParseBookIDs(t *testing.T) {
	ids, err := parseBookIDs([]string{"1,2", "3"})
	if err != nil {
		t.Fatalf("parseBookIDs: %v", err)
	}
	if len(ids) != 3 || ids[2] != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if _, err := parseBookIDs([]string{"x"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
	if _, err := parseBookIDs([]string{"0"}); err == nil {
		t.Fatal("expected error for zero id")
	}
}
