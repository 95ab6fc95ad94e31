package testsupport

import (
	"path/filepath"
	"testing"

	"folio/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Remote retries and backoff are shrunk so failure paths stay fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BundleDir = filepath.Join(base, "bundles")
	cfgVal.Paths.DBPath = filepath.Join(base, "catalog.db")
	cfgVal.Paths.DictionaryPath = filepath.Join(base, "chapters.dict")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ReportLog = filepath.Join(base, "logs", "runs.jsonl")
	cfgVal.Remote.BaseURL = "http://127.0.0.1:0"
	cfgVal.Remote.TimeoutSeconds = 5
	cfgVal.Remote.MaxRetries = 1
	cfgVal.Remote.InitialBackoffMS = 1
	cfgVal.Remote.MaxBackoffMS = 5
	cfgVal.Remote.RequestsPerSec = 0
	cfgVal.Compression.Level = 3
	cfgVal.Ingest.Workers = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRemote points the config at a fake or real chapter API.
func WithRemote(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.BaseURL = baseURL
	}
}

// WithCheckpointEvery overrides the checkpoint interval.
func WithCheckpointEvery(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.CheckpointEvery = n
	}
}

// WithWorkers overrides the book worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.Workers = n
	}
}

// WithChapterAttempts overrides the per-chapter attempt budget.
func WithChapterAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.ChapterAttempts = n
	}
}

// WithVerifyMAC enables envelope MAC verification.
func WithVerifyMAC() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Envelope.VerifyMAC = true
	}
}

// WithDictionary writes content to the configured dictionary path.
func WithDictionary(content []byte) ConfigOption {
	return func(b *configBuilder) {
		WriteFile(b.t, b.cfg.Paths.DictionaryPath, content)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.BundleDir)
}
