package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRemote()
	c.normalizeCompression()
	c.normalizeIngest()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BundleDir) == "" {
		c.Paths.BundleDir = defaultBundleDir
	}
	if c.Paths.BundleDir, err = expandPath(c.Paths.BundleDir); err != nil {
		return fmt.Errorf("paths.bundle_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DBPath) == "" {
		c.Paths.DBPath = defaultDBPath
	}
	if c.Paths.DBPath, err = expandPath(c.Paths.DBPath); err != nil {
		return fmt.Errorf("paths.db_path: %w", err)
	}
	if value, ok := os.LookupEnv("FOLIO_DICTIONARY"); ok && strings.TrimSpace(c.Paths.DictionaryPath) == defaultDictionaryPath {
		c.Paths.DictionaryPath = strings.TrimSpace(value)
	}
	if c.Paths.DictionaryPath, err = expandPath(c.Paths.DictionaryPath); err != nil {
		return fmt.Errorf("paths.dictionary_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ReportLog) == "" {
		c.Paths.ReportLog = filepath.Join(c.Paths.LogDir, defaultReportLogName)
	}
	if c.Paths.ReportLog, err = expandPath(c.Paths.ReportLog); err != nil {
		return fmt.Errorf("paths.report_log: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote() {
	c.Remote.BaseURL = strings.TrimSpace(c.Remote.BaseURL)
	if c.Remote.BaseURL == "" {
		if value, ok := os.LookupEnv("FOLIO_REMOTE_URL"); ok {
			c.Remote.BaseURL = strings.TrimSpace(value)
		}
	}
	c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = defaultRemoteTimeout
	}
	if c.Remote.MaxRetries < 0 {
		c.Remote.MaxRetries = 0
	}
	if c.Remote.InitialBackoffMS <= 0 {
		c.Remote.InitialBackoffMS = defaultRemoteInitialBackMS
	}
	if c.Remote.MaxBackoffMS <= 0 {
		c.Remote.MaxBackoffMS = defaultRemoteMaxBackMS
	}
	c.Remote.UserAgent = strings.TrimSpace(c.Remote.UserAgent)
	if c.Remote.UserAgent == "" {
		c.Remote.UserAgent = defaultRemoteUserAgent
	}
}

func (c *Config) normalizeCompression() {
	if c.Compression.Level == 0 {
		c.Compression.Level = defaultCompressionLevel
	}
}

func (c *Config) normalizeIngest() {
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = defaultIngestWorkers
	}
	if c.Ingest.CheckpointEvery == 0 {
		c.Ingest.CheckpointEvery = defaultCheckpointEvery
	}
	if c.Ingest.ChapterAttempts == 0 {
		c.Ingest.ChapterAttempts = defaultChapterAttempts
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
