package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/folio/config.toml"
		}
		return fmt.Errorf("remote.base_url is required. Set FOLIO_REMOTE_URL env var or edit %s (create with 'folio config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("remote.base_url %q must be an absolute http(s) URL", c.Remote.BaseURL)
	}
	if c.Remote.RequestsPerSec < 0 {
		return errors.New("remote.requests_per_second must be >= 0 (0 disables throttling)")
	}
	if c.Remote.MaxBackoffMS < c.Remote.InitialBackoffMS {
		return errors.New("remote.max_backoff_ms must be >= remote.initial_backoff_ms")
	}
	return ensurePositiveMap(map[string]int{
		"remote.timeout_seconds":    c.Remote.TimeoutSeconds,
		"remote.initial_backoff_ms": c.Remote.InitialBackoffMS,
	})
}

func (c *Config) validateCompression() error {
	if c.Compression.Level < 1 || c.Compression.Level > 22 {
		return errors.New("compression.level must be between 1 and 22")
	}
	return nil
}

func (c *Config) validateIngest() error {
	return ensurePositiveMap(map[string]int{
		"ingest.workers":          c.Ingest.Workers,
		"ingest.checkpoint_every": c.Ingest.CheckpointEvery,
		"ingest.chapter_attempts": c.Ingest.ChapterAttempts,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
