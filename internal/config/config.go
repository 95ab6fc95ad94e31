package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations used by the pipeline.
type Paths struct {
	BundleDir      string `toml:"bundle_dir"`
	DBPath         string `toml:"db_path"`
	DictionaryPath string `toml:"dictionary_path"`
	LogDir         string `toml:"log_dir"`
	ReportLog      string `toml:"report_log"`
}

// Remote contains connection, throttling, and retry settings for the chapter API.
type Remote struct {
	BaseURL          string  `toml:"base_url"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	MaxRetries       int     `toml:"max_retries"`
	InitialBackoffMS int     `toml:"initial_backoff_ms"`
	MaxBackoffMS     int     `toml:"max_backoff_ms"`
	RequestsPerSec   float64 `toml:"requests_per_second"`
	UserAgent        string  `toml:"user_agent"`
}

// Envelope controls the chapter decryption policy.
type Envelope struct {
	// VerifyMAC enables HMAC-SHA256 verification of every envelope. The
	// upstream service never rejects a tampered MAC itself, so verification is
	// opt-in and off by default.
	VerifyMAC bool `toml:"verify_mac"`
}

// Compression controls the dictionary codec.
type Compression struct {
	// Level is a zstd compression level (1-22). Keep it fixed for a given
	// dictionary generation.
	Level int `toml:"level"`
}

// Ingest controls worker pool sizing and checkpoint cadence.
type Ingest struct {
	Workers         int `toml:"workers"`
	CheckpointEvery int `toml:"checkpoint_every"`
	ChapterAttempts int `toml:"chapter_attempts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Folio.
//
// Configuration sections by subsystem:
//   - Paths: bundle directory, catalog database, dictionary, logs, run report log
//   - Remote: chapter API base URL, timeouts, retries, throttling
//   - Envelope: MAC verification policy
//   - Compression: dictionary codec level
//   - Ingest: worker count, checkpoint interval, per-chapter attempts
//   - Logging: log format, level, and retention
type Config struct {
	Paths       Paths       `toml:"paths"`
	Remote      Remote      `toml:"remote"`
	Envelope    Envelope    `toml:"envelope"`
	Compression Compression `toml:"compression"`
	Ingest      Ingest      `toml:"ingest"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/folio/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("folio.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.BundleDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.DBPath),
		filepath.Dir(c.Paths.ReportLog),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// BundlePath returns the canonical bundle location for a book.
func (c *Config) BundlePath(bookID uint32) string {
	return filepath.Join(c.Paths.BundleDir, fmt.Sprintf("%d.blib", bookID))
}

// RemoteTimeout returns the per-request HTTP timeout.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// RemoteBackoff returns the initial and maximum retry backoff.
func (c *Config) RemoteBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Remote.InitialBackoffMS) * time.Millisecond,
		time.Duration(c.Remote.MaxBackoffMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
