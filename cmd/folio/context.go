package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"folio/internal/bundle"
	"folio/internal/catalog"
	"folio/internal/compress"
	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/remote"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil {
			if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
				cfg.Logging.Level = level
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger builds the process logger once and runs startup housekeeping:
// log retention and removal of temp files left by interrupted merges.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
			logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: "*.log",
				Exclude: []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
			},
		)
		if removed, err := bundle.CleanupTemp(cfg.Paths.BundleDir); err != nil {
			logging.WarnWithContext(logger, "bundle temp cleanup failed", "temp_cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on paths.bundle_dir"),
			)
		} else if removed > 0 {
			logger.Info("removed stale bundle temp files", logging.Int("count", removed))
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) openCatalog() (*catalog.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return store, nil
}

func (c *commandContext) openCodec() (*compress.Codec, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	dict, err := compress.LoadDictionary(cfg.Paths.DictionaryPath)
	if err != nil {
		return nil, fmt.Errorf("load dictionary (paths.dictionary_path): %w", err)
	}
	codec, err := compress.NewCodec(dict, cfg.Compression.Level, compress.WithConcurrency(cfg.Ingest.Workers))
	if err != nil {
		return nil, fmt.Errorf("init codec: %w", err)
	}
	return codec, nil
}

func (c *commandContext) newRemote(logger *slog.Logger) (*remote.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := remote.NewFromConfig(cfg, remote.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init remote client: %w", err)
	}
	return client, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
