package preflight

import (
	"context"
	"path/filepath"

	"folio/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options toggles the checks that need something beyond the local filesystem.
type Options struct {
	// SkipRemote leaves the chapter API out, for offline commands.
	SkipRemote bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Bundle directory", cfg.Paths.BundleDir),
		CheckDirectoryAccess("Catalog directory", filepath.Dir(cfg.Paths.DBPath)),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDictionary(cfg.Paths.DictionaryPath),
	}
	if !opts.SkipRemote {
		results = append(results, CheckRemote(ctx, cfg.Remote.BaseURL, cfg.Remote.UserAgent))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
