package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"folio/internal/bundle"
	"folio/internal/config"
	"folio/internal/fileutil"
)

func newBundleExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <book-id|path> <destination>",
		Short: "Copy a bundle out under its book lock",
		Long: `Export copies a bundle while holding the book lock, so an ingest run cannot
merge into it mid-copy. The destination may be a directory. The copy is
verified by size and SHA-256 before it is renamed into place.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			src, _, err := resolveBundle(cfg, args[0])
			if err != nil {
				return err
			}
			dst, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			if info, err := os.Stat(dst); err == nil && info.IsDir() {
				dst = filepath.Join(dst, filepath.Base(src))
			}
			if dst == src {
				return fmt.Errorf("destination is the bundle itself")
			}

			lock, err := bundle.Lock(src)
			if err != nil {
				return err
			}
			defer lock.Release()

			info, err := bundle.Inspect(src)
			if err != nil {
				return err
			}
			if !info.Exists {
				return fmt.Errorf("%s: no bundle", src)
			}
			if info.Corrupt {
				return info.Cause
			}

			result, err := fileutil.CopyVerified(src, dst)
			if err != nil {
				return fmt.Errorf("export bundle: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s (%s, %d chapters, sha256 %s)\n",
				src, dst, humanize.IBytes(uint64(result.Bytes)), len(info.Indices), result.SHA256)
			return nil
		},
	}
}
