package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"folio/internal/bundle"
	"folio/internal/report"
)

func newBundleCommand(ctx *commandContext) *cobra.Command {
	bundleCmd := &cobra.Command{
		Use:   "bundle",
		Short: "Inspect chapter bundles",
	}
	bundleCmd.AddCommand(newBundleListCommand(ctx))
	bundleCmd.AddCommand(newBundleCatCommand(ctx))
	bundleCmd.AddCommand(newBundleMetaCommand(ctx))
	bundleCmd.AddCommand(newBundleStatsCommand(ctx))
	bundleCmd.AddCommand(newBundleExportCommand(ctx))
	return bundleCmd
}

func newBundleListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List bundles in the bundle directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			matches, err := filepath.Glob(filepath.Join(cfg.Paths.BundleDir, "*.blib"))
			if err != nil {
				return err
			}
			sort.Slice(matches, func(i, j int) bool { return bookNumber(matches[i]) < bookNumber(matches[j]) })

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(out, "No bundles in %s\n", cfg.Paths.BundleDir)
				return nil
			}
			rows := make([][]string, 0, len(matches))
			for _, path := range matches {
				info, err := bundle.Inspect(path)
				if err != nil {
					return err
				}
				version := "v" + strconv.FormatUint(uint64(info.Version), 10)
				if info.Corrupt {
					version = "corrupt"
				}
				rows = append(rows, []string{
					strings.TrimSuffix(filepath.Base(path), ".blib"),
					version,
					strconv.Itoa(len(info.Indices)),
					strconv.FormatUint(uint64(info.AnchorIndex), 10),
					humanize.IBytes(uint64(info.Size)),
				})
			}
			fmt.Fprintln(out, report.Table(
				[]string{"Book", "Version", "Chapters", "Highest", "Size"},
				rows,
				[]report.Alignment{report.AlignRight, report.AlignLeft, report.AlignRight, report.AlignRight, report.AlignRight},
			))
			return nil
		},
	}
}

func bookNumber(path string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSuffix(filepath.Base(path), ".blib"), 10, 32)
	if err != nil {
		return ^uint64(0)
	}
	return n
}

func newBundleCatCommand(ctx *commandContext) *cobra.Command {
	var withTitle bool

	cmd := &cobra.Command{
		Use:   "cat <book-id|path> <index>",
		Short: "Print a chapter body",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, _, err := resolveBundle(cfg, args[0])
			if err != nil {
				return err
			}
			idx, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid chapter index %q", args[1])
			}
			codec, err := ctx.openCodec()
			if err != nil {
				return err
			}
			defer codec.Close()

			body, err := bundle.ReadBody(path, uint32(idx), codec)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if withTitle {
				if meta, err := bundle.ReadMeta(path, uint32(idx)); err == nil && meta.Title != "" {
					fmt.Fprintf(out, "%s\n\n", meta.Title)
				}
			}
			fmt.Fprintln(out, string(body))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&withTitle, "title", "t", false, "Print the stored title first (v2 bundles)")
	return cmd
}

func newBundleMetaCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "meta <book-id|path> [index]",
		Short: "Show chapter metadata stored in a v2 bundle",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, _, err := resolveBundle(cfg, args[0])
			if err != nil {
				return err
			}

			metas := map[uint32]bundle.Meta{}
			if len(args) == 2 {
				idx, err := strconv.ParseUint(args[1], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid chapter index %q", args[1])
				}
				meta, err := bundle.ReadMeta(path, uint32(idx))
				if err != nil {
					return err
				}
				metas[uint32(idx)] = meta
			} else {
				metas, err = bundle.ReadAllMeta(path)
				if err != nil {
					return err
				}
			}

			indices := make([]uint32, 0, len(metas))
			for idx := range metas {
				indices = append(indices, idx)
			}
			sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
			rows := make([][]string, 0, len(indices))
			for _, idx := range indices {
				m := metas[idx]
				rows = append(rows, []string{
					strconv.FormatUint(uint64(idx), 10),
					strconv.FormatUint(uint64(m.RemoteID), 10),
					m.Title,
					m.Slug,
					humanize.Comma(int64(m.WordCount)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Table(
				[]string{"Index", "Remote ID", "Title", "Slug", "Words"},
				rows,
				[]report.Alignment{report.AlignRight, report.AlignRight, report.AlignLeft, report.AlignLeft, report.AlignRight},
			))
			return nil
		},
	}
}

func newBundleStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <book-id|path>...",
		Short: "Show storage statistics for bundles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(args))
			for _, arg := range args {
				path, _, err := resolveBundle(cfg, arg)
				if err != nil {
					return err
				}
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("bundle %s: %w", path, err)
				}
				s, err := bundle.Stats(path)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					filepath.Base(path),
					"v" + strconv.FormatUint(uint64(s.Version), 10),
					strconv.Itoa(s.Entries),
					fmt.Sprintf("%d-%d", s.FirstIndex, s.LastIndex),
					strconv.FormatUint(uint64(s.Gaps), 10),
					humanize.IBytes(s.RawBytes),
					humanize.IBytes(s.CompressedBytes),
					humanize.IBytes(s.OverheadBytes),
					fmt.Sprintf("%.2fx", s.Ratio),
					humanize.IBytes(uint64(s.FileSize)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Table(
				[]string{"Bundle", "Version", "Chapters", "Range", "Gaps", "Raw", "Compressed", "Overhead", "Ratio", "File"},
				rows,
				[]report.Alignment{report.AlignLeft, report.AlignLeft, report.AlignRight, report.AlignRight, report.AlignRight,
					report.AlignRight, report.AlignRight, report.AlignRight, report.AlignRight, report.AlignRight},
			))
			return nil
		},
	}
}
