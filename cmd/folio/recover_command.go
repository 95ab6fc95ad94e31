package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"folio/internal/ingest"
	"folio/internal/remote"
	"folio/internal/report"
)

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "recover <book-id>...",
		Short: "Rebuild catalog chapter rows from bundle metadata",
		Long: `Recover compares each book's chapter rows with its v2 bundle and recreates
missing rows from the metadata stored in front of every chapter body. A book
row that no longer exists is re-created from the remote metadata unless
--offline is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ids, err := parseBookIDs(args)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			var source remote.Source
			if !offline {
				client, err := ctx.newRemote(logger)
				if err != nil {
					return err
				}
				source = client
			}

			rows := make([][]string, 0, len(ids))
			var failures int
			for _, id := range ids {
				result, recErr := ingest.Reconcile(cmd.Context(), store, source, cfg.BundlePath(id), id)
				status := "ok"
				if recErr != nil {
					failures++
					status = recErr.Error()
				}
				rows = append(rows, []string{
					strconv.FormatUint(uint64(id), 10),
					strconv.Itoa(result.BundleEntries),
					strconv.Itoa(result.RowsBefore),
					strconv.Itoa(result.Rebuilt),
					yesNo(result.BookCreated),
					status,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Table(
				[]string{"Book", "Bundle", "Rows before", "Rebuilt", "Book created", "Status"},
				rows,
				[]report.Alignment{report.AlignRight, report.AlignRight, report.AlignRight, report.AlignRight, report.AlignLeft, report.AlignLeft},
			))
			if failures > 0 {
				return fmt.Errorf("%d book(s) could not be recovered", failures)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Do not contact the remote API")
	return cmd
}
