package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"folio/internal/envelope"
	"folio/internal/ingest"
	"folio/internal/logging"
	"folio/internal/preflight"
	"folio/internal/report"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var idFile string
	var all bool
	var workers int
	var checkpointEvery int
	var plain bool

	cmd := &cobra.Command{
		Use:   "ingest [book-id...]",
		Short: "Fetch, decrypt, and bundle new chapters for books",
		Long: `Ingest walks each book's remote chapter list, decrypts and compresses every
chapter not yet stored locally, and merges them into the book's bundle at
checkpoints. Books whose metadata is unchanged and fully saved are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Ingest.Workers = workers
			}
			if checkpointEvery > 0 {
				cfg.Ingest.CheckpointEvery = checkpointEvery
			}

			ids, err := parseBookIDs(args)
			if err != nil {
				return err
			}
			if idFile != "" {
				fromFile, err := readBookIDFile(idFile)
				if err != nil {
					return err
				}
				ids = append(ids, fromFile...)
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

			if all {
				books, err := store.ListBooks(cmd.Context())
				if err != nil {
					return fmt.Errorf("list catalog books: %w", err)
				}
				for _, b := range books {
					ids = append(ids, b.ID)
				}
			}
			if len(ids) == 0 {
				return errors.New("no books given; pass book ids, --file, or --all")
			}

			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg, preflight.Options{SkipRemote: true})); len(failed) > 0 {
				for _, r := range failed {
					logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
						logging.String("check", r.Name),
						logging.String("detail", r.Detail),
						logging.String(logging.FieldErrorHint, "run folio check for details"),
					)
				}
				return fmt.Errorf("preflight failed: %s: %s", failed[0].Name, failed[0].Detail)
			}

			codec, err := ctx.openCodec()
			if err != nil {
				return err
			}
			defer codec.Close()
			client, err := ctx.newRemote(logger)
			if err != nil {
				return err
			}

			orch, err := ingest.New(client, store,
				envelope.NewDecryptor(envelope.PolicyFromConfig(cfg.Envelope.VerifyMAC)),
				codec, ingest.OptionsFromConfig(cfg, logger))
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rep, runErr := orch.Run(signalCtx, ids)
			if rep != nil {
				if err := report.AppendJSONL(cfg.Paths.ReportLog, rep); err != nil {
					logging.WarnWithContext(logger, "run report not saved", "report_append_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check paths.report_log"),
					)
				}
				out := cmd.OutOrStdout()
				pretty := !plain && out == os.Stdout && report.IsTerminal(os.Stdout)
				if err := report.Render(out, rep, pretty); err != nil {
					return err
				}
			}
			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					return runErr
				}
				return fmt.Errorf("ingest aborted: %w", runErr)
			}
			if failed := rep.Totals().BooksFailed; failed > 0 {
				return fmt.Errorf("%d book(s) failed; see the report above", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&idFile, "file", "f", "", "File with one book id per line")
	cmd.Flags().BoolVar(&all, "all", false, "Ingest every book already in the catalog")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Override ingest.workers")
	cmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0, "Override ingest.checkpoint_every")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain output even on a terminal")
	return cmd
}
