package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"folio/internal/catalog"
	"folio/internal/compress"
	"folio/internal/config"
	"folio/internal/envelope"
	"folio/internal/logging"
	"folio/internal/metasync"
	"folio/internal/remote"
	"folio/internal/report"
)

// Catalog is the relational surface the orchestrator writes through.
type Catalog interface {
	metasync.Store
	CommitChapters(ctx context.Context, bookID uint32, chapters []catalog.Chapter, chaptersSaved uint32) error
	Finalize(ctx context.Context, bookID, chaptersSaved uint32, metaHash string) error
	ChapterIndices(ctx context.Context, bookID uint32) ([]uint32, error)
}

var _ Catalog = (*catalog.Store)(nil)

// Options tunes an Orchestrator.
type Options struct {
	Workers         int
	CheckpointEvery int
	ChapterAttempts int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	// BundlePath maps a book to its bundle file.
	BundlePath func(bookID uint32) string
	Logger     *slog.Logger
}

// OptionsFromConfig derives orchestrator options from the [ingest] and
// [remote] sections.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	initial, ceiling := cfg.RemoteBackoff()
	return Options{
		Workers:         cfg.Ingest.Workers,
		CheckpointEvery: cfg.Ingest.CheckpointEvery,
		ChapterAttempts: cfg.Ingest.ChapterAttempts,
		InitialBackoff:  initial,
		MaxBackoff:      ceiling,
		BundlePath:      cfg.BundlePath,
		Logger:          logger,
	}
}

// Orchestrator runs the pipeline over a set of books.
type Orchestrator struct {
	source    remote.Source
	catalog   Catalog
	sync      *metasync.Synchronizer
	decryptor *envelope.Decryptor
	codec     *compress.Codec
	opts      Options
	logger    *slog.Logger
}

// New wires an Orchestrator. The codec and decryptor are shared read-only by
// every worker.
func New(source remote.Source, cat Catalog, decryptor *envelope.Decryptor, codec *compress.Codec, opts Options) (*Orchestrator, error) {
	switch {
	case source == nil:
		return nil, errors.New("ingest: remote source required")
	case cat == nil:
		return nil, errors.New("ingest: catalog required")
	case decryptor == nil:
		return nil, errors.New("ingest: decryptor required")
	case codec == nil:
		return nil, errors.New("ingest: codec required")
	case opts.BundlePath == nil:
		return nil, errors.New("ingest: bundle path resolver required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 1
	}
	if opts.ChapterAttempts < 1 {
		opts.ChapterAttempts = 1
	}
	return &Orchestrator{
		source:    source,
		catalog:   cat,
		sync:      metasync.New(cat),
		decryptor: decryptor,
		codec:     codec,
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "ingest"),
	}, nil
}

// Run ingests every book on a pool of Workers goroutines. Book failures are
// recorded in the report and do not stop the run; a fatal error cancels the
// remaining books and is returned.
func (o *Orchestrator) Run(ctx context.Context, bookIDs []uint32) (*report.Report, error) {
	rep := report.New()
	ctx = logging.WithRunID(ctx, rep.RunID)
	logger := logging.WithContext(ctx, o.logger)

	ids := uniqueIDs(bookIDs)
	logger.Info("ingest run started",
		logging.Int("books", len(ids)),
		logging.Int("workers", o.opts.Workers),
		logging.Int("checkpoint_every", o.opts.CheckpointEvery),
		logging.String("mac_policy", o.decryptor.Policy().String()),
	)

	p := pool.New().WithMaxGoroutines(o.opts.Workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				rep.Add(report.BookResult{BookID: id, Outcome: report.OutcomeFailed, Reason: Reason(err), Error: err.Error()})
				return nil
			}
			result, err := o.IngestBook(ctx, id)
			rep.Add(result)
			if IsFatal(err) {
				return err
			}
			return nil
		})
	}
	err := p.Wait()
	if err == nil {
		err = ctx.Err()
	}
	rep.Finish(err)

	totals := rep.Totals()
	attrs := []logging.Attr{
		logging.Int("processed", totals.BooksProcessed),
		logging.Int("skipped", totals.BooksSkipped),
		logging.Int("failed", totals.BooksFailed),
		logging.Int("chapters", totals.ChaptersDecrypted),
		logging.Duration("elapsed", rep.Duration()),
	}
	if err != nil {
		logging.ErrorWithContext(logger, "ingest run aborted", "run_aborted",
			append(attrs,
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the catalog for rows written out of order"),
				logging.String(logging.FieldImpact, "remaining books were cancelled"),
			)...,
		)
		return rep, err
	}
	logger.Info("ingest run finished", logging.Args(attrs...)...)
	return rep, nil
}

func uniqueIDs(ids []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(ids))
	out := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
