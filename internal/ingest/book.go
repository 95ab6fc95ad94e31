package ingest

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"folio/internal/bundle"
	"folio/internal/chapter"
	"folio/internal/logging"
	"folio/internal/remote"
	"folio/internal/report"
	"folio/internal/walk"
)

// bookRun is the state of one book while its walk is in progress.
type bookRun struct {
	o       *Orchestrator
	bookID  uint32
	path    string
	logger  *slog.Logger
	buf     buffer
	saved   uint32
	flushes int
	// failing is the index whose last visit failed; cleared when it succeeds.
	failing    uint32
	hasFailing bool
}

// IngestBook runs the full pipeline for one book. The returned result is
// always populated; err is non-nil when the book failed.
func (o *Orchestrator) IngestBook(ctx context.Context, bookID uint32) (report.BookResult, error) {
	started := time.Now()
	ctx = logging.WithBookID(ctx, bookID)
	logger := logging.WithContext(ctx, o.logger)

	result := report.BookResult{BookID: bookID}
	err := o.ingest(ctx, logger, bookID, &result)
	result.Duration = time.Since(started)
	if err != nil {
		result.Outcome = report.OutcomeFailed
		result.Reason = Reason(err)
		result.Error = err.Error()
		if IsFatal(err) {
			logging.ErrorWithContext(logger, "book failed fatally", "book_fatal",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "catalog rows were written for a missing book"),
				logging.String(logging.FieldImpact, "run is cancelled"),
			)
		} else {
			logging.WarnWithContext(logger, "book failed", "book_failed",
				logging.String("reason", result.Reason),
				logging.Error(err),
				logging.String(logging.FieldImpact, "bundle keeps its last checkpoint; book is retried next run"),
			)
		}
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) ingest(ctx context.Context, logger *slog.Logger, bookID uint32, result *report.BookResult) error {
	path := o.opts.BundlePath(bookID)
	lock, err := bundle.Lock(path)
	if err != nil {
		return Wrap(ErrStorage, bookID, "lock bundle", "", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Debug("release bundle lock failed", logging.Error(err))
		}
	}()

	meta, err := o.source.Book(ctx, bookID)
	if err != nil {
		return Wrap(ErrRemote, bookID, "fetch metadata", "", err)
	}
	decision, err := o.sync.Evaluate(ctx, meta)
	if err != nil {
		return Wrap(ErrStorage, bookID, "evaluate metadata", "", err)
	}
	if decision.Skip {
		result.Outcome = report.OutcomeSkipped
		result.BundleBytes = fileSize(path)
		logger.Info("book unchanged; skipping",
			logging.Uint32("chapters_saved", decision.Stored.ChaptersSaved),
			logging.Uint32("chapter_count", meta.ChapterCount),
		)
		return nil
	}

	upsert, err := o.sync.Apply(ctx, meta)
	if err != nil {
		return Wrap(ErrStorage, bookID, "upsert metadata", "", err)
	}
	if upsert.EvictedBookID != 0 {
		logging.WarnWithContext(logger, "slug reassigned from another book", "slug_collision",
			logging.Uint32("evicted_book_id", upsert.EvictedBookID),
			logging.String("slug", meta.Slug),
			logging.String(logging.FieldImpact, "evicted book's catalog rows were removed; its bundle is untouched"),
		)
	}

	info, err := bundle.Inspect(path)
	if err != nil {
		return Wrap(ErrStorage, bookID, "inspect bundle", "", err)
	}
	if info.Corrupt {
		logging.WarnWithContext(logger, "bundle unreadable; rebuilding from the first chapter", "bundle_corrupt",
			logging.Error(info.Cause),
			logging.String(logging.FieldErrorHint, "the file is replaced at the first checkpoint"),
			logging.String(logging.FieldImpact, "every chapter is fetched again"),
		)
	}
	if err := o.healRows(ctx, logger, bookID, info); err != nil {
		return err
	}

	run := &bookRun{o: o, bookID: bookID, path: path, logger: logger}
	if info.Usable() {
		run.saved = uint32(len(info.Indices))
	}

	walked := walk.Run(ctx, o.source, info, walk.Remote{
		BookID:          bookID,
		FirstChapterID:  meta.FirstChapterID(),
		LatestChapterID: meta.LatestChapterID(),
		ChapterCount:    meta.ChapterCount,
	}, run.visit, walk.Options{
		ChapterAttempts: o.opts.ChapterAttempts,
		InitialBackoff:  o.opts.InitialBackoff,
		MaxBackoff:      o.opts.MaxBackoff,
		Logger:          logger,
	})

	result.Strategy = walked.Strategy.String()
	for _, t := range walked.Transitions() {
		result.Transitions = append(result.Transitions, string(t))
	}
	result.Decrypted = walked.Visited
	result.Skipped = walked.Traversed
	result.Retries = walked.Retries
	result.Fetches = walked.Fetches

	if walked.Final == walk.Failed {
		if run.hasFailing {
			result.Failed = 1
		}
		result.Checkpoints = run.flushes
		if n := run.buf.len(); n > 0 {
			logger.Info("discarding unflushed chapters", logging.Int("chapters", n))
		}
		run.buf.reset()
		return Wrap(ErrWalk, bookID, "walk", walked.Strategy.String(), walked.Err)
	}

	if err := run.flush(ctx); err != nil {
		return err
	}
	if err := o.catalog.Finalize(ctx, bookID, run.saved, decision.Hash); err != nil {
		return Wrap(ErrStorage, bookID, "finalize", "", err)
	}

	result.Outcome = report.OutcomeProcessed
	result.Checkpoints = run.flushes
	result.BundleBytes = fileSize(path)
	logger.Info("book ingested",
		logging.String(logging.FieldStrategy, result.Strategy),
		logging.Int("new_chapters", walked.Visited),
		logging.Uint32("chapters_saved", run.saved),
		logging.Int("checkpoints", run.flushes),
		logging.Int("fetches", walked.Fetches),
	)
	return nil
}

// visit decrypts, splits and compresses a chapter into the buffer, flushing
// a checkpoint when the buffer is full.
func (r *bookRun) visit(ctx context.Context, ch *remote.Chapter, index uint32) error {
	plaintext, err := r.o.decryptor.Decrypt(ch.Content)
	if err != nil {
		r.failing, r.hasFailing = index, true
		return err
	}
	if r.hasFailing && r.failing == index {
		r.hasFailing = false
	}
	text := chapter.Split(plaintext)
	title := text.Title
	if title == "" {
		title = strings.TrimSpace(ch.Name)
	}
	title = chapter.TruncateUTF8(title, bundle.MaxTitleBytes)

	compressed, rawLen, err := r.o.codec.Compress([]byte(text.Body))
	if err != nil {
		return Wrap(ErrStorage, r.bookID, "compress", "", err)
	}
	r.buf.add(bundle.Record{
		Index:      index,
		RemoteID:   ch.ID,
		Title:      title,
		Slug:       chapter.NormalizeSlug(ch.Slug, title),
		WordCount:  text.WordCount,
		RawLen:     rawLen,
		Compressed: compressed,
	})
	if r.buf.len() >= r.o.opts.CheckpointEvery {
		return r.flush(ctx)
	}
	return nil
}

// flush merges the buffer into the bundle, then commits the matching rows.
// The bundle goes first so a row never points at a missing body.
func (r *bookRun) flush(ctx context.Context) error {
	if r.buf.len() == 0 {
		return nil
	}
	merged, err := bundle.Merge(r.path, r.buf.records)
	if err != nil {
		return Wrap(ErrStorage, r.bookID, "checkpoint", "merge bundle", err)
	}
	if merged.ReplacedCorrupt {
		r.logger.Info("corrupt bundle replaced", logging.String("path", r.path))
	}
	if err := r.o.catalog.CommitChapters(ctx, r.bookID, r.buf.rows, uint32(merged.Total)); err != nil {
		return Wrap(ErrStorage, r.bookID, "checkpoint", "commit chapter rows", err)
	}
	r.saved = uint32(merged.Total)
	r.flushes++
	r.logger.Debug("checkpoint committed",
		logging.Int("added", merged.Added),
		logging.Int("total", merged.Total),
		logging.Int64("compressed_bytes", r.buf.bytes),
	)
	r.buf.reset()
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
