package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"folio/internal/bundle"
	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/metasync"
	"folio/internal/remote"
)

// ReconcileResult describes what Reconcile changed.
type ReconcileResult struct {
	BookID        uint32
	BundleEntries int
	RowsBefore    int
	Rebuilt       int
	BookCreated   bool
}

// Reconcile rebuilds missing chapter rows of a book from the metadata
// prefixes of its v2 bundle. When the book row itself is gone, the metadata
// is fetched from source and upserted first without a hash, so the next
// ingest re-evaluates the book.
func Reconcile(ctx context.Context, cat Catalog, source remote.Source, bundlePath string, bookID uint32) (ReconcileResult, error) {
	result := ReconcileResult{BookID: bookID}

	lock, err := bundle.Lock(bundlePath)
	if err != nil {
		return result, err
	}
	defer lock.Release()

	info, err := bundle.Inspect(bundlePath)
	if err != nil {
		return result, err
	}
	switch {
	case !info.Exists:
		return result, fmt.Errorf("bundle %s: %w", bundlePath, fs.ErrNotExist)
	case info.Corrupt:
		return result, info.Cause
	case info.Version != bundle.Version2:
		return result, fmt.Errorf("bundle %s is version %d: %w", bundlePath, info.Version, bundle.ErrNoMetadata)
	}
	result.BundleEntries = len(info.Indices)

	_, found, err := cat.GetBook(ctx, bookID)
	if err != nil {
		return result, err
	}
	if !found {
		if source == nil {
			return result, fmt.Errorf("book %d has no catalog row and no remote source was given", bookID)
		}
		meta, err := source.Book(ctx, bookID)
		if err != nil {
			return result, Wrap(ErrRemote, bookID, "fetch metadata", "", err)
		}
		if _, err := metasync.New(cat).Apply(ctx, meta); err != nil {
			return result, Wrap(ErrStorage, bookID, "upsert metadata", "", err)
		}
		result.BookCreated = true
	}

	existing, err := cat.ChapterIndices(ctx, bookID)
	if err != nil {
		return result, err
	}
	result.RowsBefore = len(existing)

	rebuilt, err := rebuildRows(ctx, cat, bookID, bundlePath, existing, uint32(len(info.Indices)))
	if err != nil {
		return result, err
	}
	result.Rebuilt = rebuilt
	return result, nil
}

// healRows repairs chapter rows lost between a bundle rename and the row
// commit of an earlier run.
func (o *Orchestrator) healRows(ctx context.Context, logger *slog.Logger, bookID uint32, info bundle.Info) error {
	if !info.Usable() || info.Version != bundle.Version2 || len(info.Indices) == 0 {
		return nil
	}
	existing, err := o.catalog.ChapterIndices(ctx, bookID)
	if err != nil {
		return Wrap(ErrStorage, bookID, "list chapter rows", "", err)
	}
	if len(existing) >= len(info.Indices) {
		return nil
	}
	rebuilt, err := rebuildRows(ctx, o.catalog, bookID, info.Path, existing, uint32(len(info.Indices)))
	if err != nil {
		return Wrap(ErrStorage, bookID, "rebuild chapter rows", "", err)
	}
	logging.WarnWithContext(logger, "chapter rows rebuilt from bundle", "rows_rebuilt",
		logging.Int("rebuilt", rebuilt),
		logging.Int("bundle_entries", len(info.Indices)),
		logging.String(logging.FieldImpact, "catalog caught up with the bundle after an interrupted checkpoint"),
	)
	return nil
}

func rebuildRows(ctx context.Context, cat Catalog, bookID uint32, bundlePath string, existing []uint32, total uint32) (int, error) {
	metas, err := bundle.ReadAllMeta(bundlePath)
	if err != nil {
		if errors.Is(err, bundle.ErrNoMetadata) {
			return 0, nil
		}
		return 0, err
	}
	have := make(map[uint32]struct{}, len(existing))
	for _, idx := range existing {
		have[idx] = struct{}{}
	}
	rows := make([]catalog.Chapter, 0, len(metas))
	for idx, meta := range metas {
		if _, ok := have[idx]; ok {
			continue
		}
		rows = append(rows, catalog.Chapter{
			Index:     idx,
			RemoteID:  meta.RemoteID,
			Title:     meta.Title,
			Slug:      meta.Slug,
			WordCount: meta.WordCount,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })
	if err := cat.CommitChapters(ctx, bookID, rows, total); err != nil {
		return 0, err
	}
	return len(rows), nil
}
