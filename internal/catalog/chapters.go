package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// CommitChapters writes a checkpoint's chapter rows and the book's running
// chapters_saved total in one transaction. Rows for an unknown book fail with
// ErrForeignKey.
func (s *Store) CommitChapters(ctx context.Context, bookID uint32, chapters []Chapter, chaptersSaved uint32) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chapters (book_id, index_num, remote_id, title, slug, word_count)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(book_id, index_num) DO UPDATE SET
    remote_id = excluded.remote_id,
    title = excluded.title,
    slug = excluded.slug,
    word_count = excluded.word_count`)
		if err != nil {
			return fmt.Errorf("prepare chapter insert: %w", err)
		}
		defer stmt.Close()

		for _, ch := range chapters {
			if _, err := stmt.ExecContext(ctx, bookID, ch.Index, ch.RemoteID, ch.Title, ch.Slug, ch.WordCount); err != nil {
				return fmt.Errorf("insert chapter %d of book %d: %w", ch.Index, bookID, err)
			}
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE books SET chapters_saved = ?, updated_at = ? WHERE id = ?", chaptersSaved, now(), bookID)
		if err != nil {
			return fmt.Errorf("update chapters_saved for book %d: %w", bookID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update chapters_saved for book %d: %w", bookID, ErrForeignKey)
		}
		return nil
	})
}

// ChapterIndices returns the stored chapter indices of a book in order.
func (s *Store) ChapterIndices(ctx context.Context, bookID uint32) ([]uint32, error) {
	return s.idList(ctx, "SELECT index_num FROM chapters WHERE book_id = ? ORDER BY index_num", bookID)
}

// ListChapters returns the stored chapter rows of a book in index order.
func (s *Store) ListChapters(ctx context.Context, bookID uint32) ([]Chapter, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
SELECT index_num, remote_id, title, slug, word_count
FROM chapters WHERE book_id = ? ORDER BY index_num`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters of book %d: %w", bookID, err)
	}
	defer rows.Close()

	var out []Chapter
	for rows.Next() {
		var ch Chapter
		if err := rows.Scan(&ch.Index, &ch.RemoteID, &ch.Title, &ch.Slug, &ch.WordCount); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
