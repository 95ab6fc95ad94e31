package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertBook writes the author, the book row, then genres, tags, and their
// junction rows in one transaction. A new book gets chapters_saved=0; an
// existing book keeps its chapters_saved and meta_hash. If another book holds
// the slug, that book's chapters, junction rows, and row are deleted first.
func (s *Store) UpsertBook(ctx context.Context, b BookUpsert) (UpsertResult, error) {
	var result UpsertResult
	if b.ID == 0 {
		return result, errors.New("catalog: book id required")
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = UpsertResult{}
		ts := now()

		if b.Author.ID != "" {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO authors (id, name, local_name, avatar) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, local_name = excluded.local_name, avatar = excluded.avatar`,
				b.Author.ID, b.Author.Name, b.Author.LocalName, b.Author.Avatar,
			); err != nil {
				return fmt.Errorf("upsert author %s: %w", b.Author.ID, err)
			}
		}

		if b.Slug != "" {
			var other int64
			err := tx.QueryRowContext(ctx, "SELECT id FROM books WHERE slug = ? AND id <> ?", b.Slug, b.ID).Scan(&other)
			switch {
			case err == nil:
				if err := deleteBookTx(ctx, tx, uint32(other)); err != nil {
					return err
				}
				result.EvictedBookID = uint32(other)
			case errors.Is(err, sql.ErrNoRows):
			default:
				return fmt.Errorf("check slug %q: %w", b.Slug, err)
			}
		}

		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM books WHERE id = ?", b.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check book %d: %w", b.ID, err)
		}
		result.Created = exists == 0

		if _, err := tx.ExecContext(ctx, `
INSERT INTO books (id, name, slug, author_id, chapter_count, chapters_saved, meta_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    slug = excluded.slug,
    author_id = excluded.author_id,
    chapter_count = excluded.chapter_count,
    updated_at = excluded.updated_at`,
			b.ID, b.Name, nullableString(b.Slug), nullableString(b.Author.ID), b.ChapterCount, ts, ts,
		); err != nil {
			return fmt.Errorf("upsert book %d: %w", b.ID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM book_genres WHERE book_id = ?", b.ID); err != nil {
			return fmt.Errorf("clear book genres: %w", err)
		}
		for _, g := range b.Genres {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO genres (id, name, slug) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, slug = excluded.slug`,
				g.ID, g.Name, g.Slug,
			); err != nil {
				return fmt.Errorf("upsert genre %d: %w", g.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO book_genres (book_id, genre_id) VALUES (?, ?)", b.ID, g.ID,
			); err != nil {
				return fmt.Errorf("link genre %d: %w", g.ID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM book_tags WHERE book_id = ?", b.ID); err != nil {
			return fmt.Errorf("clear book tags: %w", err)
		}
		for _, t := range b.Tags {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO tags (id, name, type_id) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, type_id = excluded.type_id`,
				t.ID, t.Name, t.TypeID,
			); err != nil {
				return fmt.Errorf("upsert tag %d: %w", t.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO book_tags (book_id, tag_id) VALUES (?, ?)", b.ID, t.ID,
			); err != nil {
				return fmt.Errorf("link tag %d: %w", t.ID, err)
			}
		}
		return nil
	})
	return result, err
}

func deleteBookTx(ctx context.Context, tx *sql.Tx, id uint32) error {
	for _, stmt := range []string{
		"DELETE FROM chapters WHERE book_id = ?",
		"DELETE FROM book_genres WHERE book_id = ?",
		"DELETE FROM book_tags WHERE book_id = ?",
		"DELETE FROM books WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("evict book %d: %w", id, err)
		}
	}
	return nil
}

// GetBook returns the stored book row. The boolean is false when absent.
func (s *Store) GetBook(ctx context.Context, id uint32) (Book, bool, error) {
	ctx = ensureContext(ctx)
	var (
		book      Book
		slug      sql.NullString
		authorID  sql.NullString
		updated   string
		synced    sql.NullString
		chapterCt int64
		saved     int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, slug, author_id, chapter_count, chapters_saved, meta_hash, updated_at, synced_at
FROM books WHERE id = ?`, id).Scan(
		&book.ID, &book.Name, &slug, &authorID, &chapterCt, &saved, &book.MetaHash, &updated, &synced,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, false, nil
	}
	if err != nil {
		return Book{}, false, fmt.Errorf("get book %d: %w", id, err)
	}
	book.Slug = slug.String
	book.AuthorID = authorID.String
	book.ChapterCount = uint32(chapterCt)
	book.ChaptersSaved = uint32(saved)
	book.UpdatedAt = parseTime(updated)
	if synced.Valid {
		book.SyncedAt = parseTime(synced.String)
	}
	return book, true, nil
}

// Finalize records the book's final chapter total and metadata hash. It runs
// only after the last checkpoint of a walk succeeded.
func (s *Store) Finalize(ctx context.Context, bookID, chaptersSaved uint32, metaHash string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		res, err := tx.ExecContext(ctx,
			"UPDATE books SET chapters_saved = ?, meta_hash = ?, synced_at = ?, updated_at = ? WHERE id = ?",
			chaptersSaved, metaHash, ts, ts, bookID,
		)
		if err != nil {
			return fmt.Errorf("finalize book %d: %w", bookID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("finalize book %d: %w", bookID, ErrForeignKey)
		}
		return nil
	})
}

// ListBooks returns every stored book ordered by ID.
func (s *Store) ListBooks(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT id FROM books ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan book id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	books := make([]Book, 0, len(ids))
	for _, id := range ids {
		book, ok, err := s.GetBook(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			books = append(books, book)
		}
	}
	return books, nil
}

// BookGenres returns the genre IDs linked to a book.
func (s *Store) BookGenres(ctx context.Context, bookID uint32) ([]uint32, error) {
	return s.idList(ctx, "SELECT genre_id FROM book_genres WHERE book_id = ? ORDER BY genre_id", bookID)
}

// BookTags returns the tag IDs linked to a book.
func (s *Store) BookTags(ctx context.Context, bookID uint32) ([]uint32, error) {
	return s.idList(ctx, "SELECT tag_id FROM book_tags WHERE book_id = ? ORDER BY tag_id", bookID)
}

func (s *Store) idList(ctx context.Context, query string, args ...any) ([]uint32, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()
	var out []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
