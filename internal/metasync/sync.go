package metasync

import (
	"context"
	"fmt"
	"strings"

	"folio/internal/catalog"
	"folio/internal/chapter"
	"folio/internal/remote"
)

// Stored is the locally recorded sync state of a book.
type Stored struct {
	Found         bool
	MetaHash      string
	ChaptersSaved uint32
}

// ShouldSkip reports whether a book with the given stored state needs no
// work for remote metadata hashing to remoteHash.
func ShouldSkip(stored Stored, remoteHash string, remoteChapterCount uint32) bool {
	return stored.Found &&
		stored.MetaHash != "" &&
		stored.MetaHash == remoteHash &&
		stored.ChaptersSaved >= remoteChapterCount
}

// Decision is the outcome of evaluating a book.
type Decision struct {
	Skip   bool
	Hash   string
	Stored Stored
}

// Store is the catalog surface the synchronizer needs.
type Store interface {
	GetBook(ctx context.Context, id uint32) (catalog.Book, bool, error)
	UpsertBook(ctx context.Context, b catalog.BookUpsert) (catalog.UpsertResult, error)
}

// Synchronizer evaluates and applies book metadata.
type Synchronizer struct {
	store Store
}

// New returns a Synchronizer backed by store.
func New(store Store) *Synchronizer {
	return &Synchronizer{store: store}
}

// Evaluate hashes the fetched metadata and compares it with the catalog.
func (s *Synchronizer) Evaluate(ctx context.Context, book *remote.BookMetadata) (Decision, error) {
	hash, err := Hash(book.Raw)
	if err != nil {
		return Decision{}, fmt.Errorf("hash book %d: %w", book.ID, err)
	}
	row, found, err := s.store.GetBook(ctx, book.ID)
	if err != nil {
		return Decision{}, err
	}
	stored := Stored{Found: found, MetaHash: row.MetaHash, ChaptersSaved: row.ChaptersSaved}
	return Decision{
		Skip:   ShouldSkip(stored, hash, book.ChapterCount),
		Hash:   hash,
		Stored: stored,
	}, nil
}

// Apply upserts the author, book placeholder, genres, and tags for book. It
// must complete before any chapter row of the book is written.
func (s *Synchronizer) Apply(ctx context.Context, book *remote.BookMetadata) (catalog.UpsertResult, error) {
	return s.store.UpsertBook(ctx, ToUpsert(book))
}

// ToUpsert maps remote metadata onto catalog rows.
func ToUpsert(book *remote.BookMetadata) catalog.BookUpsert {
	up := catalog.BookUpsert{
		ID:           book.ID,
		Name:         strings.TrimSpace(book.Name),
		Slug:         strings.TrimSpace(book.Slug),
		ChapterCount: book.ChapterCount,
	}
	if up.Slug == "" && up.Name != "" {
		up.Slug = chapter.Slugify(up.Name)
	}
	if !book.Author.ID.IsZero() {
		up.Author = catalog.Author{
			ID:        book.Author.ID.String(),
			Name:      book.Author.Name,
			LocalName: book.Author.LocalName,
			Avatar:    book.Author.Avatar,
		}
	}
	seenGenre := make(map[uint32]struct{}, len(book.Genres))
	for _, g := range book.Genres {
		if _, dup := seenGenre[g.ID]; dup || g.ID == 0 {
			continue
		}
		seenGenre[g.ID] = struct{}{}
		up.Genres = append(up.Genres, catalog.Genre{ID: g.ID, Name: g.Name, Slug: g.Slug})
	}
	seenTag := make(map[uint32]struct{}, len(book.Tags))
	for _, t := range book.Tags {
		if _, dup := seenTag[t.ID]; dup || t.ID == 0 {
			continue
		}
		seenTag[t.ID] = struct{}{}
		up.Tags = append(up.Tags, catalog.Tag{ID: t.ID, Name: t.Name, TypeID: t.TypeID})
	}
	return up
}
