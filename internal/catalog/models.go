package catalog

import "time"

// Author is an authors row. ID is the canonical string form of the remote
// author identifier.
type Author struct {
	ID        string
	Name      string
	LocalName string
	Avatar    string
}

// Genre is a genres row.
type Genre struct {
	ID   uint32
	Name string
	Slug string
}

// Tag is a tags row.
type Tag struct {
	ID     uint32
	Name   string
	TypeID uint32
}

// BookUpsert carries everything written by a metadata sync.
type BookUpsert struct {
	ID           uint32
	Name         string
	Slug         string
	ChapterCount uint32
	Author       Author
	Genres       []Genre
	Tags         []Tag
}

// UpsertResult reports side effects of UpsertBook.
type UpsertResult struct {
	Created bool
	// EvictedBookID is the book that previously held the slug, if any.
	EvictedBookID uint32
}

// Book is the stored state of a book row.
type Book struct {
	ID            uint32
	Name          string
	Slug          string
	AuthorID      string
	ChapterCount  uint32
	ChaptersSaved uint32
	MetaHash      string
	UpdatedAt     time.Time
	SyncedAt      time.Time
}

// Chapter is a chapter metadata row. Bodies are never stored here.
type Chapter struct {
	Index     uint32
	RemoteID  uint32
	Title     string
	Slug      string
	WordCount uint32
}
