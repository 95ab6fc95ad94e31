package remote

import "encoding/json"

// Ref points at another chapter in the remote linked list.
type Ref struct {
	ID uint32 `json:"id"`
}

// Author is the book's author as reported by the API.
type Author struct {
	ID        AuthorID `json:"id"`
	Name      string   `json:"name"`
	LocalName string   `json:"local_name"`
	Avatar    string   `json:"avatar"`
}

// Genre is a book genre.
type Genre struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Tag is a book tag.
type Tag struct {
	ID     uint32 `json:"id"`
	Name   string `json:"name"`
	TypeID uint32 `json:"type_id"`
}

// BookMetadata is the decoded /books/{id} payload. Raw keeps the response
// body verbatim, unknown fields included, for change detection.
type BookMetadata struct {
	ID            uint32  `json:"id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	Author        Author  `json:"author"`
	ChapterCount  uint32  `json:"chapter_count"`
	FirstChapter  *Ref    `json:"first_chapter"`
	LatestChapter *Ref    `json:"latest_chapter"`
	Genres        []Genre `json:"genres"`
	Tags          []Tag   `json:"tags"`

	Raw json.RawMessage `json:"-"`
}

// FirstChapterID returns the head of the chapter list, or zero.
func (b *BookMetadata) FirstChapterID() uint32 {
	if b == nil || b.FirstChapter == nil {
		return 0
	}
	return b.FirstChapter.ID
}

// LatestChapterID returns the tail of the chapter list, or zero.
func (b *BookMetadata) LatestChapterID() uint32 {
	if b == nil || b.LatestChapter == nil {
		return 0
	}
	return b.LatestChapter.ID
}

// Chapter is one node of the remote chapter list. Content holds the
// encrypted envelope. Index is zero when the API omits it.
type Chapter struct {
	ID       uint32 `json:"id"`
	Index    uint32 `json:"index"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Content  string `json:"content"`
	Next     *Ref   `json:"next"`
	Previous *Ref   `json:"previous"`
}

// NextID returns the following chapter's ID, or zero at the end of the list.
func (c *Chapter) NextID() uint32 {
	if c == nil || c.Next == nil {
		return 0
	}
	return c.Next.ID
}

// PreviousID returns the preceding chapter's ID, or zero at the head.
func (c *Chapter) PreviousID() uint32 {
	if c == nil || c.Previous == nil {
		return 0
	}
	return c.Previous.ID
}
