package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"folio/internal/envelope"
)

// FixtureKey is the AES key embedded in every sealed chapter served by
// FakeRemote.
var FixtureKey = []byte("Kx7pQ2mZ9vR4tL8w")

// ChapterID is the remote chapter ID FakeRemote assigns to a chapter index.
func ChapterID(bookID, index uint32) uint32 {
	return bookID*10000 + index
}

// ChapterTitle is the title line served for a chapter.
func ChapterTitle(index uint32) string {
	return fmt.Sprintf("Chapter %d: The Lantern Road", index)
}

// ChapterBody is the body text a decrypted chapter yields after the title
// line is split off.
func ChapterBody(bookID, index uint32) string {
	return fmt.Sprintf("Book %d, chapter %d.\nMira crossed the bridge at dusk.\n\nThe lanterns were already lit.", bookID, index)
}

// ChapterPlaintext is the decrypted envelope content, repeated title included.
func ChapterPlaintext(bookID, index uint32) string {
	title := ChapterTitle(index)
	return title + "\n\n" + title + "\n\n" + ChapterBody(bookID, index)
}

// SealChapter seals plaintext with FixtureKey and an IV derived from seed.
func SealChapter(t testing.TB, plaintext string, seed uint32) string {
	t.Helper()

	sealed, err := sealChapter(plaintext, seed)
	if err != nil {
		t.Fatalf("seal chapter: %v", err)
	}
	return sealed
}

func sealChapter(plaintext string, seed uint32) (string, error) {
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(seed>>(8*(i%4))) ^ byte(i)
	}
	return envelope.Seal(plaintext, FixtureKey, iv)
}

type fakeBook struct {
	id        uint32
	name      string
	slug      string
	authorID  any
	count     uint32
	hideFirst bool
	hideLast  bool
	omitIndex bool
	extra     map[string]any
	genres    []map[string]any
	tags      []map[string]any
}

// FakeRemote is an httptest server implementing the chapter API for a set
// of synthetic books. Chapter i of book b has remote ID ChapterID(b, i) and
// links to its neighbours.
type FakeRemote struct {
	server *httptest.Server

	mu             sync.Mutex
	books          map[uint32]*fakeBook
	missing        map[uint32]bool
	corrupt        map[uint32]int
	bookStatus     map[uint32]int
	bookFetches    map[uint32]int
	chapterFetches map[uint32]int
	fetched        map[uint32][]uint32
	sealed         map[uint32]string
}

// NewFakeRemote starts the server and closes it on cleanup.
func NewFakeRemote(t testing.TB) *FakeRemote {
	t.Helper()

	f := &FakeRemote{
		books:          make(map[uint32]*fakeBook),
		missing:        make(map[uint32]bool),
		corrupt:        make(map[uint32]int),
		bookStatus:     make(map[uint32]int),
		bookFetches:    make(map[uint32]int),
		chapterFetches: make(map[uint32]int),
		fetched:        make(map[uint32][]uint32),
		sealed:         make(map[uint32]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /books/{book}", f.handleBook)
	mux.HandleFunc("GET /books/{book}/chapters/{chapter}", f.handleChapter)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the API base URL.
func (f *FakeRemote) URL() string {
	return f.server.URL
}

// BookOption customizes a fake book.
type BookOption func(*fakeBook)

// WithAuthor sets the author id as served, an integer or a prefixed string.
func WithAuthor(id any) BookOption {
	return func(b *fakeBook) { b.authorID = id }
}

// WithSlug overrides the book slug.
func WithSlug(slug string) BookOption {
	return func(b *fakeBook) { b.slug = slug }
}

// WithoutIndices omits the index field from chapter payloads.
func WithoutIndices() BookOption {
	return func(b *fakeBook) { b.omitIndex = true }
}

// WithoutLatest serves latest_chapter as null.
func WithoutLatest() BookOption {
	return func(b *fakeBook) { b.hideLast = true }
}

// WithExtra adds an unknown top-level field to the metadata payload.
func WithExtra(key string, value any) BookOption {
	return func(b *fakeBook) {
		if b.extra == nil {
			b.extra = make(map[string]any)
		}
		b.extra[key] = value
	}
}

// WithGenre attaches a genre.
func WithGenre(id uint32, name string) BookOption {
	return func(b *fakeBook) {
		b.genres = append(b.genres, map[string]any{"id": id, "name": name, "slug": strings.ToLower(name)})
	}
}

// WithTag attaches a tag.
func WithTag(id uint32, name string) BookOption {
	return func(b *fakeBook) {
		b.tags = append(b.tags, map[string]any{"id": id, "name": name, "type_id": 1})
	}
}

// AddBook registers a book with chapters 1..count.
func (f *FakeRemote) AddBook(bookID, count uint32, opts ...BookOption) {
	book := &fakeBook{
		id:       bookID,
		name:     fmt.Sprintf("Book %d", bookID),
		slug:     fmt.Sprintf("book-%d", bookID),
		authorID: 1000 + int(bookID),
		count:    count,
	}
	for _, opt := range opts {
		opt(book)
	}
	f.mu.Lock()
	f.books[bookID] = book
	f.mu.Unlock()
}

// SetChapterCount grows or shrinks a book's chapter list.
func (f *FakeRemote) SetChapterCount(bookID, count uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if book, ok := f.books[bookID]; ok {
		book.count = count
	}
}

// SetMissing makes a chapter ID answer 404.
func (f *FakeRemote) SetMissing(chapterID uint32, missing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[chapterID] = missing
}

// SetCorrupt serves an undecryptable envelope for the next times fetches
// of chapterID. A negative times corrupts it permanently.
func (f *FakeRemote) SetCorrupt(chapterID uint32, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrupt[chapterID] = times
}

// SetBookStatus forces the metadata endpoint to answer with status. Zero
// restores normal responses.
func (f *FakeRemote) SetBookStatus(bookID uint32, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookStatus[bookID] = status
}

// BookFetches returns how many metadata requests a book received.
func (f *FakeRemote) BookFetches(bookID uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookFetches[bookID]
}

// ChapterFetches returns how many chapter requests a book received.
func (f *FakeRemote) ChapterFetches(bookID uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chapterFetches[bookID]
}

// FetchedChapters returns the chapter IDs requested for a book, in order.
func (f *FakeRemote) FetchedChapters(bookID uint32) []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.fetched[bookID]...)
}

// ResetCounters clears all request counters.
func (f *FakeRemote) ResetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookFetches = make(map[uint32]int)
	f.chapterFetches = make(map[uint32]int)
	f.fetched = make(map[uint32][]uint32)
}

func (f *FakeRemote) handleBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := parseID(r.PathValue("book"))
	if !ok {
		http.Error(w, "bad book id", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.bookFetches[bookID]++
	status := f.bookStatus[bookID]
	book, exists := f.books[bookID]
	var payload map[string]any
	if exists {
		payload = f.bookPayload(book)
	}
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !exists {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, payload)
}

func (f *FakeRemote) bookPayload(book *fakeBook) map[string]any {
	payload := map[string]any{
		"id":   book.id,
		"name": book.name,
		"slug": book.slug,
		"author": map[string]any{
			"id":         book.authorID,
			"name":       fmt.Sprintf("Author of %d", book.id),
			"local_name": "",
			"avatar":     "",
		},
		"chapter_count":  book.count,
		"status":         "ongoing",
		"first_chapter":  nil,
		"latest_chapter": nil,
		"genres":         nonNil(book.genres),
		"tags":           nonNil(book.tags),
	}
	if book.count > 0 {
		if !book.hideFirst {
			payload["first_chapter"] = map[string]any{"id": ChapterID(book.id, 1)}
		}
		if !book.hideLast {
			payload["latest_chapter"] = map[string]any{"id": ChapterID(book.id, book.count)}
		}
	}
	for k, v := range book.extra {
		payload[k] = v
	}
	return payload
}

func (f *FakeRemote) handleChapter(w http.ResponseWriter, r *http.Request) {
	bookID, ok1 := parseID(r.PathValue("book"))
	chapterID, ok2 := parseID(r.PathValue("chapter"))
	if !ok1 || !ok2 {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.chapterFetches[bookID]++
	f.fetched[bookID] = append(f.fetched[bookID], chapterID)
	book, exists := f.books[bookID]
	index := chapterID - bookID*10000
	if !exists || chapterID < bookID*10000 || index < 1 || index > book.count || f.missing[chapterID] {
		f.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	corrupt := false
	if n := f.corrupt[chapterID]; n != 0 {
		corrupt = true
		if n > 0 {
			f.corrupt[chapterID] = n - 1
		}
	}
	payload := map[string]any{
		"id":       chapterID,
		"name":     ChapterTitle(index),
		"slug":     fmt.Sprintf("chapter-%d", index),
		"next":     nil,
		"previous": nil,
	}
	if !book.omitIndex {
		payload["index"] = index
	}
	if index > 1 {
		payload["previous"] = map[string]any{"id": chapterID - 1}
	}
	if index < book.count {
		payload["next"] = map[string]any{"id": chapterID + 1}
	}
	sealed, cached := f.sealed[chapterID]
	f.mu.Unlock()

	if corrupt {
		payload["content"] = strings.Repeat("!", 96)
	} else {
		if !cached {
			var err error
			sealed, err = sealChapter(ChapterPlaintext(bookID, index), chapterID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			f.mu.Lock()
			f.sealed[chapterID] = sealed
			f.mu.Unlock()
		}
		payload["content"] = sealed
	}
	writeJSON(w, payload)
}

func parseID(raw string) (uint32, bool) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint32(v), true
}

func nonNil(items []map[string]any) []map[string]any {
	if items == nil {
		return []map[string]any{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
