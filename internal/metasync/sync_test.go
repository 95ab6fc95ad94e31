package metasync_test

import (
	"context"
	"path/filepath"
	"testing"

	"folio/internal/catalog"
	"folio/internal/metasync"
	"folio/internal/remote"
)

func TestHashIgnoresFormattingAndKeyOrder(t *testing.T) {
	a := []byte(`{"id":1,"name":"Road","tags":[{"id":2,"name":"x"}],"rating":4.50}`)
	b := []byte("{\n  \"rating\": 4.50,\n  \"tags\": [ {\"name\": \"x\", \"id\": 2} ],\n  \"name\": \"Road\",\n  \"id\": 1\n}")
	ha, err := metasync.Hash(a)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, err := metasync.Hash(b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected equal hashes, got %s and %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Fatalf("expected hex sha256, got %q", ha)
	}

	hc, _ := metasync.Hash([]byte(`{"id":1,"name":"Road","tags":[{"id":2,"name":"x"}],"rating":4.5}`))
	if hc == ha {
		t.Fatal("expected number text change to alter hash")
	}
	hd, _ := metasync.Hash([]byte(`{"id":1,"name":"Road <new>","tags":[{"id":2,"name":"x"}],"rating":4.50}`))
	if hd == ha {
		t.Fatal("expected value change to alter hash")
	}
}

func TestCanonical(t *testing.T) {
	got, err := metasync.Canonical([]byte(` { "b" : [1, 2], "a" : "<&>" } `))
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if string(got) != `{"a":"<&>","b":[1,2]}` {
		t.Fatalf("unexpected canonical form %s", got)
	}
	if _, err := metasync.Canonical([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		stored metasync.Stored
		hash   string
		count  uint32
		want   bool
	}{
		{name: "match and complete", stored: metasync.Stored{Found: true, MetaHash: "h", ChaptersSaved: 10}, hash: "h", count: 10, want: true},
		{name: "more saved than reported", stored: metasync.Stored{Found: true, MetaHash: "h", ChaptersSaved: 12}, hash: "h", count: 10, want: true},
		{name: "hash differs", stored: metasync.Stored{Found: true, MetaHash: "h", ChaptersSaved: 10}, hash: "g", count: 10, want: false},
		{name: "chapters missing", stored: metasync.Stored{Found: true, MetaHash: "h", ChaptersSaved: 9}, hash: "h", count: 10, want: false},
		{name: "unknown book", stored: metasync.Stored{}, hash: "", count: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metasync.ShouldSkip(tt.stored, tt.hash, tt.count); got != tt.want {
				t.Fatalf("ShouldSkip = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateAndApply(t *testing.T) {
	ctx := context.Background()
	store, err := catalog.OpenPath(filepath.Join(t.TempDir(), "folio.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer store.Close()
	sync := metasync.New(store)

	book := &remote.BookMetadata{
		ID:           9,
		Name:         "Árnyak Könyve",
		ChapterCount: 2,
		Author:       remote.Author{ID: remote.AuthorID{Prefix: "c", Num: 5}, Name: "Zsófi"},
		Genres:       []remote.Genre{{ID: 1, Name: "Fantasy"}, {ID: 1, Name: "Fantasy"}},
		Raw:          []byte(`{"id":9,"chapter_count":2}`),
	}

	decision, err := sync.Evaluate(ctx, book)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Skip || decision.Stored.Found {
		t.Fatalf("expected unknown book to need work: %+v", decision)
	}

	if _, err := sync.Apply(ctx, book); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	row, ok, _ := store.GetBook(ctx, 9)
	if !ok || row.Slug != "arnyak-konyve" || row.AuthorID != "c5" {
		t.Fatalf("unexpected book row: %+v", row)
	}
	if err := store.Finalize(ctx, 9, 2, decision.Hash); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	again, err := sync.Evaluate(ctx, book)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !again.Skip {
		t.Fatalf("expected skip after finalize: %+v", again)
	}
}
