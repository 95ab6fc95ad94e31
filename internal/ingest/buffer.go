package ingest

import (
	"folio/internal/bundle"
	"folio/internal/catalog"
)

// buffer holds chapters accepted since the last checkpoint.
type buffer struct {
	records []bundle.Record
	rows    []catalog.Chapter
	bytes   int64
}

func (b *buffer) add(rec bundle.Record) {
	b.records = append(b.records, rec)
	b.rows = append(b.rows, catalog.Chapter{
		Index:     rec.Index,
		RemoteID:  rec.RemoteID,
		Title:     rec.Title,
		Slug:      rec.Slug,
		WordCount: rec.WordCount,
	})
	b.bytes += int64(len(rec.Compressed))
}

func (b *buffer) len() int { return len(b.records) }

func (b *buffer) reset() {
	b.records = nil
	b.rows = nil
	b.bytes = 0
}
