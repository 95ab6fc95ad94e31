// Package catalog persists book, author, genre, tag, and chapter metadata in
// SQLite.
//
// The store never holds chapter bodies; those live only in bundles. Writes
// happen in short transactions: one per metadata upsert and one per chapter
// checkpoint. Foreign keys are enforced on every connection, and a violation
// surfaces as ErrForeignKey because it signals an ordering bug rather than a
// condition worth retrying. Busy errors from concurrent writers are retried
// with a short backoff.
package catalog
