// Package ingest drives the chapter pipeline for a batch of books.
//
// An Orchestrator runs books on a bounded worker pool. Each book is handled
// by one worker end to end: take the per-book lock, fetch and evaluate the
// metadata, upsert the catalog rows, walk the chapter list, and buffer each
// decrypted, compressed chapter until a checkpoint merges the buffer into the
// bundle and commits the matching chapter rows. The final checkpoint is
// followed by recording the metadata hash, which is what lets the next run
// skip an unchanged book.
//
// A buffer that never reached a checkpoint is discarded when the book fails,
// so the bundle on disk always reflects the last successful checkpoint.
// Catalog foreign key violations are fatal and cancel the whole run.
package ingest
