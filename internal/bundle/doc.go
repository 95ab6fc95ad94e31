// Package bundle reads and writes BLIB files, the per-book container that
// durably owns every compressed chapter body.
//
// A bundle is a little-endian file made of a fixed header, an index of
// (indexNum, offset, compLen, rawLen) records, and a data region. Version 1
// stores bare compressed bodies; version 2 prefixes each body with a
// 256-byte block carrying the remote chapter ID, word count, title, and slug
// so chapter metadata can be rebuilt without the relational store.
//
// Readers accept both versions. Merge always writes version 2 and replaces
// the canonical file atomically (temp file, fsync, rename, directory fsync),
// so a partially written bundle is never observable under the book's path.
// Lock provides a per-book advisory lock for concurrent runs.
package bundle
