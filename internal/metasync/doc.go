// Package metasync decides whether a book needs work and maps remote book
// metadata onto catalog rows.
//
// Hash canonicalizes the raw metadata payload so formatting and key order do
// not register as changes. A book is skipped when its stored hash matches and
// every remote chapter is already saved.
package metasync
