// Package preflight provides readiness checks for the filesystem paths,
// dictionary, and chapter API that Folio depends on.
//
// The ingest command calls RunAll before starting workers and refuses to
// run when a required check fails. "folio check" prints every result.
package preflight
