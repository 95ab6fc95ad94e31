// Package main hosts the Folio CLI entrypoint and command graph.
//
// The Cobra command tree wires configuration, logging, the catalog, the
// dictionary codec, and the remote client into the ingest orchestrator, and
// exposes read-only bundle inspection plus catalog recovery. Behaviour lives
// in the internal packages; commands here only resolve inputs and render
// results.
package main
