// Package report aggregates the outcome of an ingest run.
//
// A Report collects one BookResult per book from concurrent workers, derives
// book and chapter totals plus failure reasons, renders them as a table for
// terminals (plain text otherwise), and appends a JSON line per run to the
// audit log.
package report
