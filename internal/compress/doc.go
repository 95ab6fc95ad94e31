// Package compress wraps zstd with a shared, pre-trained dictionary.
//
// A Dictionary is loaded once at startup and injected into NewCodec. The
// resulting Codec is safe for concurrent use by every ingestion worker.
package compress
