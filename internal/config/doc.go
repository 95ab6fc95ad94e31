// Package config loads, normalizes, and validates Folio configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FOLIO_REMOTE_URL. The Config type centralizes every knob the ingestion
// pipeline and CLI need: where bundles and the catalog database live, how the
// remote API is throttled and retried, the envelope MAC policy, the
// compression level, and worker/checkpoint sizing.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
