// Package remote talks to the chapter API.
//
// Client fetches book metadata and individual chapters over JSON/HTTP. Every
// request passes through a shared token-bucket limiter, and transient
// failures (timeouts, connection resets, 429 and 5xx responses) are retried
// with bounded exponential backoff before the error reaches the caller. A 404
// is returned immediately as ErrNotFound so walk strategies can fall back.
//
// The loosely typed author identifier is normalized here into AuthorID.
package remote
