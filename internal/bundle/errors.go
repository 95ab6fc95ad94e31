package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt marks a bundle whose header or index cannot be trusted.
	ErrCorrupt = errors.New("bundle corrupt")
	// ErrNotFound reports a chapter index absent from the bundle.
	ErrNotFound = errors.New("chapter not in bundle")
	// ErrNoMetadata reports a metadata read against a version 1 bundle.
	ErrNoMetadata = errors.New("bundle version has no chapter metadata")
	// ErrLocked reports that another process holds the book's bundle lock.
	ErrLocked = errors.New("bundle locked by another run")
)

// CorruptError describes why a bundle was rejected.
type CorruptError struct {
	Path   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("bundle %s corrupt: %s", e.Path, e.Reason)
}

// Is reports whether target is ErrCorrupt.
func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

func corruptf(path, format string, args ...any) error {
	return &CorruptError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
