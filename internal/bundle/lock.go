package bundle

import (
	"fmt"

	"github.com/gofrs/flock"
)

// BookLock is an advisory lock guarding one book's bundle.
type BookLock struct {
	path string
	fl   *flock.Flock
}

// LockPath returns the lock file used for the bundle at bundlePath.
func LockPath(bundlePath string) string {
	return bundlePath + ".lock"
}

// Lock acquires the advisory lock for the bundle at bundlePath without
// blocking. ErrLocked is returned when another run holds it.
func Lock(bundlePath string) (*BookLock, error) {
	path := LockPath(bundlePath)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire bundle lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return &BookLock{path: path, fl: fl}, nil
}

// Path returns the lock file path.
func (l *BookLock) Path() string { return l.path }

// Release drops the lock. The lock file stays on disk for reuse.
func (l *BookLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release bundle lock: %w", err)
	}
	return nil
}
