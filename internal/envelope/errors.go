package envelope

import (
	"errors"
	"fmt"
)

// ErrDecrypt marks every envelope failure. Callers treat it as a retriable
// per-chapter condition.
var ErrDecrypt = errors.New("envelope decrypt failed")

// DecryptError describes why an envelope could not be opened.
type DecryptError struct {
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	if e == nil {
		return ErrDecrypt.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDecrypt.Error(), e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrDecrypt.Error(), e.Reason)
}

// Unwrap exposes the underlying cause.
func (e *DecryptError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is ErrDecrypt.
func (e *DecryptError) Is(target error) bool {
	return target == ErrDecrypt
}

func failf(err error, format string, args ...any) error {
	return &DecryptError{Reason: fmt.Sprintf(format, args...), Err: err}
}
