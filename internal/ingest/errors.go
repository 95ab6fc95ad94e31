package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"folio/internal/bundle"
	"folio/internal/catalog"
	"folio/internal/envelope"
	"folio/internal/remote"
	"folio/internal/walk"
)

var (
	ErrRemote  = errors.New("remote failure")
	ErrStorage = errors.New("storage failure")
	ErrWalk    = errors.New("walk failure")
	ErrFatal   = errors.New("fatal pipeline error")
)

// Wrap tags err with a marker and book/operation context. The marker should
// be one of the sentinels above.
func Wrap(marker error, bookID uint32, operation, message string, err error) error {
	if marker == nil {
		marker = ErrWalk
	}
	parts := make([]string, 0, 3)
	if bookID != 0 {
		parts = append(parts, fmt.Sprintf("book %d", bookID))
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	detail := strings.Join(parts, ": ")
	if detail == "" {
		detail = "ingest failure"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must stop the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal) || errors.Is(err, catalog.ErrForeignKey)
}

// Reason maps a book failure onto a short report label.
func Reason(err error) string {
	var status *remote.StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, catalog.ErrForeignKey):
		return "foreign_key"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, bundle.ErrLocked):
		return "locked"
	case errors.Is(err, envelope.ErrDecrypt):
		return "decrypt"
	case errors.Is(err, remote.ErrNotFound):
		return "not_found"
	case errors.As(err, &status):
		return fmt.Sprintf("http_%d", status.StatusCode)
	case errors.Is(err, walk.ErrCycle):
		return "cycle"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrRemote):
		return "remote"
	default:
		return "error"
	}
}
