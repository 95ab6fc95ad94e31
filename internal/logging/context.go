package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	bookIDKey contextKey = "book_id"
)

// WithRunID annotates context with the ingestion run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBookID annotates context with the book being processed.
func WithBookID(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, bookIDKey, id)
}

// BookIDFromContext extracts the book identifier if present.
func BookIDFromContext(ctx context.Context) (uint32, bool) {
	v, ok := ctx.Value(bookIDKey).(uint32)
	return v, ok
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if id, ok := BookIDFromContext(ctx); ok {
		fields = append(fields, Uint32(FieldBookID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
