package log

import "context"

// loggerCtxKey is the key used to store the logger in the context.
type loggerCtxKey struct{}

// WithContextLogger returns a context carrying the given logger. Operations
// performed with that context log through it.
func WithContextLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// GetContextLogger retrieves the logger from the context, or nil if none is
// stored.
func GetContextLogger(ctx context.Context) Logger {
	logger, ok := ctx.Value(loggerCtxKey{}).(Logger)
	if !ok {
		return nil
	}

	return logger
}

// FromContext retrieves the logger from the context, falling back to a no-op
// logger so callers never need a nil check.
func FromContext(ctx context.Context) Logger {
	if logger := GetContextLogger(ctx); logger != nil {
		return logger
	}
	return Noop{}
}
