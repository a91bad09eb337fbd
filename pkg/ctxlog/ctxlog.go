// Package ctxlog carries a zerolog.Logger through context.Context so that
// deeply nested operations can log without threading a logger parameter
// everywhere.
package ctxlog

import (
	"context"

	"github.com/rs/zerolog"
)

type logKey struct{}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}

// From returns the logger attached to the context
func From(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logKey{})
	if logger == nil {
		panic("Logger is missing in context!")
	}

	return logger.(*zerolog.Logger)
}
