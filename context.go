package offchain

import (
	"context"

	"github.com/tendermint/tendermint/libs/log"
)

type contextKey int

const contextKeyLogger contextKey = iota

// DefaultLogger is used for all context that have not set anything
// themselves.
var DefaultLogger = log.NewNopLogger()

// WithLogger sets the logger for this context.
func WithLogger(ctx context.Context, logger log.Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, logger)
}

// WithLogInfo is a shortcut to add key-value pairs to the context logger.
func WithLogInfo(ctx context.Context, keyvals ...interface{}) context.Context {
	logger := GetLogger(ctx).With(keyvals...)
	return WithLogger(ctx, logger)
}

// GetLogger returns the currently set logger, or DefaultLogger if none was
// set.
func GetLogger(ctx context.Context) log.Logger {
	if logger, ok := ctx.Value(contextKeyLogger).(log.Logger); ok {
		return logger
	}
	return DefaultLogger
}
