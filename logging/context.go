package logging

import (
	"context"

	"go.viam.com/utils"
)

type debugTraceKey struct{}

// WithDebugTrace marks ctx so every C* log call made with it is emitted regardless of the
// logger's level. An empty trace id is replaced with a random one so the lines can be grepped.
func WithDebugTrace(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugTraceKey{}, traceID)
}

// IsDebugMode reports whether ctx carries a debug trace.
func IsDebugMode(ctx context.Context) bool {
	return DebugTraceID(ctx) != ""
}

// DebugTraceID returns the trace id attached by WithDebugTrace, or "".
func DebugTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(debugTraceKey{}).(string); ok {
		return id
	}
	return ""
}
