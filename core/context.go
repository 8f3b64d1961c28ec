package core

import (
	"context"

	"github.com/huangsam/macindex/internal/contract"
)

// Context keys for execution options
type contextKey string

const (
	suppressHeaderKey contextKey = "suppressHeader"
	recorderKey       contextKey = "recorder"
)

// WithSuppressHeader marks the context so that run headers are not logged.
// The MCP server uses it to keep stdio clean.
func WithSuppressHeader(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressHeaderKey, true)
}

// shouldSuppressHeader returns whether headers should be suppressed from context
func shouldSuppressHeader(ctx context.Context) bool {
	val := ctx.Value(suppressHeaderKey)
	if val == nil {
		return false // default: show headers
	}
	suppress, ok := val.(bool)
	return ok && suppress
}

// WithRecorder attaches a metrics recorder to the context.
func WithRecorder(ctx context.Context, rec contract.Recorder) context.Context {
	return context.WithValue(ctx, recorderKey, rec)
}

// recorderFrom returns the recorder attached to the context, or a no-op one.
func recorderFrom(ctx context.Context) contract.Recorder {
	if rec, ok := ctx.Value(recorderKey).(contract.Recorder); ok && rec != nil {
		return rec
	}
	return contract.NopRecorder{}
}
