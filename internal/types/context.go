package types

import "context"

// Context Keys
type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID stores the computation trace ID in the context. Workers set
// it from the task envelope so every log line and outbound request in the
// unit of work carries the same correlation value.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context, empty if unset.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
