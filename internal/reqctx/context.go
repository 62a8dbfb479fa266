package reqctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	keyRequestID ctxKey = "request_id"
	keyUID       ctxKey = "uid"
)

// WithRequestID stores the correlation id used in service logs.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRequestID, rid)
}

// RequestID returns correlation id if present.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}

// WithUID stores the authenticated user id.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyUID, uid)
}

// UID returns the authenticated user id if present.
func UID(ctx context.Context) string {
	v, _ := ctx.Value(keyUID).(string)
	return v
}

// Fields returns the correlation fields for a log line.
func Fields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if rid := RequestID(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	if uid := UID(ctx); uid != "" {
		fields = append(fields, zap.String("uid", uid))
	}
	return fields
}
