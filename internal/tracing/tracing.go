package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type requestInfoKey struct{}

// RequestInfo is the correlation data a request carries through the admin
// server and into backend calls.
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	SpanID    string    `json:"span_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

func requestInfo(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// update stores a modified copy so parent contexts are never affected.
func update(ctx context.Context, set func(*RequestInfo)) context.Context {
	info := requestInfo(ctx)
	set(&info)
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// GenerateRequestID returns a random UUID used as X-Request-ID.
func GenerateRequestID() string {
	return uuid.NewString()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return update(ctx, func(info *RequestInfo) { info.RequestID = id })
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return update(ctx, func(info *RequestInfo) { info.TraceID = id })
}

func WithSpanID(ctx context.Context, id string) context.Context {
	return update(ctx, func(info *RequestInfo) { info.SpanID = id })
}

func WithStartTime(ctx context.Context, start time.Time) context.Context {
	return update(ctx, func(info *RequestInfo) { info.StartTime = start })
}

// EnsureRequestID returns ctx unchanged when it already carries a request ID,
// otherwise a child context with a fresh one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := GetRequestID(ctx); id != "" {
		return ctx, id
	}
	id := GenerateRequestID()
	return WithRequestID(ctx, id), id
}

func GetRequestID(ctx context.Context) string { return requestInfo(ctx).RequestID }

func GetTraceID(ctx context.Context) string { return requestInfo(ctx).TraceID }

func GetSpanID(ctx context.Context) string { return requestInfo(ctx).SpanID }

func GetStartTime(ctx context.Context) time.Time { return requestInfo(ctx).StartTime }

// GetRequestInfo returns a copy of everything ctx carries.
func GetRequestInfo(ctx context.Context) *RequestInfo {
	info := requestInfo(ctx)
	return &info
}

// Duration is the time elapsed since the start time in ctx, or 0 when unset.
func Duration(ctx context.Context) time.Duration {
	start := GetStartTime(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
