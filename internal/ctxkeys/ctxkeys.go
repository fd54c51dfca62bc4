// Package ctxkeys 集中定义跨包共享的 context 键，
// 避免各包私有键类型之间的冲突与重复。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	queryIDKey   contextKey = "query_id"
)

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithQueryID 设置咨询查询 ID（反馈日志的键）
func WithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryIDKey, queryID)
}

// QueryID 获取咨询查询 ID
func QueryID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(queryIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
