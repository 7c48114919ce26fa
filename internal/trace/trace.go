// Package trace 在 context 中传递 trace ID，日志经 zap 输出，每行带 trace 字段便于 grep。
// 通过 SetLogger 注入日志器，测试可替换为捕获型或 zap.NewNop。
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"
)

type ctxKey int

const traceIDKey ctxKey = 0

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

func NewTraceID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "0"
	}
	return hex.EncodeToString(b)
}

var (
	loggerMu sync.RWMutex
	logger   = zap.Must(zap.NewProduction()).Sugar()
)

// SetLogger 替换底层 zap 日志器；传 nil 则静默（zap.NewNop）。
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
}

func current() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func withTrace(ctx context.Context) *zap.SugaredLogger {
	id := TraceID(ctx)
	if id == "" {
		id = "-"
	}
	return current().With("trace", id)
}

// Log 打日志，附带 trace 字段。
func Log(ctx context.Context, format string, args ...interface{}) {
	withTrace(ctx).Infof(format, args...)
}

// Warn 同 Log，级别为告警（缓存读写失败、重试等非致命问题）。
func Warn(ctx context.Context, format string, args ...interface{}) {
	withTrace(ctx).Warnf(format, args...)
}

// Error 同 Log，级别为错误。
func Error(ctx context.Context, format string, args ...interface{}) {
	withTrace(ctx).Errorf(format, args...)
}
