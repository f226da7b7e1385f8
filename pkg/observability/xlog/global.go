package xlog

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	globalLogger atomic.Pointer[LoggerWithLevel]
	globalOnce   sync.Once
)

// Default 返回全局 Logger，首次调用时以默认参数创建。
func Default() LoggerWithLevel {
	if l := globalLogger.Load(); l != nil {
		return *l
	}
	globalOnce.Do(func() {
		if globalLogger.Load() != nil {
			return
		}
		// 默认参数不会构建失败
		l, _, _ := New().Build()
		globalLogger.Store(&l)
	})
	return *globalLogger.Load()
}

// SetDefault 替换全局 Logger，nil 被忽略。
func SetDefault(l LoggerWithLevel) {
	if l == nil {
		return
	}
	globalLogger.Store(&l)
}

// Discard 返回丢弃所有输出的 Logger。
func Discard() LoggerWithLevel {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelError + 1)
	return &xlogger{
		handler:  slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: lv}),
		levelVar: lv,
	}
}
