package xretry

import (
	"context"
	"time"
)

// RetryPolicy 决定是否继续重试。
type RetryPolicy interface {
	// MaxAttempts 最大尝试次数（含首次），0 表示不限
	MaxAttempts() int
	// ShouldRetry attempt 从 1 开始
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 计算第 attempt 次失败后的等待时间。
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// Executor 可执行重试的对象。
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
