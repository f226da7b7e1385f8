package xretry

import "context"

var (
	_ RetryPolicy = (*FixedRetryPolicy)(nil)
	_ RetryPolicy = (*AlwaysRetryPolicy)(nil)
	_ RetryPolicy = (*NeverRetryPolicy)(nil)
)

// FixedRetryPolicy 最多尝试 maxAttempts 次。
type FixedRetryPolicy struct {
	maxAttempts int
}

// NewFixedRetry maxAttempts 小于 1 时按 1 处理。
func NewFixedRetry(maxAttempts int) *FixedRetryPolicy {
	return &FixedRetryPolicy{maxAttempts: max(maxAttempts, 1)}
}

func (p *FixedRetryPolicy) MaxAttempts() int { return p.maxAttempts }

func (p *FixedRetryPolicy) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	return ctx.Err() == nil && attempt < p.maxAttempts && IsRetryable(err)
}

// AlwaysRetryPolicy 直到成功、遇到不可重试错误或 ctx 结束。
type AlwaysRetryPolicy struct{}

func NewAlwaysRetry() *AlwaysRetryPolicy { return &AlwaysRetryPolicy{} }

func (p *AlwaysRetryPolicy) MaxAttempts() int { return 0 }

func (p *AlwaysRetryPolicy) ShouldRetry(ctx context.Context, _ int, err error) bool {
	return ctx.Err() == nil && IsRetryable(err)
}

// NeverRetryPolicy 只执行一次。
type NeverRetryPolicy struct{}

func NewNeverRetry() *NeverRetryPolicy { return &NeverRetryPolicy{} }

func (p *NeverRetryPolicy) MaxAttempts() int { return 1 }

func (p *NeverRetryPolicy) ShouldRetry(context.Context, int, error) bool { return false }
