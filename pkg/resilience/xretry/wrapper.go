package xretry

import (
	"context"

	retry "github.com/avast/retry-go/v5"
)

// retry-go 类型与选项的别名，调用方无需直接 import retry-go。
type (
	Option        = retry.Option
	DelayTypeFunc = retry.DelayTypeFunc
	DelayContext  = retry.DelayContext
	Timer         = retry.Timer
)

var (
	Attempts       = retry.Attempts
	UntilSucceeded = retry.UntilSucceeded
	Delay          = retry.Delay
	DelayType      = retry.DelayType
	OnRetry        = retry.OnRetry
	RetryIf        = retry.RetryIf
	Context        = retry.Context
	LastErrorOnly  = retry.LastErrorOnly
	FixedDelay     = retry.FixedDelay
	Unrecoverable  = retry.Unrecoverable
	IsRecoverable  = retry.IsRecoverable
)

// Do 以 retry-go 原生选项执行，默认只重试 IsRetryable 的错误。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	return retry.New(defaultOpts(ctx, opts)...).Do(fn)
}

func defaultOpts(ctx context.Context, opts []Option) []Option {
	all := make([]Option, 0, len(opts)+2)
	all = append(all, Context(ctx), RetryIf(func(err error) bool {
		return IsRecoverable(err) && IsRetryable(err)
	}))
	return append(all, opts...)
}
