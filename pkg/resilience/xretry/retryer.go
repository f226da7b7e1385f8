package xretry

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
)

var _ Executor = (*Retryer)(nil)

// Retryer 策略化重试器，可并发复用。
type Retryer struct {
	retryPolicy   RetryPolicy
	backoffPolicy BackoffPolicy
	onRetry       func(attempt int, err error)
	timer         Timer
}

// RetryerOption 配置 Retryer。
type RetryerOption func(*Retryer)

// WithRetryPolicy 默认 NewFixedRetry(3)。
func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.retryPolicy = p
		}
	}
}

// WithBackoffPolicy 默认 NewExponentialBackoff()。
func WithBackoffPolicy(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoffPolicy = p
		}
	}
}

// WithOnRetry 每次失败且将要重试时回调，attempt 从 1 开始。
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		r.onRetry = f
	}
}

// WithTimer 替换等待使用的计时器，clockwork.Clock 即满足该接口。
func WithTimer(t Timer) RetryerOption {
	return func(r *Retryer) {
		r.timer = t
	}
}

// NewRetryer 创建重试器。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		retryPolicy:   NewFixedRetry(3),
		backoffPolicy: NewExponentialBackoff(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Do 执行 fn，直到成功或策略放弃。返回最后一次错误。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := r.check(ctx, fn == nil); err != nil {
		return err
	}
	return retry.New(r.options(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// DoWithResult 带返回值的 Do。
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := r.check(ctx, fn == nil); err != nil {
		var zero T
		return zero, err
	}
	return retry.NewWithData[T](r.options(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

func (r *Retryer) check(ctx context.Context, nilFn bool) error {
	switch {
	case r == nil:
		return ErrNilRetryer
	case ctx == nil:
		return ErrNilContext
	case nilFn:
		return ErrNilFunc
	}
	return nil
}

func (r *Retryer) options(ctx context.Context) []Option {
	opts := make([]Option, 0, 7)
	opts = append(opts, Context(ctx), LastErrorOnly(true))

	if n := r.retryPolicy.MaxAttempts(); n <= 0 {
		opts = append(opts, UntilSucceeded())
	} else {
		opts = append(opts, Attempts(uint(n)))
	}

	// retry-go 在每次失败后调用 RetryIf，用计数器还原 attempt 序号
	var attempts atomic.Int64
	opts = append(opts, RetryIf(func(err error) bool {
		n := int(attempts.Add(1))
		return IsRecoverable(err) && r.retryPolicy.ShouldRetry(ctx, n, err)
	}))

	backoff := r.backoffPolicy
	opts = append(opts, DelayType(func(n uint, _ error, _ DelayContext) time.Duration {
		return backoff.NextDelay(toInt(n))
	}))

	if r.onRetry != nil {
		onRetry := r.onRetry
		opts = append(opts, OnRetry(func(n uint, err error) {
			onRetry(toInt(n)+1, err)
		}))
	}
	if r.timer != nil {
		opts = append(opts, retry.WithTimer(r.timer))
	}
	return opts
}

func toInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}
