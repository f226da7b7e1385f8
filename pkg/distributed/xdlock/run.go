package xdlock

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunInLock 获取 keys 后执行 fn，任何退出路径（包括 panic）都会释放。
// 加锁超时返回 *LockTimeoutError，可用 errors.Is(err, ErrLockTimeout) 判断。
func (m *Mutex) RunInLock(ctx context.Context, keys []string, fn func(ctx context.Context) error, opts ...RunOption) error {
	if fn == nil {
		return ErrNilFunc
	}
	_, err := RunInLockValue(ctx, m, keys, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// RunInLockValue 带返回值的 RunInLock。
func RunInLockValue[T any](ctx context.Context, m *Mutex, keys []string, fn func(ctx context.Context) (T, error), opts ...RunOption) (result T, err error) {
	if fn == nil {
		return result, ErrNilFunc
	}
	if err := validateKeys(keys); err != nil {
		return result, err
	}
	ro := &runOptions{timeout: m.cfg.RunTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(ro)
		}
	}

	ctx, span := startSpan(ctx, m.tracer, spanNameRunInLock, trace.WithAttributes(
		attribute.StringSlice(attrKeys, keys),
		attribute.Int64(attrTimeout, ro.timeout.Milliseconds()),
	))
	defer func() {
		setSpanError(span, err)
		span.End()
	}()

	ok, lockErr := m.Lock(ctx, keys, ro.timeout)
	if !ok {
		if errors.Is(lockErr, ErrClosed) || (lockErr != nil && ctx.Err() != nil) {
			return result, lockErr
		}
		return result, &LockTimeoutError{Keys: keys, Timeout: ro.timeout, Err: lockErr}
	}
	span.SetAttributes(attribute.Bool(attrAcquired, true))

	defer func() {
		// 业务 ctx 可能已取消，释放仍要执行
		_ = m.Unlock(context.WithoutCancel(ctx), keys)
	}()
	return fn(ctx)
}
