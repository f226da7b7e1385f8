// Package xretry 基于 retry-go v5 的重试封装。
//
// [Retryer] 组合重试策略（[RetryPolicy]）与退避策略（[BackoffPolicy]）：
//
//	r := xretry.NewRetryer(
//		xretry.WithRetryPolicy(xretry.NewAlwaysRetry()),
//		xretry.WithBackoffPolicy(xretry.NewFixedBackoff(time.Second)),
//	)
//	err := r.Do(ctx, func(ctx context.Context) error { return subscribe(ctx) })
//
// 错误分类：[PermanentError] 立即停止重试，[TemporaryError] 与其他普通错误会重试。
// retry-go 的 Unrecoverable 同样被尊重。
package xretry
