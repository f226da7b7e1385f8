// Package xbreaker 基于 [sony/gobreaker/v2] 的熔断器。
//
// [Breaker] 以 [TripPolicy] 决定何时从 Closed 进入 Open；Open 期间调用直接失败，
// 超过 Timeout 后进入 HalfOpen 放行少量探测请求。
//
// 熔断错误包装为 [*BreakerError]，其 Retryable() 返回 false，
// 与 xretry 组合时不会在熔断期间继续退避重试（调用方可显式改为可重试）。
//
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xbreaker
