package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

var (
	ErrNilBreaker = errors.New("xbreaker: breaker cannot be nil")
	ErrNilFunc    = errors.New("xbreaker: function cannot be nil")

	ErrOpenState       = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// BreakerError 熔断器拒绝执行时返回的错误。
type BreakerError struct {
	Err   error
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

func (e *BreakerError) Unwrap() error { return e.Err }

// Retryable 熔断期间重试无意义，实现 xretry.RetryableError。
func (e *BreakerError) Retryable() bool { return false }

// wrapBreakerError 只包装直接返回的 sentinel，嵌套熔断器的错误保持原来源。
// 状态由错误类型推导，不再回查 State() 以免读到之后的状态。
func wrapBreakerError(err error, name string) error {
	//nolint:errorlint // 只匹配 gobreaker 直接返回的 sentinel
	switch err {
	case gobreaker.ErrOpenState:
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	case gobreaker.ErrTooManyRequests:
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	}
	return err
}

// IsOpen 是否为熔断打开。
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}

// IsBreakerError 是否为熔断器拒绝（打开或半开限流）。
func IsBreakerError(err error) bool {
	return IsOpen(err) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
