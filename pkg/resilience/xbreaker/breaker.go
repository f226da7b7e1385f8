package xbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

type (
	Counts = gobreaker.Counts
	State  = gobreaker.State
)

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Breaker 熔断器，并发安全。
type Breaker[T any] struct {
	name string
	cb   *gobreaker.CircuitBreaker[T]
}

type config struct {
	tripPolicy    TripPolicy
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	onStateChange func(name string, from, to State)
}

// Option 熔断器选项。
type Option func(*config)

// WithTripPolicy 默认连续失败 5 次熔断。
func WithTripPolicy(p TripPolicy) Option {
	return func(c *config) {
		if p != nil {
			c.tripPolicy = p
		}
	}
}

// WithTimeout Open 到 HalfOpen 的等待时间，默认 60s。
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInterval Closed 状态下清零计数的周期，默认 0（不清零）。
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		c.interval = d
	}
}

// WithMaxRequests HalfOpen 放行的请求数，默认 1。
func WithMaxRequests(n uint32) Option {
	return func(c *config) {
		if n > 0 {
			c.maxRequests = n
		}
	}
}

// WithOnStateChange 状态变化回调。
func WithOnStateChange(f func(name string, from, to State)) Option {
	return func(c *config) {
		c.onStateChange = f
	}
}

// New 创建熔断器，T 为受保护操作的返回值类型。
func New[T any](name string, opts ...Option) *Breaker[T] {
	c := &config{
		tripPolicy:  NewConsecutiveFailures(5),
		timeout:     60 * time.Second,
		maxRequests: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: c.maxRequests,
		Interval:    c.interval,
		Timeout:     c.timeout,
		ReadyToTrip: c.tripPolicy.ReadyToTrip,
	}
	if c.onStateChange != nil {
		st.OnStateChange = c.onStateChange
	}
	return &Breaker[T]{name: name, cb: gobreaker.NewCircuitBreaker[T](st)}
}

// Execute 在熔断保护下执行 fn。ctx 已结束时不执行。
func (b *Breaker[T]) Execute(ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if b == nil {
		return zero, ErrNilBreaker
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	v, err := b.cb.Execute(fn)
	if err != nil {
		return zero, wrapBreakerError(err, b.name)
	}
	return v, nil
}

// Name 熔断器名称。
func (b *Breaker[T]) Name() string { return b.name }

// State 当前状态。
func (b *Breaker[T]) State() State { return b.cb.State() }

// Counts 当前计数。
func (b *Breaker[T]) Counts() Counts { return b.cb.Counts() }
