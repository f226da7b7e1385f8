package xtickid

import (
	"context"
	"time"

	"github.com/omeyang/xcluster/pkg/resilience/xbreaker"
)

// BreakerConfig 计数器熔断配置。
type BreakerConfig struct {
	// ConsecutiveFailures 连续失败多少次熔断，默认 5
	ConsecutiveFailures uint32 `json:"consecutiveFailures" yaml:"consecutiveFailures" koanf:"consecutiveFailures"`

	// OpenTimeout 熔断后多久放行探测请求，默认 10s
	OpenTimeout time.Duration `json:"openTimeout" yaml:"openTimeout" koanf:"openTimeout"`
}

type breakerProvider struct {
	inner   Provider
	breaker *xbreaker.Breaker[int64]
}

// NewBreakerProvider 为 p 加熔断：存储持续失败时快速失败，不再压垮它。
func NewBreakerProvider(p Provider, cfg BreakerConfig, opts ...xbreaker.Option) Provider {
	if p == nil {
		return nil
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	opts = append([]xbreaker.Option{
		xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(cfg.ConsecutiveFailures)),
		xbreaker.WithTimeout(cfg.OpenTimeout),
	}, opts...)
	return &breakerProvider{inner: p, breaker: xbreaker.New[int64]("xtickid:"+p.Name(), opts...)}
}

func (p *breakerProvider) Name() string { return p.inner.Name() }

func (p *breakerProvider) Acquire(ctx context.Context, count int64) (int64, error) {
	return p.breaker.Execute(ctx, func() (int64, error) {
		return p.inner.Acquire(ctx, count)
	})
}
