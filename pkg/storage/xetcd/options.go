package xetcd

import (
	"context"
	"crypto/tls"
	"time"
)

// 健康检查 key 可配置，以适配仅授权特定前缀的 RBAC 账号。
const defaultHealthCheckKey = "xetcd-health-check"

type options struct {
	ctx            context.Context
	healthCheck    bool
	healthTimeout  time.Duration
	healthCheckKey string
	tlsConfig      *tls.Config
	casAttempts    int
	casBackoff     time.Duration
}

func defaultOptions() *options {
	return &options{
		ctx:            context.Background(),
		healthTimeout:  10 * time.Second,
		healthCheckKey: defaultHealthCheckKey,
		casAttempts:    10,
		casBackoff:     5 * time.Millisecond,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Option 客户端选项。
type Option func(*options)

// WithContext 创建阶段（健康检查）使用的 ctx，不影响连接生命周期。
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithHealthCheck 创建后先探测一次，失败则 NewClient 返回错误。默认超时 10s。
func WithHealthCheck(enabled bool, timeout time.Duration) Option {
	return func(o *options) {
		o.healthCheck = enabled
		if timeout > 0 {
			o.healthTimeout = timeout
		}
	}
}

// WithHealthCheckKey 健康检查读取的 key，默认 "xetcd-health-check"。
func WithHealthCheckKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.healthCheckKey = key
		}
	}
}

// WithTLS 启用 TLS。
func WithTLS(config *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = config
	}
}

// WithCASRetry Incr 冲突重试次数与初始退避，默认 10 次、5ms 起指数退避。
func WithCASRetry(attempts int, backoff time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.casAttempts = attempts
		}
		if backoff > 0 {
			o.casBackoff = backoff
		}
	}
}
