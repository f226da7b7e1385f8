package xtickid

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xcluster/pkg/observability/xlog"
)

const (
	// DefaultBatchSize 每次向计数器预留的号数
	DefaultBatchSize int64 = 1000

	// DefaultMaxWait Generate 不指定超时时的等待上限
	DefaultMaxWait = 24 * time.Hour

	// DefaultPrefix 计数器 key 前缀
	DefaultPrefix = "tick"
)

type options struct {
	batch         int64
	maxWait       time.Duration
	clock         clockwork.Clock
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	backoffMin    time.Duration
	backoffMax    time.Duration
}

func defaultOptions() *options {
	return &options{
		batch:      DefaultBatchSize,
		maxWait:    DefaultMaxWait,
		clock:      clockwork.NewRealClock(),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 5 * time.Second,
	}
}

// Option Allocator 选项。
type Option func(*options)

// WithBatch 每次补充的号段大小，默认 1000。
func WithBatch(n int64) Option {
	return func(o *options) {
		o.batch = n
	}
}

// WithMaxWait Generate 的等待上限，默认 24h。
func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxWait = d
		}
	}
}

// WithClock 注入时钟（测试用 clockwork.NewFakeClock）。
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger 默认 xlog.Default()。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMeterProvider 设置后记录补充次数与耗时。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithRefillBackoff 补充失败后的指数退避区间，默认 50ms 到 5s。
func WithRefillBackoff(initial, limit time.Duration) Option {
	return func(o *options) {
		if initial > 0 {
			o.backoffMin = initial
		}
		if limit >= o.backoffMin {
			o.backoffMax = limit
		}
	}
}
