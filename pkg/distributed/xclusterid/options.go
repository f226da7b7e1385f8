package xclusterid

import (
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xcluster/pkg/observability/xlog"
)

type options struct {
	clock         clockwork.Clock
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	onChange      func(State, int)
}

func defaultOptions() *options {
	return &options{clock: clockwork.NewRealClock()}
}

// Option Allocator 选项。
type Option func(*options)

// WithClock 注入时钟，控制重试、心跳与恢复的间隔。
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

// WithMeterProvider 设置 OpenTelemetry MeterProvider，默认使用全局 provider。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithOnChange 每次状态变化后在后台 goroutine 中回调，id 为 -1 表示未持有。
// 回调不应阻塞。
func WithOnChange(fn func(state State, id int)) Option {
	return func(o *options) {
		o.onChange = fn
	}
}
