package xdlock

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xcluster/pkg/observability/xlog"
)

// IDSource 提供锁 token，即本节点的集群 ID。
// *xclusterid.Allocator 满足该接口，Get 在拿到 ID 之前阻塞。
type IDSource interface {
	Get(ctx context.Context) (int, error)
}

// nodeIDReader 可非阻塞读取 ID 的 IDSource，未持有时返回负数。
// xclusterid.Allocator 实现了该接口。
type nodeIDReader interface {
	ID() int
}

// StaticID 固定 ID，用于测试或单节点部署。
type StaticID int

func (s StaticID) Get(context.Context) (int, error) { return int(s), nil }

func tokenOf(id int) string { return strconv.Itoa(id) }

type options struct {
	logger         xlog.Logger
	clock          clockwork.Clock
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// Option Mutex 选项。
type Option func(*options)

func defaultOptions() *options {
	return &options{clock: clockwork.NewRealClock()}
}

// WithLogger 默认 xlog.Default()。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock 注入时钟，心跳、等待计时与订阅重试都使用它。
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMeterProvider 设置后记录加锁、释放与唤醒指标。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 为 Lock 与 RunInLock 创建 span，默认使用全局 provider。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

type runOptions struct {
	timeout time.Duration
}

// RunOption RunInLock 选项。
type RunOption func(*runOptions)

// WithRunTimeout 覆盖 Config.RunTimeout。
func WithRunTimeout(d time.Duration) RunOption {
	return func(o *runOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}
