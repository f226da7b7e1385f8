package xdlock

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "xdlock"

	metricNameAcquireTotal    = "xdlock.acquire.total"
	metricNameAcquireDuration = "xdlock.acquire.duration"
	metricNameReleaseTotal    = "xdlock.release.total"
	metricNameWakeupTotal     = "xdlock.wakeup.total"
)

// 指标与 span 共用的属性名
const (
	attrOp       = "xdlock.op"
	attrAcquired = "xdlock.acquired"
	attrKeys     = "xdlock.keys"
	attrSource   = "xdlock.source"
	attrTimeout  = "xdlock.timeout_ms"
)

const (
	opTry  = "try"
	opLock = "lock"

	sourceLocal  = "local"
	sourceRemote = "remote"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3, 10}

type metrics struct {
	acquireTotal    metric.Int64Counter
	acquireDuration metric.Float64Histogram
	releaseTotal    metric.Int64Counter
	wakeupTotal     metric.Int64Counter
}

// newMetrics mp 为 nil 时返回 nil，记录方法对 nil 接收者是空操作。
func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter(meterName)
	m := &metrics{}
	var err error
	if m.acquireTotal, err = meter.Int64Counter(metricNameAcquireTotal,
		metric.WithDescription("加锁尝试次数"), metric.WithUnit("{acquire}")); err != nil {
		return nil, err
	}
	if m.acquireDuration, err = meter.Float64Histogram(metricNameAcquireDuration,
		metric.WithDescription("Lock 从调用到返回的耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if m.releaseTotal, err = meter.Int64Counter(metricNameReleaseTotal,
		metric.WithDescription("释放的锁 key 数"), metric.WithUnit("{key}")); err != nil {
		return nil, err
	}
	if m.wakeupTotal, err = meter.Int64Counter(metricNameWakeupTotal,
		metric.WithDescription("被释放通知唤醒的等待者数"), metric.WithUnit("{waiter}")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) recordAcquire(ctx context.Context, op string, acquired bool) {
	if m == nil {
		return
	}
	m.acquireTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.Bool(attrAcquired, acquired),
	))
}

func (m *metrics) recordLockDuration(ctx context.Context, acquired bool, d time.Duration) {
	if m == nil {
		return
	}
	m.acquireDuration.Record(context.WithoutCancel(ctx), d.Seconds(),
		metric.WithAttributes(attribute.Bool(attrAcquired, acquired)))
}

func (m *metrics) recordRelease(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.releaseTotal.Add(context.WithoutCancel(ctx), int64(n))
}

func (m *metrics) recordWakeup(ctx context.Context, source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.wakeupTotal.Add(context.WithoutCancel(ctx), int64(n),
		metric.WithAttributes(attribute.String(attrSource, source)))
}
