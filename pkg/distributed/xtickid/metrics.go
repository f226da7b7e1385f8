package xtickid

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "xtickid"

	metricNameRefillTotal    = "xtickid.refill.total"
	metricNameRefillDuration = "xtickid.refill.duration"

	attrName    = "xtickid.name"
	attrSuccess = "xtickid.success"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

type metrics struct {
	refillTotal    metric.Int64Counter
	refillDuration metric.Float64Histogram
}

// newMetrics mp 为 nil 时返回 nil，记录方法对 nil 接收者是空操作。
func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter(meterName)
	m := &metrics{}
	var err error
	if m.refillTotal, err = meter.Int64Counter(metricNameRefillTotal,
		metric.WithDescription("号段补充次数"), metric.WithUnit("{refill}")); err != nil {
		return nil, err
	}
	if m.refillDuration, err = meter.Float64Histogram(metricNameRefillDuration,
		metric.WithDescription("号段补充耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) recordRefill(ctx context.Context, name string, err error, d time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String(attrName, name),
		attribute.Bool(attrSuccess, err == nil),
	)
	m.refillTotal.Add(ctx, 1, attrs)
	m.refillDuration.Record(ctx, d.Seconds(), attrs)
}
