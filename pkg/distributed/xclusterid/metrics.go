package xclusterid

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "xclusterid"

	metricNameTransitionTotal = "xclusterid.transition.total"

	attrState = "xclusterid.state"
)

type metrics struct {
	transitionTotal metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		return nil, nil
	}
	c, err := mp.Meter(meterName).Int64Counter(metricNameTransitionTotal,
		metric.WithDescription("ID 状态迁移次数"), metric.WithUnit("{transition}"))
	if err != nil {
		return nil, err
	}
	return &metrics{transitionTotal: c}, nil
}

func (m *metrics) recordTransition(ctx context.Context, to State) {
	if m == nil {
		return
	}
	m.transitionTotal.Add(context.WithoutCancel(ctx), 1,
		metric.WithAttributes(attribute.String(attrState, to.String())))
}
