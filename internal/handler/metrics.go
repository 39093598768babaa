package handler

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xenking/shopkart/internal/handler"

type metrics struct {
	couponValidations metric.Int64Counter
	ordersPlaced      metric.Int64Counter
	statusChanges     metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)

	couponValidations, err := meter.Int64Counter("shopkart.coupon.validations",
		metric.WithDescription("Coupon validations by outcome"),
	)
	if err != nil {
		return nil, err
	}
	ordersPlaced, err := meter.Int64Counter("shopkart.orders.placed",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, err
	}
	statusChanges, err := meter.Int64Counter("shopkart.orders.status_changes",
		metric.WithDescription("Order status changes by outcome"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{
		couponValidations: couponValidations,
		ordersPlaced:      ordersPlaced,
		statusChanges:     statusChanges,
	}, nil
}

func (m *metrics) couponValidated(ctx context.Context, outcome string) {
	m.couponValidations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) orderPlaced(ctx context.Context, withCoupon bool) {
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.Bool("coupon", withCoupon)))
}

func (m *metrics) statusChanged(ctx context.Context, to, outcome string) {
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("to", to),
		attribute.String("outcome", outcome),
	))
}
