package reconcile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/roach88/cartsync/internal/reconcile"

// Metric names.
const (
	MetricNotifications   = "cartsync.reconcile.notifications"
	MetricLinesRemoved    = "cartsync.reconcile.lines_removed"
	MetricLinesClamped    = "cartsync.reconcile.lines_clamped"
	MetricCorruptPayloads = "cartsync.reconcile.corrupt_payloads"
)

type metrics struct {
	notifications metric.Int64Counter
	removed       metric.Int64Counter
	clamped       metric.Int64Counter
	corrupt       metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(instrumentationName)

	notifications, err := meter.Int64Counter(MetricNotifications,
		metric.WithDescription("Notifications processed, by kind"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricNotifications, err)
	}
	removed, err := meter.Int64Counter(MetricLinesRemoved,
		metric.WithDescription("Cart lines removed by catalog revalidation"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricLinesRemoved, err)
	}
	clamped, err := meter.Int64Counter(MetricLinesClamped,
		metric.WithDescription("Cart lines clamped to available stock"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricLinesClamped, err)
	}
	corrupt, err := meter.Int64Counter(MetricCorruptPayloads,
		metric.WithDescription("Persisted carts that failed to decode"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricCorruptPayloads, err)
	}

	return &metrics{
		notifications: notifications,
		removed:       removed,
		clamped:       clamped,
		corrupt:       corrupt,
	}, nil
}

func (m *metrics) notification(ctx context.Context, k Kind) {
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", k.String())))
}
