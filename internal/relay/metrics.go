package relay

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/printpush/printpush/internal/relay"

// Metrics holds the relay client instruments.
type Metrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	pruned          metric.Int64Counter
}

// NewMetrics creates the relay instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"relay.request.duration",
		metric.WithDescription("Duration of relay requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"relay.request.total",
		metric.WithDescription("Total number of relay requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	pruned, err := meter.Int64Counter(
		"apps.pruned",
		metric.WithDescription("Registrations removed after the relay reported their token invalid"),
		metric.WithUnit("{app}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		pruned:          pruned,
	}, nil
}

func (m *Metrics) recordRequest(highPriority bool, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Bool("relay.high_priority", highPriority),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// The request context may already be cancelled here.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) recordPruned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.pruned.Add(context.Background(), int64(n))
}
