package notification

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/printpush/printpush/internal/notification"

// Dispatch results recorded on the dispatched counter.
const (
	resultSent    = "sent"
	resultDropped = "dropped"
	resultFailed  = "failed"
)

// Metrics holds the notification instruments. A nil *Metrics records nothing.
type Metrics struct {
	dispatched metric.Int64Counter
	inFlight   metric.Int64UpDownCounter
	throttled  metric.Int64Counter
}

// NewMetrics creates the notification instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	dispatched, err := meter.Int64Counter(
		"notifications.dispatched",
		metric.WithDescription("Notifications handled by the dispatcher by event and result"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"notifications.in_flight",
		metric.WithDescription("Notifications currently being dispatched"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	throttled, err := meter.Int64Counter(
		"notifications.throttled",
		metric.WithDescription("Progress ticks dropped or restricted by the throttle"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		dispatched: dispatched,
		inFlight:   inFlight,
		throttled:  throttled,
	}, nil
}

func (m *Metrics) recordDispatch(ctx context.Context, k Kind, result string) {
	if m == nil {
		return
	}
	m.dispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(k)),
		attribute.String("result", result),
	))
}

func (m *Metrics) addInFlight(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.inFlight.Add(ctx, delta)
}

func (m *Metrics) recordThrottle(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	m.throttled.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}
