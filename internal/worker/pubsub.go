package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/printpush/printpush/internal/notification"
)

// HostEventHandler applies host events.
type HostEventHandler interface {
	Handle(ev notification.HostEvent) error
}

// EventSubscriber feeds host events published on Pub/Sub into the host
// bridge.
type EventSubscriber struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	handler          HostEventHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the event subscriber.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Handler          HostEventHandler
	Logger           zerolog.Logger
}

// NewEventSubscriber creates a new Pub/Sub event subscriber.
func NewEventSubscriber(ctx context.Context, cfg PubSubConfig) (*EventSubscriber, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Host events are small and ordered per printer; keep few outstanding.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return &EventSubscriber{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		handler:          cfg.Handler,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is done.
func (s *EventSubscriber) Start(ctx context.Context) error {
	s.logger.Info().
		Str("subscription", s.subscriptionName).
		Msg("starting event subscriber")

	return s.subscriber.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		if s.process(msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (s *EventSubscriber) Close() error {
	return s.client.Close()
}

// process handles one message body and reports whether it should be acked.
// Malformed messages and unknown events are acked so they are not redelivered.
func (s *EventSubscriber) process(id string, data []byte) bool {
	logger := s.logger.With().Str("message_id", id).Logger()

	var ev notification.HostEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Warn().Err(err).Msg("dropping malformed event message")
		return true
	}

	if err := s.handler.Handle(ev); err != nil {
		if errors.Is(err, notification.ErrUnknownEvent) {
			logger.Warn().Str("event", ev.Kind).Msg("dropping unknown event")
			return true
		}
		logger.Error().Err(err).Str("event", ev.Kind).Msg("event handling failed")
		return false
	}

	logger.Debug().Str("event", ev.Kind).Msg("event handled")
	return true
}
