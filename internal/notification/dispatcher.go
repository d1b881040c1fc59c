package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/secrets"
)

// AppStore is the registry view the dispatcher needs.
type AppStore interface {
	GetAll(ctx context.Context) ([]apps.AppInstance, error)
	RemoveTemporary(ctx context.Context) (int, error)
}

// Sender delivers a prepared request to the relay.
type Sender interface {
	SendRaw(ctx context.Context, targets []apps.AppInstance, highPriority bool, androidData *string, apnsData any) error
}

// CipherSource provides the payload cipher.
type CipherSource interface {
	Cipher(ctx context.Context) (*secrets.Cipher, error)
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	Apps    AppStore
	Sender  Sender
	Keys    CipherSource
	Builder *PayloadBuilder
	Metrics *Metrics
	Logger  zerolog.Logger
}

// Dispatcher turns one event into at most one relay request.
type Dispatcher struct {
	apps    AppStore
	sender  Sender
	keys    CipherSource
	builder *PayloadBuilder
	metrics *Metrics
	logger  zerolog.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Builder == nil {
		cfg.Builder = NewPayloadBuilder(PayloadBuilderConfig{})
	}
	return &Dispatcher{
		apps:    cfg.Apps,
		sender:  cfg.Sender,
		keys:    cfg.Keys,
		builder: cfg.Builder,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Send selects targets for the event, builds the payloads and delivers them.
// Events nobody would observe are dropped without error. After cancelled and
// completed every live activity registration is removed, because the print
// session they tracked has ended.
func (d *Dispatcher) Send(ctx context.Context, ev Event, st PrintState, onlyActivities bool) error {
	k := ev.Kind()
	log := d.logger.With().Str("event", string(k)).Bool("only_activities", onlyActivities).Logger()

	if k == KindIdle {
		d.metrics.recordDispatch(ctx, k, resultDropped)
		return nil
	}

	all, err := d.apps.GetAll(ctx)
	if err != nil {
		d.metrics.recordDispatch(ctx, k, resultFailed)
		return fmt.Errorf("loading apps: %w", err)
	}

	targets := SelectTargets(all, k, onlyActivities)
	if len(targets) == 0 {
		log.Debug().Msg("no targets, skipping notification")
		d.metrics.recordDispatch(ctx, k, resultDropped)
		return nil
	}

	android := apps.AndroidApps(targets)
	activities := apps.Activities(targets)
	ios := apps.IOSApps(targets)

	var apnsData ApnsPayload
	if len(ios) > 0 || len(activities) > 0 {
		apnsData, err = d.builder.BuildApns(ctx, k, st)
		if err != nil {
			d.metrics.recordDispatch(ctx, k, resultFailed)
			return fmt.Errorf("building apns payload: %w", err)
		}
	}

	if len(android) == 0 && apnsData == nil {
		log.Debug().Msg("no android targets and no apns payload, skipping notification")
		d.metrics.recordDispatch(ctx, k, resultDropped)
		return nil
	}
	if len(android) == 0 && len(activities) == 0 && !apnsData.HasAlert() {
		log.Debug().Msg("silent update for plain ios targets only, skipping notification")
		d.metrics.recordDispatch(ctx, k, resultDropped)
		return nil
	}

	androidData, err := d.encryptAndroid(ctx, k, st)
	if err != nil {
		d.metrics.recordDispatch(ctx, k, resultFailed)
		return err
	}

	var apns any
	if apnsData != nil {
		apns = apnsData
	}

	sendErr := d.sender.SendRaw(ctx, targets, !onlyActivities, androidData, apns)
	if sendErr != nil {
		d.metrics.recordDispatch(ctx, k, resultFailed)
	} else {
		d.metrics.recordDispatch(ctx, k, resultSent)
		log.Info().
			Int("target_count", len(targets)).
			Int("android_count", len(android)).
			Int("activity_count", len(activities)).
			Int("ios_count", len(ios)).
			Msg("notification sent")
	}

	if k.IsTerminal() {
		if _, err := d.apps.RemoveTemporary(ctx); err != nil {
			log.Error().Err(err).Msg("failed to remove temporary apps")
		}
	}

	if sendErr != nil {
		return fmt.Errorf("sending %s notification: %w", k, sendErr)
	}
	return nil
}

// SendExpired ends the given live activities with an expired state.
func (d *Dispatcher) SendExpired(ctx context.Context, targets []apps.AppInstance, st PrintState) error {
	if len(targets) == 0 {
		return nil
	}
	if err := d.sender.SendRaw(ctx, targets, true, nil, d.builder.BuildExpired(st)); err != nil {
		return fmt.Errorf("sending expired notification: %w", err)
	}
	return nil
}

func (d *Dispatcher) encryptAndroid(ctx context.Context, k Kind, st PrintState) (*string, error) {
	payload, ok := d.builder.BuildAndroid(k, st)
	if !ok {
		return nil, nil
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling android payload: %w", err)
	}

	cipher, err := d.keys.Cipher(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading payload cipher: %w", err)
	}

	encrypted, err := cipher.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting android payload: %w", err)
	}
	return &encrypted, nil
}
