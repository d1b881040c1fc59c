package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/remoteconfig"
	"github.com/printpush/printpush/internal/secrets"
)

type sentRequest struct {
	Targets      []string
	HighPriority bool
	AndroidData  *string
	ApnsData     any
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentRequest
	err   error
	block chan struct{}
}

func (f *fakeSender) SendRaw(ctx context.Context, targets []apps.AppInstance, highPriority bool, androidData *string, apnsData any) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentRequest{
		Targets:      apps.Tokens(targets),
		HighPriority: highPriority,
		AndroidData:  androidData,
		ApnsData:     apnsData,
	})
	return f.err
}

func (f *fakeSender) all() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.sent...)
}

type staticConfig struct {
	cfg remoteconfig.Config
}

func (s staticConfig) Current() remoteconfig.Config { return s.cfg }

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	registry   *apps.Registry
	sender     *fakeSender
	keys       *secrets.KeyProvider
	builder    *PayloadBuilder
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := apps.NewRegistry(apps.RegistryConfig{
		Repository: apps.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return testNow },
	})
	sender := &fakeSender{}
	keys := secrets.NewKeyProvider(secrets.NewInMemoryRepository(), zerolog.Nop())
	builder := NewPayloadBuilder(PayloadBuilderConfig{
		PrinterName:   "Prusa",
		TerminalDelay: -1,
		Now:           func() time.Time { return testNow },
	})

	return &fixture{
		registry: registry,
		sender:   sender,
		keys:     keys,
		builder:  builder,
		dispatcher: NewDispatcher(DispatcherConfig{
			Apps:    registry,
			Sender:  sender,
			Keys:    keys,
			Builder: builder,
			Logger:  zerolog.Nop(),
		}),
	}
}

func (f *fixture) register(t *testing.T, token, instanceID string) {
	t.Helper()
	_, err := f.registry.Register(context.Background(), apps.RegisterRequest{
		Token:       token,
		InstanceID:  instanceID,
		DisplayName: "Phone",
		Model:       "model",
		AppVersion:  "1.0.0",
		AppBuild:    100,
		AppLanguage: "en",
	})
	require.NoError(t, err)
}
