package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/notification"
	"github.com/printpush/printpush/internal/relay"
	"github.com/printpush/printpush/internal/remoteconfig"
	"github.com/printpush/printpush/internal/secrets"
	"github.com/printpush/printpush/internal/worker"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticEndpoint string

func (e staticEndpoint) RelayURL(context.Context) string { return string(e) }

type staticConfig struct{}

func (staticConfig) Current() remoteconfig.Config { return remoteconfig.DefaultConfig() }

type relayRequest struct {
	Targets []struct {
		Token string `json:"fcmToken"`
	} `json:"targets"`
	HighPriority bool            `json:"highPriority"`
	AndroidData  *string         `json:"androidData"`
	ApnsData     json.RawMessage `json:"apnsData"`
}

func (r relayRequest) tokens() []string {
	var out []string
	for _, t := range r.Targets {
		out = append(out, t.Token)
	}
	return out
}

type fakeRelay struct {
	mu       sync.Mutex
	requests []relayRequest
}

func (f *fakeRelay) handler(w http.ResponseWriter, r *http.Request) {
	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"invalidTokens":[]}`))
}

func (f *fakeRelay) all() []relayRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relayRequest(nil), f.requests...)
}

type harness struct {
	clock    *clock
	registry *apps.Registry
	relay    *fakeRelay
	engine   *notification.Engine
	sweeper  *worker.ExpirySweeper
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	registry := apps.NewRegistry(apps.RegistryConfig{
		Repository: apps.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
		Now:        c.Now,
	})

	fake := &fakeRelay{}
	server := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(server.Close)

	relayClient := relay.NewClient(relay.ClientConfig{
		Endpoint: staticEndpoint(server.URL),
		Pruner:   registry,
		Logger:   zerolog.Nop(),
	})

	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{
		Apps:   registry,
		Sender: relayClient,
		Keys:   secrets.NewKeyProvider(secrets.NewInMemoryRepository(), zerolog.Nop()),
		Builder: notification.NewPayloadBuilder(notification.PayloadBuilderConfig{
			TerminalDelay: -1,
			Now:           c.Now,
		}),
		Logger: zerolog.Nop(),
	})

	engine := notification.NewEngine(notification.EngineConfig{
		Dispatcher: dispatcher,
		Config:     staticConfig{},
		Logger:     zerolog.Nop(),
		Now:        c.Now,
	})

	sweeper := worker.NewExpirySweeper(worker.SweeperConfig{
		Apps:     registry,
		Notifier: engine,
		Logger:   zerolog.Nop(),
		Now:      c.Now,
	})

	return &harness{clock: c, registry: registry, relay: fake, engine: engine, sweeper: sweeper}
}

func (h *harness) register(t *testing.T, token, instanceID string, expireInSecs int64) {
	t.Helper()
	req := apps.RegisterRequest{
		Token:       token,
		InstanceID:  instanceID,
		DisplayName: "Pixel 8",
		Model:       "pixel8",
		AppVersion:  "1.20.0",
		AppBuild:    120,
		AppLanguage: "en",
	}
	if expireInSecs > 0 {
		req.ExpireInSecs = &expireInSecs
	}
	_, err := h.registry.Register(context.Background(), req)
	require.NoError(t, err)
}

func (h *harness) tokens(t *testing.T) []string {
	t.Helper()
	all, err := h.registry.GetAll(context.Background())
	require.NoError(t, err)
	return apps.Tokens(all)
}

func TestEndToEnd_StartedThenExpirySweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register(t, "A1", "dev1", 0)
	h.register(t, "activity:L1", "dev1", 10)

	require.NoError(t, h.engine.NotifySync(ctx, notification.Started{FileName: "benchy.gcode"}, notification.PrintState{ID: "p1"}))

	requests := h.relay.all()
	require.Len(t, requests, 1)
	assert.Equal(t, []string{"activity:L1"}, requests[0].tokens())
	assert.True(t, requests[0].HighPriority)

	h.clock.Advance(11 * time.Second)
	result, err := h.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	requests = h.relay.all()
	require.Len(t, requests, 2)
	assert.Equal(t, []string{"activity:L1"}, requests[1].tokens())
	assert.True(t, requests[1].HighPriority)
	assert.Nil(t, requests[1].AndroidData)

	var apns notification.ActivityPayload
	require.NoError(t, json.Unmarshal(requests[1].ApnsData, &apns))
	assert.Equal(t, notification.ActivityEventEnd, apns.Event)
	assert.Equal(t, notification.StateExpired, apns.ContentState.State)
	assert.Equal(t, "benchy.gcode", apns.ContentState.FileName)

	assert.Equal(t, []string{"A1"}, h.tokens(t))

	result, err = h.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Expired)
	assert.Len(t, h.relay.all(), 2)
	assert.Equal(t, []string{"A1"}, h.tokens(t))

	m := h.sweeper.GetMetrics()
	assert.Equal(t, int64(2), m.TotalSweeps)
	assert.Equal(t, int64(1), m.Removed)
}

func TestExpirySweeper_RenewedActivitySurvives(t *testing.T) {
	h := newHarness(t)

	h.register(t, "activity:L1", "dev1", 10)
	h.clock.Advance(11 * time.Second)
	h.register(t, "activity:L1", "dev1", 10)

	result, err := h.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Removed)
	assert.Empty(t, h.relay.all())
	assert.Equal(t, []string{"activity:L1"}, h.tokens(t))
}

func TestExpirySweeper_KeepsExpiredNonActivities(t *testing.T) {
	h := newHarness(t)

	h.register(t, "A1", "dev1", 10)
	h.register(t, "ios:I1", "dev2", 10)
	h.register(t, "activity:L1", "dev2", 10)
	h.clock.Advance(31 * 24 * time.Hour)

	result, err := h.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 1, result.Removed)

	requests := h.relay.all()
	require.Len(t, requests, 1)
	assert.Equal(t, []string{"activity:L1"}, requests[0].tokens())
	assert.ElementsMatch(t, []string{"A1", "ios:I1"}, h.tokens(t))

	result, err = h.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Expired)
	assert.Len(t, h.relay.all(), 1)
	assert.ElementsMatch(t, []string{"A1", "ios:I1"}, h.tokens(t))
}

type failingApps struct{}

func (failingApps) GetAll(context.Context) ([]apps.AppInstance, error) {
	return nil, errors.New("disk gone")
}

func (failingApps) RemoveExpired(context.Context, []string, time.Time) (int, error) {
	return 0, nil
}

func TestExpirySweeper_RunSurvivesFailures(t *testing.T) {
	sweeper := worker.NewExpirySweeper(worker.SweeperConfig{
		Apps:     failingApps{},
		Logger:   zerolog.Nop(),
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sweeper.GetMetrics().FailedSweeps >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
