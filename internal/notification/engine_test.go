package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printpush/printpush/internal/remoteconfig"
)

type engineClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *engineClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *engineClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T, f *fixture, clock *engineClock, maxPending int64) *Engine {
	t.Helper()
	e := NewEngine(EngineConfig{
		Dispatcher: f.dispatcher,
		Config:     staticConfig{cfg: remoteconfig.DefaultConfig()},
		Logger:     zerolog.Nop(),
		MaxPending: maxPending,
		Now:        clock.Now,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func TestEngine_StartedPrefersActivity(t *testing.T) {
	f := newFixture(t)
	f.register(t, "A1", "dev1")
	f.register(t, "activity:L1", "dev1")
	e := newTestEngine(t, f, &engineClock{now: testNow}, 0)

	e.Notify(Started{FileName: "benchy.gcode"}, PrintState{ID: "p1"})

	require.Eventually(t, func() bool { return len(f.sender.all()) == 1 }, time.Second, 5*time.Millisecond)
	sent := f.sender.all()[0]
	assert.Equal(t, []string{"activity:L1"}, sent.Targets)
	assert.True(t, sent.HighPriority)
	assert.IsType(t, &AlertPayload{}, sent.ApnsData)
	assert.Equal(t, "benchy.gcode", e.LastPrintState().Name)
}

func TestEngine_ThrottlesProgress(t *testing.T) {
	f := newFixture(t)
	f.register(t, "activity:L1", "dev1")
	clock := &engineClock{now: testNow}
	e := newTestEngine(t, f, clock, 0)
	ctx := context.Background()
	st := PrintState{ID: "p1", Name: "benchy.gcode"}

	require.NoError(t, e.NotifySync(ctx, Started{}, st))
	clock.Advance(time.Second)
	require.NoError(t, e.NotifySync(ctx, Progress{Progress: 10}, st))
	clock.Advance(10 * time.Second)
	require.NoError(t, e.NotifySync(ctx, Progress{Progress: 43}, st))
	clock.Advance(301 * time.Second)
	require.NoError(t, e.NotifySync(ctx, Progress{Progress: 43}, st))

	sent := f.sender.all()
	require.Len(t, sent, 3)
	assert.True(t, sent[1].HighPriority)
	assert.False(t, sent[2].HighPriority)
	assert.Equal(t, 43, e.LastPrintState().Progress)
}

func TestEngine_CompletedForcesFullProgress(t *testing.T) {
	f := newFixture(t)
	f.register(t, "activity:L1", "dev1")
	e := newTestEngine(t, f, &engineClock{now: testNow}, 0)

	require.NoError(t, e.NotifySync(context.Background(), Completed{}, PrintState{ID: "p1", Progress: 97}))

	sent := f.sender.all()
	require.Len(t, sent, 1)
	assert.Equal(t, 100, sent[0].ApnsData.(*ActivityPayload).ContentState.Progress)
	assert.Equal(t, 100, e.LastPrintState().Progress)
}

func TestEngine_BoundsPendingDispatches(t *testing.T) {
	f := newFixture(t)
	f.register(t, "A1", "dev1")
	f.sender.block = make(chan struct{})
	e := newTestEngine(t, f, &engineClock{now: testNow}, 2)

	for i := 0; i < 5; i++ {
		e.Notify(Beep{}, PrintState{})
	}
	assert.Equal(t, int64(2), e.InFlight())

	close(f.sender.block)
	require.Eventually(t, func() bool { return e.InFlight() == 0 }, time.Second, 5*time.Millisecond)
	assert.Len(t, f.sender.all(), 2)
}

func TestEngine_ShutdownClosesActivePrint(t *testing.T) {
	f := newFixture(t)
	f.register(t, "activity:L1", "dev1")
	e := newTestEngine(t, f, &engineClock{now: testNow}, 0)

	e.Notify(Started{FileName: "benchy.gcode"}, PrintState{ID: "p1"})
	require.NoError(t, e.Shutdown(context.Background()))

	sent := f.sender.all()
	require.Len(t, sent, 2)
	terminal := sent[1].ApnsData.(*ActivityPayload)
	assert.Equal(t, ActivityEventEnd, terminal.Event)
	assert.Equal(t, StateCancelled, terminal.ContentState.State)

	e.Notify(Beep{}, PrintState{})
	assert.ErrorIs(t, e.NotifySync(context.Background(), Beep{}, PrintState{}), ErrEngineClosed)
	assert.Len(t, f.sender.all(), 2)
}

func TestEngine_ShutdownSendsTerminalAfterExpiredDeadline(t *testing.T) {
	f := newFixture(t)
	f.register(t, "activity:L1", "dev1")
	e := newTestEngine(t, f, &engineClock{now: testNow}, 0)

	require.NoError(t, e.NotifySync(context.Background(), Started{FileName: "benchy.gcode"}, PrintState{ID: "p1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Shutdown(ctx))

	sent := f.sender.all()
	require.Len(t, sent, 2)
	terminal := sent[1].ApnsData.(*ActivityPayload)
	assert.Equal(t, ActivityEventEnd, terminal.Event)
	assert.Equal(t, StateCancelled, terminal.ContentState.State)
}

func TestEngine_ShutdownWithoutPrintIsQuiet(t *testing.T) {
	f := newFixture(t)
	f.register(t, "activity:L1", "dev1")
	e := newTestEngine(t, f, &engineClock{now: testNow}, 0)

	require.NoError(t, e.NotifySync(context.Background(), Completed{}, PrintState{ID: "p1"}))
	require.NoError(t, e.Shutdown(context.Background()))

	assert.Len(t, f.sender.all(), 1)
}
