package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/remoteconfig"
)

// ErrEngineClosed is returned by blocking sends after Shutdown.
var ErrEngineClosed = errors.New("notification engine closed")

// ConfigSource provides the current throttle configuration without blocking.
type ConfigSource interface {
	Current() remoteconfig.Config
}

// EngineConfig holds configuration for the notification engine.
type EngineConfig struct {
	Dispatcher *Dispatcher
	Config     ConfigSource
	Metrics    *Metrics
	Logger     zerolog.Logger

	// MaxInFlight caps concurrent deliveries. Default: 8.
	MaxInFlight int64

	// MaxPending caps deliveries waiting or running. Further events are
	// dropped with a warning. Default: 64.
	MaxPending int64

	// SendTimeout bounds one background delivery, terminal delay included.
	// Default: 30 seconds.
	SendTimeout time.Duration

	Now func() time.Time
}

// session is the throttle state of the current print.
type session struct {
	throttle Throttle
	state    PrintState
	active   bool
}

// Engine applies the throttle to host events and dispatches notifications in
// the background. Host callbacks never wait on the relay.
type Engine struct {
	dispatcher *Dispatcher
	config     ConfigSource
	metrics    *Metrics
	logger     zerolog.Logger
	now        func() time.Time

	sem         *semaphore.Weighted
	maxPending  int64
	sendTimeout time.Duration
	inFlight    atomic.Int64
	wg          sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc

	// closeMu orders wg.Add in Notify against wg.Wait in Shutdown.
	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	session session
}

// NewEngine creates a new notification engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 64
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		dispatcher:  cfg.Dispatcher,
		config:      cfg.Config,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
		sem:         semaphore.NewWeighted(cfg.MaxInFlight),
		maxPending:  cfg.MaxPending,
		sendTimeout: cfg.SendTimeout,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Notify records the event and dispatches it in the background unless the
// throttle drops it. It never blocks on delivery.
func (e *Engine) Notify(ev Event, st PrintState) {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		e.logger.Debug().Str("event", string(ev.Kind())).Msg("engine closed, ignoring event")
		return
	}

	st, decision := e.prepare(ev, st)
	if decision == DecisionDrop {
		return
	}
	e.dispatchAsync(ev, st, decision == DecisionRestricted)
}

// NotifySync is Notify with the delivery performed on the calling goroutine.
// The delivery error is returned.
func (e *Engine) NotifySync(ctx context.Context, ev Event, st PrintState) error {
	e.closeMu.RLock()
	closed := e.closed
	e.closeMu.RUnlock()
	if closed {
		return ErrEngineClosed
	}

	st, decision := e.prepare(ev, st)
	if decision == DecisionDrop {
		return nil
	}
	return e.dispatcher.Send(ctx, ev, st, decision == DecisionRestricted)
}

// NotifyExpired ends the given live activities using the last known print
// state.
func (e *Engine) NotifyExpired(ctx context.Context, targets []apps.AppInstance) error {
	return e.dispatcher.SendExpired(ctx, targets, e.LastPrintState())
}

// LastPrintState returns the most recent print snapshot.
func (e *Engine) LastPrintState() PrintState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.state
}

// InFlight returns the number of deliveries waiting or running.
func (e *Engine) InFlight() int64 {
	return e.inFlight.Load()
}

// Shutdown stops accepting events, waits for background deliveries and then
// performs one blocking terminal send so an open live activity is closed.
// When ctx ends before the drain completes, remaining deliveries are
// cancelled. The terminal send gets its own SendTimeout budget, detached from
// ctx, so an exhausted drain deadline cannot skip it.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	e.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn().Int64("in_flight", e.InFlight()).Msg("shutdown deadline reached, cancelling deliveries")
		e.cancel()
		<-done
	}
	defer e.cancel()

	e.mu.Lock()
	st, active := e.session.state, e.session.active
	e.mu.Unlock()

	var terminal Event = Idle{}
	if active && st.ID != "" {
		terminal = Cancelled{}
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sendTimeout)
	defer cancel()

	if err := e.dispatcher.Send(sendCtx, terminal, st, false); err != nil {
		return fmt.Errorf("sending terminal notification: %w", err)
	}
	e.logger.Info().Str("event", string(terminal.Kind())).Msg("terminal notification sent")
	return nil
}

// prepare merges the event into the print snapshot and runs the throttle.
func (e *Engine) prepare(ev Event, st PrintState) (PrintState, Decision) {
	k := ev.Kind()
	switch v := ev.(type) {
	case Progress:
		st.Progress = v.Progress
		st.TimeLeftSec = v.TimeLeftSec
		st.PrintTimeSec = v.PrintTimeSec
	case Started:
		if st.Name == "" {
			st.Name = v.FileName
		}
		if st.TimeLeftSec == 0 {
			st.TimeLeftSec = v.TimeLeftSec
		}
	case Completed:
		st.Progress = 100
	}

	cfg := e.config.Current()

	e.mu.Lock()
	e.session.state = st
	switch {
	case k == KindStarted || k == KindPrinting:
		e.session.active = true
	case k.IsTerminal() || k == KindError:
		e.session.active = false
	}
	decision := e.session.throttle.Decide(k, st.Progress, e.now(), cfg)
	e.mu.Unlock()

	if k == KindPrinting && decision != DecisionFull {
		e.metrics.recordThrottle(e.baseCtx, decision.String())
		e.logger.Debug().
			Int("progress", st.Progress).
			Str("decision", decision.String()).
			Msg("progress throttled")
	}
	return st, decision
}

func (e *Engine) dispatchAsync(ev Event, st PrintState, onlyActivities bool) {
	k := ev.Kind()
	if e.inFlight.Add(1) > e.maxPending {
		e.inFlight.Add(-1)
		e.metrics.recordDispatch(e.baseCtx, k, resultDropped)
		e.logger.Warn().Str("event", string(k)).Int64("max_pending", e.maxPending).Msg("dispatch queue full, dropping notification")
		return
	}
	e.metrics.addInFlight(e.baseCtx, 1)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.inFlight.Add(-1)
			e.metrics.addInFlight(e.baseCtx, -1)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				e.logger.Error().Interface("panic", rec).Str("event", string(k)).Msg("panic during notification dispatch")
			}
		}()

		if err := e.sem.Acquire(e.baseCtx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)

		ctx, cancel := context.WithTimeout(e.baseCtx, e.sendTimeout)
		defer cancel()

		if err := e.dispatcher.Send(ctx, ev, st, onlyActivities); err != nil {
			e.logger.Error().Err(err).Str("event", string(k)).Msg("failed to send notification")
		}
	}()
}
