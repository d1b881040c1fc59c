package notification

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HostEvent is an event reported by the print host.
type HostEvent struct {
	Kind         string `json:"kind"`
	FileName     string `json:"fileName,omitempty"`
	Progress     int    `json:"progress,omitempty"`
	TimeLeftSec  int    `json:"timeLeftSec,omitempty"`
	PrintTimeSec int    `json:"printTimeSec,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Notifier receives events with their print snapshot.
type Notifier interface {
	Notify(ev Event, st PrintState)
}

// Host tracks the print session reported by the host and forwards events to
// the engine, filtering the ones a user would consider noise.
type Host struct {
	notifier Notifier
	logger   zerolog.Logger

	mu       sync.Mutex
	state    PrintState
	lastKind Kind
}

// NewHost creates a new host bridge.
func NewHost(notifier Notifier, logger zerolog.Logger) *Host {
	return &Host{notifier: notifier, logger: logger}
}

// State returns the current print snapshot.
func (h *Host) State() PrintState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Handle applies one host event. It returns ErrUnknownEvent for an event
// name outside the vocabulary; suppressed events return nil.
func (h *Host) Handle(he HostEvent) error {
	k, err := ParseKind(he.Kind)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev, ok := h.apply(k, he)
	if !ok {
		h.logger.Debug().Str("event", string(k)).Msg("host event suppressed")
		return nil
	}

	h.notifier.Notify(ev, h.state)

	switch k {
	case KindCompleted, KindCancelled, KindError:
		h.state = PrintState{}
	}
	h.lastKind = k
	return nil
}

// apply updates the session for k and returns the event to send. The second
// result is false when the event is suppressed.
func (h *Host) apply(k Kind, he HostEvent) (Event, bool) {
	switch k {
	case KindStarted:
		h.state = PrintState{
			Name:        he.FileName,
			ID:          uuid.NewString(),
			TimeLeftSec: he.TimeLeftSec,
		}
		return Started{FileName: he.FileName, TimeLeftSec: he.TimeLeftSec}, true

	case KindPrinting:
		if h.state.ID == "" {
			h.state = PrintState{Name: he.FileName, ID: uuid.NewString()}
		}
		if he.FileName != "" {
			h.state.Name = he.FileName
		}
		h.state.Progress = he.Progress
		h.state.TimeLeftSec = he.TimeLeftSec
		h.state.PrintTimeSec = he.PrintTimeSec
		return Progress{Progress: he.Progress, TimeLeftSec: he.TimeLeftSec, PrintTimeSec: he.PrintTimeSec}, true

	case KindPaused:
		if h.lastKind == KindPaused || h.lastKind == KindFilamentRequired {
			return nil, false
		}
		return Paused{}, true

	case KindBeep:
		if h.state.TimeLeftSec <= 30 && h.state.Progress >= 95 {
			return nil, false
		}
		return Beep{}, true

	case KindCancelled:
		if h.state.ID == "" {
			return nil, false
		}
		return Cancelled{}, true

	case KindCompleted:
		h.state.Progress = 100
		return Completed{}, true

	case KindError:
		return Error{Message: he.Error}, true

	case KindPausedByGcode:
		return PausedByGcode{}, true
	case KindFilamentRequired:
		if h.state.ID == "" {
			return nil, false
		}
		return FilamentRequired{}, true
	case KindWaiting:
		return Waiting{}, true
	case KindResume:
		return Resume{}, true
	case KindFirstLayerDone:
		return FirstLayerDone{}, true
	case KindThirdLayerDone:
		return ThirdLayerDone{}, true
	case KindMMUSelectionStarted:
		return MMUSelectionStarted{}, true
	case KindMMUSelectionCompleted:
		return MMUSelectionCompleted{}, true
	default:
		return Idle{}, true
	}
}
