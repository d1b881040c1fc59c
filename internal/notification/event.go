// Package notification decides who hears about a print event, shapes the
// push payloads and hands them to the relay.
package notification

import (
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned for an event name outside the vocabulary.
var ErrUnknownEvent = errors.New("unknown event")

// Kind names an event in the notification vocabulary.
type Kind string

// Event kinds.
const (
	KindStarted               Kind = "started"
	KindPrinting              Kind = "printing"
	KindPaused                Kind = "paused"
	KindPausedByGcode         Kind = "paused_by_gcode"
	KindFilamentRequired      Kind = "filament_required"
	KindCompleted             Kind = "completed"
	KindCancelled             Kind = "cancelled"
	KindError                 Kind = "error"
	KindWaiting               Kind = "waiting"
	KindBeep                  Kind = "beep"
	KindResume                Kind = "resume"
	KindFirstLayerDone        Kind = "first_layer_done"
	KindThirdLayerDone        Kind = "third_layer_done"
	KindMMUSelectionStarted   Kind = "mmu_filament_selection_started"
	KindMMUSelectionCompleted Kind = "mmu_filament_selection_completed"
	KindIdle                  Kind = "idle"
)

var kinds = map[Kind]struct{}{
	KindStarted: {}, KindPrinting: {}, KindPaused: {}, KindPausedByGcode: {},
	KindFilamentRequired: {}, KindCompleted: {}, KindCancelled: {}, KindError: {},
	KindWaiting: {}, KindBeep: {}, KindResume: {}, KindFirstLayerDone: {},
	KindThirdLayerDone: {}, KindMMUSelectionStarted: {}, KindMMUSelectionCompleted: {},
	KindIdle: {},
}

// ParseKind validates an event name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
	return k, nil
}

// IsTerminal reports whether the event ends a print session.
func (k Kind) IsTerminal() bool {
	return k == KindCompleted || k == KindCancelled
}

// Event is one notification trigger. The set of implementations is closed.
type Event interface {
	Kind() Kind
	event()
}

// Started is raised when a print begins.
type Started struct {
	FileName    string
	TimeLeftSec int
}

// Progress is a progress tick of the running print.
type Progress struct {
	Progress     int
	TimeLeftSec  int
	PrintTimeSec int
}

// Error is raised when the print fails.
type Error struct {
	Message string
}

type (
	Paused                struct{}
	PausedByGcode         struct{}
	FilamentRequired      struct{}
	Completed             struct{}
	Cancelled             struct{}
	Waiting               struct{}
	Beep                  struct{}
	Resume                struct{}
	FirstLayerDone        struct{}
	ThirdLayerDone        struct{}
	MMUSelectionStarted   struct{}
	MMUSelectionCompleted struct{}
	Idle                  struct{}
)

func (Started) Kind() Kind               { return KindStarted }
func (Progress) Kind() Kind              { return KindPrinting }
func (Paused) Kind() Kind                { return KindPaused }
func (PausedByGcode) Kind() Kind         { return KindPausedByGcode }
func (FilamentRequired) Kind() Kind      { return KindFilamentRequired }
func (Completed) Kind() Kind             { return KindCompleted }
func (Cancelled) Kind() Kind             { return KindCancelled }
func (Error) Kind() Kind                 { return KindError }
func (Waiting) Kind() Kind               { return KindWaiting }
func (Beep) Kind() Kind                  { return KindBeep }
func (Resume) Kind() Kind                { return KindResume }
func (FirstLayerDone) Kind() Kind        { return KindFirstLayerDone }
func (ThirdLayerDone) Kind() Kind        { return KindThirdLayerDone }
func (MMUSelectionStarted) Kind() Kind   { return KindMMUSelectionStarted }
func (MMUSelectionCompleted) Kind() Kind { return KindMMUSelectionCompleted }
func (Idle) Kind() Kind                  { return KindIdle }

func (Started) event()               {}
func (Progress) event()              {}
func (Paused) event()                {}
func (PausedByGcode) event()         {}
func (FilamentRequired) event()      {}
func (Completed) event()             {}
func (Cancelled) event()             {}
func (Error) event()                 {}
func (Waiting) event()               {}
func (Beep) event()                  {}
func (Resume) event()                {}
func (FirstLayerDone) event()        {}
func (ThirdLayerDone) event()        {}
func (MMUSelectionStarted) event()   {}
func (MMUSelectionCompleted) event() {}
func (Idle) event()                  {}

// PrintState is the snapshot of the running print used to fill payloads.
type PrintState struct {
	Name         string
	ID           string
	Progress     int
	TimeLeftSec  int
	PrintTimeSec int
}

// Empty reports whether no print is known.
func (s PrintState) Empty() bool {
	return s == PrintState{}
}
