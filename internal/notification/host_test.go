package notification

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notified struct {
	event Event
	state PrintState
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notified
}

func (r *recordingNotifier) Notify(ev Event, st PrintState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notified{event: ev, state: st})
}

func (r *recordingNotifier) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Kind
	for _, n := range r.events {
		out = append(out, n.event.Kind())
	}
	return out
}

func TestHost_PrintSession(t *testing.T) {
	rec := &recordingNotifier{}
	h := NewHost(rec, zerolog.Nop())

	require.NoError(t, h.Handle(HostEvent{Kind: "started", FileName: "benchy.gcode", TimeLeftSec: 3600}))
	id := h.State().ID
	require.NotEmpty(t, id)

	require.NoError(t, h.Handle(HostEvent{Kind: "printing", Progress: 40, TimeLeftSec: 1800, PrintTimeSec: 1200}))
	st := h.State()
	assert.Equal(t, id, st.ID)
	assert.Equal(t, "benchy.gcode", st.Name)
	assert.Equal(t, 40, st.Progress)

	require.NoError(t, h.Handle(HostEvent{Kind: "completed"}))
	assert.True(t, h.State().Empty())

	assert.Equal(t, []Kind{KindStarted, KindPrinting, KindCompleted}, rec.kinds())
	assert.Equal(t, 100, rec.events[2].state.Progress)
	assert.Equal(t, id, rec.events[2].state.ID)
}

func TestHost_ProgressWithoutStartCreatesSession(t *testing.T) {
	rec := &recordingNotifier{}
	h := NewHost(rec, zerolog.Nop())

	require.NoError(t, h.Handle(HostEvent{Kind: "printing", FileName: "cube.gcode", Progress: 12}))
	assert.NotEmpty(t, h.State().ID)
	assert.Equal(t, "cube.gcode", h.State().Name)
}

func TestHost_Suppression(t *testing.T) {
	tests := []struct {
		name   string
		events []HostEvent
		want   []Kind
	}{
		{
			name:   "repeated pause",
			events: []HostEvent{{Kind: "paused"}, {Kind: "paused"}},
			want:   []Kind{KindPaused},
		},
		{
			name:   "pause after filament change",
			events: []HostEvent{{Kind: "started"}, {Kind: "filament_required"}, {Kind: "paused"}},
			want:   []Kind{KindStarted, KindFilamentRequired},
		},
		{
			name:   "filament change without print",
			events: []HostEvent{{Kind: "filament_required"}},
			want:   nil,
		},
		{
			name:   "filament change after completion",
			events: []HostEvent{{Kind: "started"}, {Kind: "completed"}, {Kind: "filament_required"}},
			want:   []Kind{KindStarted, KindCompleted},
		},
		{
			name:   "pause after progress",
			events: []HostEvent{{Kind: "paused"}, {Kind: "printing", Progress: 50}, {Kind: "paused"}},
			want:   []Kind{KindPaused, KindPrinting, KindPaused},
		},
		{
			name:   "beep at the end of a print",
			events: []HostEvent{{Kind: "printing", Progress: 96, TimeLeftSec: 20}, {Kind: "beep"}},
			want:   []Kind{KindPrinting},
		},
		{
			name:   "beep mid print",
			events: []HostEvent{{Kind: "printing", Progress: 50, TimeLeftSec: 600}, {Kind: "beep"}},
			want:   []Kind{KindPrinting, KindBeep},
		},
		{
			name:   "cancel without print",
			events: []HostEvent{{Kind: "cancelled"}},
			want:   nil,
		},
		{
			name:   "cancel clears the print",
			events: []HostEvent{{Kind: "started"}, {Kind: "cancelled"}, {Kind: "cancelled"}},
			want:   []Kind{KindStarted, KindCancelled},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingNotifier{}
			h := NewHost(rec, zerolog.Nop())
			for _, ev := range tt.events {
				require.NoError(t, h.Handle(ev))
			}
			assert.Equal(t, tt.want, rec.kinds())
		})
	}
}

func TestHost_RejectsUnknownEvent(t *testing.T) {
	h := NewHost(&recordingNotifier{}, zerolog.Nop())
	assert.ErrorIs(t, h.Handle(HostEvent{Kind: "exploded"}), ErrUnknownEvent)
}

func TestHost_ErrorCarriesMessage(t *testing.T) {
	rec := &recordingNotifier{}
	h := NewHost(rec, zerolog.Nop())

	require.NoError(t, h.Handle(HostEvent{Kind: "started"}))
	require.NoError(t, h.Handle(HostEvent{Kind: "error", Error: "thermal runaway"}))

	require.Len(t, rec.events, 2)
	assert.Equal(t, Error{Message: "thermal runaway"}, rec.events[1].event)
	assert.True(t, h.State().Empty())
}
