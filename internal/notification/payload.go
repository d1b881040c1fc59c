package notification

import (
	"context"
	"fmt"
	"time"
)

// Live activity states.
const (
	StatePrinting         = "printing"
	StatePaused           = "paused"
	StateFilamentRequired = "filamentRequired"
	StatePausedGcode      = "pausedGcode"
	StateCancelled        = "cancelled"
	StateCompleted        = "completed"
	StateError            = "error"
	StateExpired          = "expired"
)

// Activity events.
const (
	ActivityEventUpdate = "update"
	ActivityEventEnd    = "end"
)

const (
	soundDefault        = "default"
	soundFilamentChange = "notification_filament_change.wav"
	soundPrintDone      = "notification_print_done.wav"
)

// DefaultTerminalDelay holds back cancelled and completed payloads so that
// earlier progress pushes reach the relay first.
const DefaultTerminalDelay = 5 * time.Second

// AndroidPayload is the plaintext of the encrypted androidData field.
// Implemented by ProgressAndroidPayload and EmptyAndroidPayload.
type AndroidPayload interface {
	android()
}

// ProgressAndroidPayload carries the print snapshot for Android clients.
type ProgressAndroidPayload struct {
	ServerTime    int64   `json:"serverTime"`
	ServerTimeSec float64 `json:"serverTimeSec"`
	PrintID       *string `json:"printId"`
	FileName      *string `json:"fileName"`
	Progress      *int    `json:"progress"`
	TimeLeft      *int    `json:"timeLeft"`
	Type          string  `json:"type"`
}

// EmptyAndroidPayload encodes as {}.
type EmptyAndroidPayload struct{}

func (ProgressAndroidPayload) android() {}
func (EmptyAndroidPayload) android()    {}

// ApnsPayload is the apnsData field.
// Implemented by *AlertPayload and *ActivityPayload.
type ApnsPayload interface {
	HasAlert() bool
	apns()
}

// Alert is a visible title and body.
type Alert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AlertPayload is a one-shot alert with no activity state.
type AlertPayload struct {
	Alert Alert  `json:"alert"`
	Sound string `json:"sound"`
}

// ContentState is the live activity state block.
type ContentState struct {
	FileName   string `json:"fileName"`
	Progress   int    `json:"progress"`
	SourceTime int64  `json:"sourceTime"`
	State      string `json:"state"`
	TimeLeft   int    `json:"timeLeft"`
	PrintTime  int    `json:"printTime"`
}

// ActivityPayload updates or ends a live activity.
type ActivityPayload struct {
	Event        string       `json:"event"`
	ContentState ContentState `json:"content-state"`
	Sound        string       `json:"sound,omitempty"`
	Alert        *Alert       `json:"alert,omitempty"`
}

func (*AlertPayload) HasAlert() bool      { return true }
func (p *ActivityPayload) HasAlert() bool { return p.Alert != nil }
func (*AlertPayload) apns()               {}
func (*ActivityPayload) apns()            {}

// PayloadBuilderConfig holds configuration for the payload builder.
type PayloadBuilderConfig struct {
	// PrinterName is used in alert texts. Default: "Printer".
	PrinterName string

	// TerminalDelay is waited before a cancelled or completed activity
	// payload is returned. Default: DefaultTerminalDelay. Negative disables.
	TerminalDelay time.Duration

	Now func() time.Time
}

// PayloadBuilder shapes events into relay payloads.
type PayloadBuilder struct {
	printerName   string
	terminalDelay time.Duration
	now           func() time.Time
}

// NewPayloadBuilder creates a new payload builder.
func NewPayloadBuilder(cfg PayloadBuilderConfig) *PayloadBuilder {
	if cfg.PrinterName == "" {
		cfg.PrinterName = "Printer"
	}
	if cfg.TerminalDelay == 0 {
		cfg.TerminalDelay = DefaultTerminalDelay
	}
	if cfg.TerminalDelay < 0 {
		cfg.TerminalDelay = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PayloadBuilder{
		printerName:   cfg.PrinterName,
		terminalDelay: cfg.TerminalDelay,
		now:           cfg.Now,
	}
}

// androidTypes maps events to the Android payload type. Beep and idle are
// handled separately.
var androidTypes = map[Kind]string{
	KindStarted:               "printing",
	KindPrinting:              "printing",
	KindResume:                "printing",
	KindFirstLayerDone:        "first_layer_done",
	KindThirdLayerDone:        "third_layer_done",
	KindPaused:                "paused",
	KindPausedByGcode:         "paused_gcode",
	KindWaiting:               "paused_gcode",
	KindCompleted:             "completed",
	KindError:                 "error",
	KindFilamentRequired:      "filament_required",
	KindMMUSelectionStarted:   "mmu_filament_selection_started",
	KindMMUSelectionCompleted: "mmu_filament_selection_completed",
	KindCancelled:             "idle",
}

// BuildAndroid returns the Android payload for an event. The second result
// is false when the event has none.
func (b *PayloadBuilder) BuildAndroid(k Kind, st PrintState) (AndroidPayload, bool) {
	if k == KindBeep {
		return EmptyAndroidPayload{}, true
	}
	typ, ok := androidTypes[k]
	if !ok {
		return nil, false
	}

	now := b.now()
	p := ProgressAndroidPayload{
		ServerTime:    now.Unix(),
		ServerTimeSec: float64(now.UnixNano()) / float64(time.Second),
		Type:          typ,
	}
	if st.ID != "" {
		p.PrintID = &st.ID
	}
	if st.Name != "" {
		p.FileName = &st.Name
	}
	if !st.Empty() {
		progress, timeLeft := st.Progress, st.TimeLeftSec
		p.Progress = &progress
		p.TimeLeft = &timeLeft
	}
	return p, true
}

type apnsText struct {
	state string
	title string
	sound string

	// fileNameBody uses the file name as alert body when one is known.
	fileNameBody bool
}

var apnsTexts = map[Kind]apnsText{
	KindPrinting:              {state: StatePrinting},
	KindResume:                {state: StatePrinting},
	KindMMUSelectionCompleted: {state: StatePrinting},
	KindFirstLayerDone:        {state: StatePrinting, title: "First layer completed", sound: soundFilamentChange},
	KindThirdLayerDone:        {state: StatePrinting, title: "Third layer is completed", sound: soundFilamentChange},
	KindCancelled:             {state: StateCancelled},
	KindCompleted:             {state: StateCompleted, title: "Print completed", sound: soundPrintDone, fileNameBody: true},
	KindFilamentRequired:      {state: StateFilamentRequired, title: "Filament required", sound: soundFilamentChange},
	KindPausedByGcode:         {state: StatePausedGcode, title: "Print paused", sound: soundFilamentChange},
	KindWaiting:               {state: StatePausedGcode, title: "Print paused", sound: soundFilamentChange},
	KindPaused:                {state: StatePaused},
	KindMMUSelectionStarted:   {state: StateFilamentRequired, title: "MMU2 filament selection required", sound: soundFilamentChange},
	KindError:                 {state: StateError},
}

// BuildApns returns the iOS payload for an event, or nil when the event has
// none. Cancelled and completed wait for the terminal delay first; the wait
// ends early with ctx.
func (b *PayloadBuilder) BuildApns(ctx context.Context, k Kind, st PrintState) (ApnsPayload, error) {
	switch k {
	case KindBeep:
		return &AlertPayload{
			Alert: Alert{Title: "Beep!", Body: fmt.Sprintf("%s needs attention", b.printerName)},
			Sound: soundDefault,
		}, nil
	case KindStarted:
		return &AlertPayload{
			Alert: Alert{Title: fmt.Sprintf("%s started to print", b.printerName), Body: "Open the app to see the progress"},
			Sound: soundDefault,
		}, nil
	}

	text, ok := apnsTexts[k]
	if !ok {
		return nil, nil
	}

	p := b.activity(k == KindCancelled, text.state, st)

	if k.IsTerminal() && b.terminalDelay > 0 {
		timer := time.NewTimer(b.terminalDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	p.Sound = text.sound
	if text.title != "" {
		body := fmt.Sprintf("Time to check %s!", b.printerName)
		if text.fileNameBody && st.Name != "" {
			body = st.Name
		}
		p.Alert = &Alert{Title: text.title, Body: body}
	}
	return p, nil
}

// BuildExpired returns the payload that ends an expired live activity.
func (b *PayloadBuilder) BuildExpired(st PrintState) *ActivityPayload {
	return b.activity(true, StateExpired, st)
}

func (b *PayloadBuilder) activity(end bool, state string, st PrintState) *ActivityPayload {
	event := ActivityEventUpdate
	if end {
		event = ActivityEventEnd
	}
	return &ActivityPayload{
		Event: event,
		ContentState: ContentState{
			FileName:   st.Name,
			Progress:   st.Progress,
			SourceTime: b.now().UnixMilli(),
			State:      state,
			TimeLeft:   st.TimeLeftSec,
			PrintTime:  st.PrintTimeSec,
		},
	}
}
