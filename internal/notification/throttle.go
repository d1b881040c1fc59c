package notification

import (
	"time"

	"github.com/printpush/printpush/internal/remoteconfig"
)

// Decision is the throttle outcome for one event.
type Decision int

const (
	// DecisionDrop skips the event.
	DecisionDrop Decision = iota
	// DecisionFull sends to every selected target with high priority.
	DecisionFull
	// DecisionRestricted sends to live activities only, at normal priority.
	DecisionRestricted
)

func (d Decision) String() string {
	switch d {
	case DecisionFull:
		return "full"
	case DecisionRestricted:
		return "restricted"
	default:
		return "drop"
	}
}

// Throttle rate limits progress ticks. Only progress is throttled; every
// other event is sent in full.
type Throttle struct {
	LastProgressUpdateAt time.Time
}

// Decide returns what to do with an event and advances the timer when the
// event is sent.
func (t *Throttle) Decide(k Kind, progress int, now time.Time, cfg remoteconfig.Config) Decision {
	switch k {
	case KindStarted:
		t.LastProgressUpdateAt = now
		return DecisionFull
	case KindPrinting:
	default:
		return DecisionFull
	}

	modulus := cfg.UpdatePercentModulus
	if modulus <= 0 {
		modulus = remoteconfig.DefaultConfig().UpdatePercentModulus
	}

	if progress > 0 && progress < 100 &&
		(progress%modulus == 0 ||
			progress <= cfg.HighPrecisionRangeStart ||
			progress >= 100-cfg.HighPrecisionRangeEnd) {
		t.LastProgressUpdateAt = now
		return DecisionFull
	}

	minInterval := time.Duration(cfg.MinIntervalSecs) * time.Second
	if now.Sub(t.LastProgressUpdateAt) > minInterval {
		t.LastProgressUpdateAt = now
		return DecisionRestricted
	}
	return DecisionDrop
}
