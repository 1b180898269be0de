package window

import (
	"fmt"
	"time"
)

// RunStatus is the gate's decision for the buffered window.
type RunStatus int

const (
	// NotReady means neither trigger has fired; keep accumulating.
	NotReady RunStatus = iota
	// InsufficientData means the time trigger fired without enough samples.
	// This is terminal for the window: it is discarded, not retried.
	InsufficientData
	// Ready means both the time and count triggers fired.
	Ready
)

func (s RunStatus) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case InsufficientData:
		return "insufficient_data"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("run_status(%d)", int(s))
	}
}

// Schedule selects the calendar rollover used when no elapsed-time window is
// configured.
type Schedule string

const (
	ScheduleHourly Schedule = "hourly"
	ScheduleDaily  Schedule = "daily"
)

// GateConfig configures CheckRunStatus. MinElapsed takes precedence over
// Schedule when positive.
type GateConfig struct {
	MinSamples int           `json:"min_samples" validate:"gte=1"`
	MinElapsed time.Duration `json:"min_elapsed"`
	Schedule   Schedule      `json:"schedule" validate:"omitempty,oneof=hourly daily"`
}

// Validate rejects configurations that can never produce a verdict.
func (c GateConfig) Validate() error {
	if c.MinSamples < 1 {
		return fmt.Errorf("min samples must be at least 1, got %d", c.MinSamples)
	}
	if c.MinElapsed < 0 {
		return fmt.Errorf("min elapsed must not be negative, got %s", c.MinElapsed)
	}
	if c.MinElapsed == 0 && c.Schedule != ScheduleHourly && c.Schedule != ScheduleDaily {
		return fmt.Errorf("schedule must be hourly or daily when no elapsed window is set, got %q", c.Schedule)
	}
	return nil
}

// CheckContinuity reports whether current may join the buffered window. A
// change of calendar date is tolerated only for the overnight step from the
// last hour of one day into the first hour of the next.
func CheckContinuity(current time.Time, buffered []time.Time) bool {
	if len(buffered) == 0 {
		return true
	}
	last := buffered[len(buffered)-1]
	if sameDate(current, last) {
		return true
	}
	nextDay := last.AddDate(0, 0, 1)
	return sameDate(current, nextDay) && last.Hour() == 23 && current.Hour() == 0
}

// CheckRunStatus decides whether the buffered window is ready to evaluate.
// current is the timestamp of the incoming sample, which is not part of the
// buffered window.
func CheckRunStatus(buffered []time.Time, current time.Time, cfg GateConfig) RunStatus {
	if len(buffered) == 0 {
		return NotReady
	}
	if !timeTrigger(buffered, current, cfg) {
		return NotReady
	}
	if len(buffered) < cfg.MinSamples {
		return InsufficientData
	}
	return Ready
}

func timeTrigger(buffered []time.Time, current time.Time, cfg GateConfig) bool {
	first := buffered[0]
	if cfg.MinElapsed > 0 {
		last := buffered[len(buffered)-1]
		span := last.Sub(first)
		// The last sample stands for one mean sampling interval of data.
		var interval time.Duration
		if n := len(buffered); n > 1 {
			interval = span / time.Duration(n-1)
		}
		// A silent sensor stops filling the window while time moves on, so
		// the gap up to the incoming sample counts as elapsed too.
		return span+interval >= cfg.MinElapsed || current.Sub(first) >= cfg.MinElapsed
	}
	switch cfg.Schedule {
	case ScheduleDaily:
		return !sameDate(current, first)
	default:
		return !sameDate(current, first) || current.Hour() != first.Hour()
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
