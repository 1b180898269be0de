// Package correct computes auto-correction setpoint commands. One call to
// Decide covers one corrective opportunity and lands in exactly one of the
// outcomes below.
package correct

import (
	"fmt"
	"math"

	"aircx/internal/types"
)

// Direction is the sign of the setpoint adjustment.
type Direction int

const (
	// Increase raises the setpoint, for "value too low" faults.
	Increase Direction = iota
	// Decrease lowers the setpoint, for "value too high" faults.
	Decrease
)

func (d Direction) String() string {
	if d == Decrease {
		return "decrease"
	}
	return "increase"
}

// Outcome is the branch taken for one corrective opportunity.
type Outcome int

const (
	// Disabled means auto-correction is turned off; no command.
	Disabled Outcome = iota
	// SkippedOverride means an operator override is active; no command.
	SkippedOverride
	// AtLimit means the candidate left [Min, Max]; the bound is commanded.
	AtLimit
	// Corrected means the candidate is commanded.
	Corrected
)

func (o Outcome) String() string {
	switch o {
	case Disabled:
		return "disabled"
	case SkippedOverride:
		return "skipped_override"
	case AtLimit:
		return "at_limit"
	case Corrected:
		return "corrected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Settings bounds the generator for one controllable setpoint.
type Settings struct {
	Enabled bool    `json:"enabled"`
	Step    float64 `json:"step" validate:"gt=0"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max" validate:"gtfield=Min"`
}

// Validate rejects bounds that cannot clamp a setpoint.
func (s Settings) Validate() error {
	if math.IsNaN(s.Step) || s.Step <= 0 {
		return types.NewAppError(types.ErrCodeConfigInvalidBounds,
			fmt.Sprintf("correction step must be positive, got %v", s.Step), nil)
	}
	if math.IsNaN(s.Min) || math.IsNaN(s.Max) || s.Min >= s.Max {
		return types.NewAppError(types.ErrCodeConfigInvalidBounds,
			fmt.Sprintf("correction bounds must satisfy min < max, got [%v, %v]", s.Min, s.Max), nil)
	}
	return nil
}

// Decision is the result of Decide.
type Decision struct {
	Outcome   Outcome
	Direction Direction
	// Candidate is current ± step before clamping.
	Candidate float64
	// Setpoint is the value to command; meaningful for AtLimit and Corrected.
	Setpoint float64
}

// Decide computes the correction for a fault. The disabled check comes first,
// then the override check, then clamping.
func (s Settings) Decide(dir Direction, current float64, overridden bool) Decision {
	d := Decision{Direction: dir}
	if !s.Enabled {
		d.Outcome = Disabled
		return d
	}
	if overridden {
		d.Outcome = SkippedOverride
		return d
	}

	d.Candidate = current + s.Step
	if dir == Decrease {
		d.Candidate = current - s.Step
	}
	switch {
	case d.Candidate > s.Max:
		d.Outcome, d.Setpoint = AtLimit, s.Max
	case d.Candidate < s.Min:
		d.Outcome, d.Setpoint = AtLimit, s.Min
	default:
		d.Outcome, d.Setpoint = Corrected, d.Candidate
	}
	return d
}

// Command returns the command to issue, if the decision issues one.
func (d Decision) Command(channel types.Channel) (types.Command, bool) {
	if d.Outcome != Corrected && d.Outcome != AtLimit {
		return types.Command{}, false
	}
	return types.Command{Channel: channel, Value: d.Setpoint}, true
}
