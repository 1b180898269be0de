// Package diagnostics assembles the rules of each fault-detection diagnostic
// and runs them for one equipment unit through the window gate.
package diagnostics

import (
	"fmt"

	"aircx/internal/evaluate"
	"aircx/internal/types"
	"aircx/internal/window"
)

// Diagnostic names accepted in equipment configuration.
const (
	NameStaticPressure    = "static_pressure"
	NameSupplyTemperature = "supply_temperature"
	NameCycling           = "cycling"
)

// CodeUnitOff marks a row written while the unit is not running. Negative
// codes are colored WHITE.
const CodeUnitOff = -1.0

// Outcome is what one diagnostic produced for one window.
type Outcome struct {
	Verdicts []types.Verdict
	Commands []types.Command
}

// Diagnostic evaluates one closed analysis window. Implementations are pure
// with respect to the window and hold only read-only configuration.
type Diagnostic interface {
	Name() string
	Evaluate(w *window.Window) Outcome
	Insufficient() Outcome
	UnitOff() Outcome
}

// unitOff builds the single WHITE row a diagnostic reports while the unit is
// off: one verdict per active tier under the diagnostic's display name.
func unitOff(label string, tiers evaluate.TierSet) Outcome {
	out := Outcome{}
	for _, tier := range tiers.Active() {
		out.Verdicts = append(out.Verdicts, types.NewVerdict(label, tier, CodeUnitOff,
			fmt.Sprintf("Unit is not running; %s diagnostics were not evaluated.", label)))
	}
	return out
}

// addCommand appends cmd unless a command for the same channel is already
// present, so one window never issues conflicting setpoints.
func (o *Outcome) addCommand(cmd *types.Command) bool {
	if cmd == nil {
		return false
	}
	for _, c := range o.Commands {
		if c.Channel == cmd.Channel {
			return false
		}
	}
	o.Commands = append(o.Commands, *cmd)
	return true
}
