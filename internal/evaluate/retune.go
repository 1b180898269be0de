package evaluate

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"aircx/internal/correct"
	"aircx/internal/types"
	"aircx/internal/window"
)

// Result code offsets for retuning rules.
const (
	RetuneOK           = 0.0
	RetuneCorrected    = 1.1
	RetuneAtLimit      = 2.1
	RetuneDisabled     = 3.1
	RetuneExcluded     = 4.1
	RetuneOverride     = 5.1
	RetuneNoSetpoint   = 6.2
	RetuneNoZoneData   = 7.2
	RetuneInsufficient = 8.2
)

// FaultFunc tests one tier's thresholds against the window. share is the
// measured fraction (percent) that was compared; ok is false when the
// underlying readings are missing.
type FaultFunc func(w *window.Window, thr Thresholds) (faulted bool, share float64, ok bool)

// ExclusionFunc reports a hard operating condition under which the rule must
// not recommend a change, such as a saturated supply fan.
type ExclusionFunc func(w *window.Window) (excluded bool, reason string)

// Retune is a "fraction of readings beyond limit" rule that, when faulted,
// nudges a controllable setpoint through the correction generator.
type Retune struct {
	Name      string
	CodeBase  float64
	Problem   string // e.g. "low duct static pressure"
	Symptom   string // e.g. "Duct static pressure is too low"
	Setpoint  types.Channel
	Direction correct.Direction
	Fault     FaultFunc
	Exclusion ExclusionFunc
	Correct   correct.Settings
}

// Evaluate produces one verdict per active tier and at most one command,
// driven by the primary tier's decision.
//
// Precedence, highest first: exclusion, set point unavailable, zone data
// unavailable, auto-correction disabled, the correction outcome of a fault,
// no fault.
func (r Retune) Evaluate(w *window.Window, tiers TierSet) ([]types.Verdict, *types.Command) {
	if r.Exclusion != nil {
		if excluded, reason := r.Exclusion(w); excluded {
			return r.all(tiers, RetuneExcluded, reason), nil
		}
	}
	current, okSP := mean(w.Averages(r.Setpoint))
	if !okSP {
		return r.all(tiers, RetuneNoSetpoint,
			fmt.Sprintf("Set point data is not available; %s was not evaluated.", r.Problem)), nil
	}
	overridden := w.AnyPositive(types.OverrideChannel(r.Setpoint))

	var cmd *types.Command
	out := make([]types.Verdict, 0, len(tiers.Active()))
	for _, tier := range tiers.Active() {
		faulted, share, ok := r.Fault(w, tiers.For(tier))
		if !ok {
			out = append(out, types.NewVerdict(r.Name, tier, r.CodeBase+RetuneNoZoneData,
				fmt.Sprintf("Zone data is not available; %s was not evaluated.", r.Problem)))
			continue
		}
		if !faulted {
			out = append(out, types.NewVerdict(r.Name, tier, r.CodeBase+RetuneOK,
				fmt.Sprintf("No %s detected.", r.Problem)))
			continue
		}

		d := r.Correct.Decide(r.Direction, current, overridden)
		out = append(out, r.faultVerdict(tier, d, share))
		if tier == tiers.Primary() {
			if c, ok := d.Command(r.Setpoint); ok {
				cmd = &c
			}
		}
	}
	return out, cmd
}

// Insufficient produces the verdicts for a window closed with too few samples.
func (r Retune) Insufficient(tiers TierSet) []types.Verdict {
	return r.all(tiers, RetuneInsufficient,
		fmt.Sprintf("Insufficient data to evaluate %s.", r.Problem))
}

func (r Retune) faultVerdict(tier types.Tier, d correct.Decision, share float64) types.Verdict {
	var offset float64
	var msg string
	switch d.Outcome {
	case correct.Disabled:
		offset = RetuneDisabled
		msg = fmt.Sprintf("%s (%.0f%% of zone readings beyond limit); auto-correction is disabled, %s the set point manually.",
			r.Symptom, share, d.Direction)
	case correct.SkippedOverride:
		offset = RetuneOverride
		msg = fmt.Sprintf("%s; auto-correction skipped because the set point is under operator override.", r.Symptom)
	case correct.AtLimit:
		offset = RetuneAtLimit
		msg = fmt.Sprintf("%s; set point commanded to its configured limit of %.2f.", r.Symptom, d.Setpoint)
	default:
		offset = RetuneCorrected
		msg = fmt.Sprintf("%s; set point %sd to %.2f.", r.Symptom, d.Direction, d.Setpoint)
	}
	return types.NewVerdict(r.Name, tier, r.CodeBase+offset, msg)
}

func (r Retune) all(tiers TierSet, offset float64, msg string) []types.Verdict {
	out := make([]types.Verdict, 0, len(tiers.Active()))
	for _, tier := range tiers.Active() {
		out = append(out, types.NewVerdict(r.Name, tier, r.CodeBase+offset, msg))
	}
	return out
}

// lower lowercases the first letter of a label for use mid-sentence.
func lower(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// ShareAbove returns a FaultFunc that faults when the share of a channel's
// readings above limit(thr) reaches share(thr).
func ShareAbove(c types.Channel, limit, share func(Thresholds) float64) FaultFunc {
	return func(w *window.Window, thr Thresholds) (bool, float64, bool) {
		p, ok := percentAbove(w.Readings(c), limit(thr))
		if !ok {
			return false, 0, false
		}
		return p >= share(thr), p, true
	}
}

// ShareBelow returns a FaultFunc that faults when the share of a channel's
// readings below limit(thr) reaches share(thr).
func ShareBelow(c types.Channel, limit, share func(Thresholds) float64) FaultFunc {
	return func(w *window.Window, thr Thresholds) (bool, float64, bool) {
		p, ok := percentBelow(w.Readings(c), limit(thr))
		if !ok {
			return false, 0, false
		}
		return p >= share(thr), p, true
	}
}

// MeanAtLeast returns an ExclusionFunc that fires when the channel's mean
// reaches limit. Missing readings never exclude.
func MeanAtLeast(c types.Channel, limit float64, reason string) ExclusionFunc {
	return func(w *window.Window) (bool, string) {
		m, ok := mean(w.Averages(c))
		return ok && m >= limit, reason
	}
}

// MeanAtMost returns an ExclusionFunc that fires when the channel's mean is at
// or below limit. Missing readings never exclude.
func MeanAtMost(c types.Channel, limit float64, reason string) ExclusionFunc {
	return func(w *window.Window) (bool, string) {
		m, ok := mean(w.Averages(c))
		return ok && m <= limit, reason
	}
}
