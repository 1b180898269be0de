package diagnostics

import (
	"aircx/internal/correct"
	"aircx/internal/evaluate"
	"aircx/internal/types"
	"aircx/internal/window"
)

// StaticPressure checks duct static pressure control: setpoint tracking, and
// zone dampers pinned open (pressure too low) or nearly closed (too high).
type StaticPressure struct {
	tiers    evaluate.TierSet
	tracking evaluate.Tracking
	low      evaluate.Retune
	high     evaluate.Retune
}

// StaticPressureOptions configures NewStaticPressure.
type StaticPressureOptions struct {
	Correction correct.Settings
	// FanSpeedMax and FanSpeedMin bound the supply fan speed (%): at the
	// bounds pressure cannot be moved further, so no change is recommended.
	FanSpeedMax float64
	FanSpeedMin float64
}

// NewStaticPressure builds the diagnostic. A non-positive FanSpeedMax means
// 100%.
func NewStaticPressure(tiers evaluate.TierSet, opts StaticPressureOptions) *StaticPressure {
	if opts.FanSpeedMax <= 0 {
		opts.FanSpeedMax = 100
	}
	return &StaticPressure{
		tiers: tiers,
		tracking: evaluate.Tracking{
			Name:     "Duct Static Pressure Set Point Control Loop",
			Label:    "Duct static pressure",
			CodeBase: 0,
			Setpoint: types.ChannelDuctPressureSetpoint,
			Measured: types.ChannelDuctPressure,
		},
		low: evaluate.Retune{
			Name:      "Low Duct Static Pressure",
			CodeBase:  10,
			Problem:   "low duct static pressure",
			Symptom:   "Duct static pressure is too low; zone dampers are mostly wide open",
			Setpoint:  types.ChannelDuctPressureSetpoint,
			Direction: correct.Increase,
			Fault: evaluate.ShareAbove(types.ChannelZoneDamper,
				func(t evaluate.Thresholds) float64 { return t.DamperHighLimit },
				func(t evaluate.Thresholds) float64 { return t.DamperHighFractionPct }),
			Exclusion: evaluate.MeanAtLeast(types.ChannelFanSpeed, opts.FanSpeedMax,
				"Supply fan is at maximum speed; duct static pressure set point cannot be raised."),
			Correct: opts.Correction,
		},
		high: evaluate.Retune{
			Name:      "High Duct Static Pressure",
			CodeBase:  20,
			Problem:   "high duct static pressure",
			Symptom:   "Duct static pressure is too high; zone dampers are mostly closed",
			Setpoint:  types.ChannelDuctPressureSetpoint,
			Direction: correct.Decrease,
			Fault: evaluate.ShareBelow(types.ChannelZoneDamper,
				func(t evaluate.Thresholds) float64 { return t.DamperLowLimit },
				func(t evaluate.Thresholds) float64 { return t.DamperLowFractionPct }),
			Exclusion: evaluate.MeanAtMost(types.ChannelFanSpeed, opts.FanSpeedMin,
				"Supply fan is at minimum speed; duct static pressure set point cannot be lowered."),
			Correct: opts.Correction,
		},
	}
}

// Name implements Diagnostic.
func (d *StaticPressure) Name() string { return NameStaticPressure }

// Evaluate implements Diagnostic. When both retuning rules command the set
// point in one window, the low-pressure command wins.
func (d *StaticPressure) Evaluate(w *window.Window) Outcome {
	out := Outcome{Verdicts: d.tracking.Evaluate(w, d.tiers)}
	for _, rule := range []evaluate.Retune{d.low, d.high} {
		verdicts, cmd := rule.Evaluate(w, d.tiers)
		out.Verdicts = append(out.Verdicts, verdicts...)
		out.addCommand(cmd)
	}
	return out
}

// Insufficient implements Diagnostic.
func (d *StaticPressure) Insufficient() Outcome {
	v := d.tracking.Insufficient(d.tiers)
	v = append(v, d.low.Insufficient(d.tiers)...)
	v = append(v, d.high.Insufficient(d.tiers)...)
	return Outcome{Verdicts: v}
}

// UnitOff implements Diagnostic.
func (d *StaticPressure) UnitOff() Outcome {
	return unitOff("Duct Static Pressure", d.tiers)
}
