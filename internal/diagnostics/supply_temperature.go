package diagnostics

import (
	"aircx/internal/correct"
	"aircx/internal/evaluate"
	"aircx/internal/types"
	"aircx/internal/window"
)

// SupplyTemperature checks supply-air temperature control: setpoint tracking,
// zones reheating a too-cold supply, and dampers opening wide without reheat
// on a too-warm supply.
type SupplyTemperature struct {
	tiers    evaluate.TierSet
	tracking evaluate.Tracking
	low      evaluate.Retune
	high     evaluate.Retune
}

// NewSupplyTemperature builds the diagnostic.
func NewSupplyTemperature(tiers evaluate.TierSet, correction correct.Settings) *SupplyTemperature {
	return &SupplyTemperature{
		tiers: tiers,
		tracking: evaluate.Tracking{
			Name:     "Supply-air Temperature Set Point Control Loop",
			Label:    "Supply-air temperature",
			CodeBase: 30,
			Setpoint: types.ChannelSupplyTempSetpoint,
			Measured: types.ChannelSupplyTemp,
		},
		low: evaluate.Retune{
			Name:      "Low Supply-air Temperature",
			CodeBase:  40,
			Problem:   "low supply-air temperature",
			Symptom:   "Supply-air temperature is too low; many zones are reheating",
			Setpoint:  types.ChannelSupplyTempSetpoint,
			Direction: correct.Increase,
			Fault: evaluate.ShareAbove(types.ChannelZoneReheat,
				func(t evaluate.Thresholds) float64 { return t.ReheatValveLimit },
				func(t evaluate.Thresholds) float64 { return t.ReheatFractionPct }),
			Correct: correction,
		},
		high: evaluate.Retune{
			Name:      "High Supply-air Temperature",
			CodeBase:  50,
			Problem:   "high supply-air temperature",
			Symptom:   "Supply-air temperature is too high; zone dampers are mostly wide open without reheat",
			Setpoint:  types.ChannelSupplyTempSetpoint,
			Direction: correct.Decrease,
			Fault:     highSupplyTemperatureFault,
			Correct:   correction,
		},
	}
}

// highSupplyTemperatureFault faults when the share of damper readings above
// the high limit reaches the tier's fraction while the share of reheat
// readings above the reheat limit stays below HighSATReheatLimit. Missing
// reheat readings count as no reheat; missing damper readings leave the rule
// unevaluated.
func highSupplyTemperatureFault(w *window.Window, thr evaluate.Thresholds) (bool, float64, bool) {
	dampers := evaluate.ShareAbove(types.ChannelZoneDamper,
		func(t evaluate.Thresholds) float64 { return t.DamperHighLimit },
		func(t evaluate.Thresholds) float64 { return t.DamperHighFractionPct })
	faulted, share, ok := dampers(w, thr)
	if !ok || !faulted {
		return false, share, ok
	}
	reheat := evaluate.ShareAbove(types.ChannelZoneReheat,
		func(t evaluate.Thresholds) float64 { return t.ReheatValveLimit },
		func(t evaluate.Thresholds) float64 { return t.HighSATReheatLimit })
	reheating, _, okReheat := reheat(w, thr)
	if okReheat && reheating {
		return false, share, true
	}
	return true, share, true
}

// Name implements Diagnostic.
func (d *SupplyTemperature) Name() string { return NameSupplyTemperature }

// Evaluate implements Diagnostic. When both retuning rules command the set
// point in one window, the low-temperature command wins.
func (d *SupplyTemperature) Evaluate(w *window.Window) Outcome {
	out := Outcome{Verdicts: d.tracking.Evaluate(w, d.tiers)}
	for _, rule := range []evaluate.Retune{d.low, d.high} {
		verdicts, cmd := rule.Evaluate(w, d.tiers)
		out.Verdicts = append(out.Verdicts, verdicts...)
		out.addCommand(cmd)
	}
	return out
}

// Insufficient implements Diagnostic.
func (d *SupplyTemperature) Insufficient() Outcome {
	v := d.tracking.Insufficient(d.tiers)
	v = append(v, d.low.Insufficient(d.tiers)...)
	v = append(v, d.high.Insufficient(d.tiers)...)
	return Outcome{Verdicts: v}
}

// UnitOff implements Diagnostic.
func (d *SupplyTemperature) UnitOff() Outcome {
	return unitOff("Supply-air Temperature", d.tiers)
}
