// Package evaluate turns a completed analysis window into verdicts, one per
// active sensitivity tier. Rules are pure functions of the window and the
// read-only threshold records; tiers share no mutable state.
package evaluate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"aircx/internal/types"
)

// Selection is the configured sensitivity selection.
type Selection string

const (
	SelectAll    Selection = "all"
	SelectLow    Selection = "low"
	SelectNormal Selection = "normal"
	SelectHigh   Selection = "high"
	SelectCustom Selection = "custom"
)

// ParseSelection validates a selection name.
func ParseSelection(s string) (Selection, error) {
	switch sel := Selection(strings.ToLower(strings.TrimSpace(s))); sel {
	case SelectAll, SelectLow, SelectNormal, SelectHigh, SelectCustom:
		return sel, nil
	}
	return "", types.NewAppError(types.ErrCodeConfigInvalidSelection,
		fmt.Sprintf("unknown sensitivity %q (want all, low, normal, high or custom)", s), nil)
}

// Thresholds holds every threshold a rule may read. Percentages are 0-100.
type Thresholds struct {
	// Setpoint tracking: allowed mean absolute deviation, percent of setpoint.
	SetpointDeviationPct float64 `json:"setpoint_deviation_pct" validate:"gt=0"`

	// Zone damper limits (% open) and the share of readings beyond them that
	// constitutes a fault.
	DamperHighLimit       float64 `json:"damper_high_limit" validate:"gt=0,lte=100"`
	DamperLowLimit        float64 `json:"damper_low_limit" validate:"gte=0,ltfield=DamperHighLimit"`
	DamperHighFractionPct float64 `json:"damper_high_fraction_pct" validate:"gt=0,lte=100"`
	DamperLowFractionPct  float64 `json:"damper_low_fraction_pct" validate:"gt=0,lte=100"`

	// Reheat valve limit (% open) for "zone in reheat", and the share of
	// readings in reheat that flags a low supply temperature.
	ReheatValveLimit  float64 `json:"reheat_valve_limit" validate:"gte=0,lte=100"`
	ReheatFractionPct float64 `json:"reheat_fraction_pct" validate:"gt=0,lte=100"`

	// Reheat share below which a high supply temperature may be declared.
	HighSATReheatLimit float64 `json:"high_sat_reheat_limit" validate:"gte=0,lte=100"`

	// Cycling: on/off cycles per hour above which cycling is excessive.
	MaxCyclesPerHour float64 `json:"max_cycles_per_hour" validate:"gt=0"`
}

// DefaultThresholds returns the normal-tier thresholds used when an equipment
// definition leaves a field unset.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SetpointDeviationPct:  10,
		DamperHighLimit:       90,
		DamperLowLimit:        15,
		DamperHighFractionPct: 50,
		DamperLowFractionPct:  50,
		ReheatValveLimit:      50,
		ReheatFractionPct:     25,
		HighSATReheatLimit:    10,
		MaxCyclesPerHour:      4,
	}
}

// UnmarshalJSON decodes on top of DefaultThresholds, so an omitted field keeps
// its default while an explicit zero is preserved. Unknown fields are
// rejected.
func (t *Thresholds) UnmarshalJSON(data []byte) error {
	type plain Thresholds
	v := plain(DefaultThresholds())
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*t = Thresholds(v)
	return nil
}

// WithDefaults returns DefaultThresholds for the zero value. Otherwise it
// fills only the fields that must be positive; limits for which zero is a
// valid setting are kept as given.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t == (Thresholds{}) {
		return d
	}
	fill := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&t.SetpointDeviationPct, d.SetpointDeviationPct)
	fill(&t.DamperHighLimit, d.DamperHighLimit)
	fill(&t.DamperHighFractionPct, d.DamperHighFractionPct)
	fill(&t.DamperLowFractionPct, d.DamperLowFractionPct)
	fill(&t.ReheatFractionPct, d.ReheatFractionPct)
	fill(&t.MaxCyclesPerHour, d.MaxCyclesPerHour)
	return t
}

// Validate rejects thresholds no tier can be derived from.
func (t Thresholds) Validate() error {
	bad := func(field string, v float64) error {
		return types.NewAppError(types.ErrCodeConfigInvalidThresholds,
			fmt.Sprintf("threshold %s out of range: %v", field, v), nil).
			WithDetails(map[string]any{"field": field})
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"damper_high_limit", t.DamperHighLimit},
		{"damper_low_limit", t.DamperLowLimit},
		{"damper_high_fraction_pct", t.DamperHighFractionPct},
		{"damper_low_fraction_pct", t.DamperLowFractionPct},
		{"reheat_valve_limit", t.ReheatValveLimit},
		{"reheat_fraction_pct", t.ReheatFractionPct},
		{"high_sat_reheat_limit", t.HighSATReheatLimit},
	} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 100 {
			return bad(f.name, f.v)
		}
	}
	if !(t.SetpointDeviationPct > 0) {
		return bad("setpoint_deviation_pct", t.SetpointDeviationPct)
	}
	if !(t.MaxCyclesPerHour > 0) {
		return bad("max_cycles_per_hour", t.MaxCyclesPerHour)
	}
	if t.DamperLowLimit >= t.DamperHighLimit {
		return bad("damper_low_limit", t.DamperLowLimit)
	}
	return nil
}

// TierSet is the immutable threshold record of every tier plus the ordered
// list of active tiers.
type TierSet struct {
	thresholds [types.TierCount]Thresholds
	active     []types.Tier
	primary    types.Tier
}

// DeriveTiers builds the tier set for a selection. custom uses base as-is;
// every other selection derives low, normal and high from base, where low is
// the least sensitive (fewest faults) and high the most.
func DeriveTiers(base Thresholds, sel Selection) (TierSet, error) {
	var ts TierSet
	switch sel {
	case SelectCustom:
		ts.thresholds[types.TierCustom] = base
		ts.active = []types.Tier{types.TierCustom}
		ts.primary = types.TierCustom
		return ts, nil
	case SelectAll:
		ts.active = []types.Tier{types.TierLow, types.TierNormal, types.TierHigh}
		ts.primary = types.TierNormal
	case SelectLow:
		ts.active = []types.Tier{types.TierLow}
		ts.primary = types.TierLow
	case SelectNormal:
		ts.active = []types.Tier{types.TierNormal}
		ts.primary = types.TierNormal
	case SelectHigh:
		ts.active = []types.Tier{types.TierHigh}
		ts.primary = types.TierHigh
	default:
		return TierSet{}, types.NewAppError(types.ErrCodeConfigInvalidSelection,
			fmt.Sprintf("unknown sensitivity %q", sel), nil)
	}

	ts.thresholds[types.TierLow] = scale(base, 1.5, 5, 1.25)
	ts.thresholds[types.TierNormal] = base
	ts.thresholds[types.TierHigh] = scale(base, 0.5, -5, 0.75)
	return ts, nil
}

// scale derives a tier from base. factor widens or narrows ratio thresholds,
// offset moves absolute position limits and share widens fraction thresholds.
func scale(base Thresholds, factor, offset, share float64) Thresholds {
	return Thresholds{
		SetpointDeviationPct:  base.SetpointDeviationPct * factor,
		DamperHighLimit:       pct(base.DamperHighLimit + offset),
		DamperLowLimit:        pct(base.DamperLowLimit - offset),
		DamperHighFractionPct: pct(base.DamperHighFractionPct * share),
		DamperLowFractionPct:  pct(base.DamperLowFractionPct * share),
		ReheatValveLimit:      pct(base.ReheatValveLimit + offset),
		ReheatFractionPct:     pct(base.ReheatFractionPct * share),
		HighSATReheatLimit:    pct(base.HighSATReheatLimit / share),
		MaxCyclesPerHour:      base.MaxCyclesPerHour * factor,
	}
}

func pct(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Active returns the tiers to evaluate, in reporting order.
func (ts TierSet) Active() []types.Tier {
	return ts.active
}

// Primary returns the tier whose decision drives auto-correction commands.
func (ts TierSet) Primary() types.Tier {
	return ts.primary
}

// For returns the thresholds of a tier.
func (ts TierSet) For(t types.Tier) Thresholds {
	return ts.thresholds[t]
}
