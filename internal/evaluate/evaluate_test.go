package evaluate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aircx/internal/correct"
	"aircx/internal/types"
	"aircx/internal/window"
)

var t0 = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func baseThresholds() Thresholds {
	return Thresholds{
		SetpointDeviationPct:  10,
		DamperHighLimit:       90,
		DamperLowLimit:        10,
		DamperHighFractionPct: 50,
		DamperLowFractionPct:  50,
		ReheatValveLimit:      50,
		ReheatFractionPct:     25,
		HighSATReheatLimit:    10,
		MaxCyclesPerHour:      4,
	}
}

// fill builds a window of n one-minute samples, each carrying a copy of values.
func fill(n int, values map[types.Channel][]float64) *window.Window {
	w := window.New()
	for i := 0; i < n; i++ {
		w.Accept(types.SampleSet{Timestamp: t0.Add(time.Duration(i) * time.Minute), Values: values})
	}
	return w
}

func lowPressureRule(s correct.Settings) Retune {
	return Retune{
		Name:      "Low Duct Static Pressure",
		CodeBase:  10,
		Problem:   "low duct static pressure",
		Symptom:   "Duct static pressure is too low",
		Setpoint:  types.ChannelDuctPressureSetpoint,
		Direction: correct.Increase,
		Fault: ShareAbove(types.ChannelZoneDamper,
			func(t Thresholds) float64 { return t.DamperHighLimit },
			func(t Thresholds) float64 { return t.DamperHighFractionPct }),
		Exclusion: MeanAtLeast(types.ChannelFanSpeed, 100, "Supply fan is at maximum speed; duct static pressure cannot be raised."),
		Correct:   s,
	}
}

func TestDeriveTiers(t *testing.T) {
	all, err := DeriveTiers(baseThresholds(), SelectAll)
	require.NoError(t, err)
	assert.Equal(t, []types.Tier{types.TierLow, types.TierNormal, types.TierHigh}, all.Active())
	assert.Equal(t, types.TierNormal, all.Primary())
	assert.Equal(t, 15.0, all.For(types.TierLow).SetpointDeviationPct)
	assert.Equal(t, 10.0, all.For(types.TierNormal).SetpointDeviationPct)
	assert.Equal(t, 5.0, all.For(types.TierHigh).SetpointDeviationPct)
	assert.Equal(t, 95.0, all.For(types.TierLow).DamperHighLimit)
	assert.Equal(t, 85.0, all.For(types.TierHigh).DamperHighLimit)

	custom, err := DeriveTiers(baseThresholds(), SelectCustom)
	require.NoError(t, err)
	assert.Equal(t, []types.Tier{types.TierCustom}, custom.Active())
	assert.Equal(t, baseThresholds(), custom.For(types.TierCustom))

	high, err := DeriveTiers(baseThresholds(), SelectHigh)
	require.NoError(t, err)
	assert.Equal(t, types.TierHigh, high.Primary())

	_, err = DeriveTiers(baseThresholds(), Selection("extreme"))
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfigInvalidSelection, types.CodeOf(err))
}

func TestDeriveTiers_ClampsPercentages(t *testing.T) {
	b := baseThresholds()
	b.DamperHighLimit = 98
	b.DamperLowLimit = 2
	ts, err := DeriveTiers(b, SelectAll)
	require.NoError(t, err)
	assert.Equal(t, 100.0, ts.For(types.TierLow).DamperHighLimit)
	assert.Equal(t, 0.0, ts.For(types.TierLow).DamperLowLimit)
}

func TestTracking_OneVerdictPerTier(t *testing.T) {
	rule := Tracking{Name: "Duct Static Pressure Set Point Control Loop", Label: "Duct static pressure",
		CodeBase: 0, Setpoint: types.ChannelDuctPressureSetpoint, Measured: types.ChannelDuctPressure}
	// 8% deviation: a fault only for the high tier (5%).
	w := fill(10, map[types.Channel][]float64{
		types.ChannelDuctPressureSetpoint: {1.0},
		types.ChannelDuctPressure:         {0.92},
	})

	all, _ := DeriveTiers(baseThresholds(), SelectAll)
	verdicts := rule.Evaluate(w, all)
	require.Len(t, verdicts, 3)
	assert.Equal(t, TrackingOK, verdicts[0].Code)
	assert.Equal(t, TrackingOK, verdicts[1].Code)
	assert.Equal(t, TrackingFault, verdicts[2].Code)
	assert.Equal(t, types.ColorRed, verdicts[2].Color)
	assert.Equal(t, types.TierHigh, verdicts[2].Tier)

	custom, _ := DeriveTiers(baseThresholds(), SelectCustom)
	assert.Len(t, rule.Evaluate(w, custom), 1)
}

func TestTracking_MissingSetpointIsGrey(t *testing.T) {
	rule := Tracking{Name: "tracking", Label: "Duct static pressure",
		Setpoint: types.ChannelDuctPressureSetpoint, Measured: types.ChannelDuctPressure}
	w := fill(10, map[types.Channel][]float64{types.ChannelDuctPressure: {0.5}})
	tiers, _ := DeriveTiers(baseThresholds(), SelectAll)

	verdicts := rule.Evaluate(w, tiers)
	require.Len(t, verdicts, 3)
	for _, v := range verdicts {
		assert.Equal(t, TrackingNoSetpoint, v.Code)
		assert.Equal(t, types.ColorGrey, v.Color)
		assert.Contains(t, v.Message, "not available")
	}
}

func TestTracking_ZeroSetpointIsInconclusive(t *testing.T) {
	rule := Tracking{Name: "tracking", Label: "Duct static pressure",
		Setpoint: types.ChannelDuctPressureSetpoint, Measured: types.ChannelDuctPressure}
	w := fill(5, map[types.Channel][]float64{
		types.ChannelDuctPressureSetpoint: {0},
		types.ChannelDuctPressure:         {0.5},
	})
	tiers, _ := DeriveTiers(baseThresholds(), SelectNormal)

	verdicts := rule.Evaluate(w, tiers)
	require.Len(t, verdicts, 1)
	assert.Equal(t, TrackingNoSetpoint, verdicts[0].Code)
}

func TestRetune_FractionRecomputedPerTier(t *testing.T) {
	// Dampers at 88 and 93: above the high tier limit (85) for every zone, above
	// normal (90) for half, above low (95) for none.
	w := fill(10, map[types.Channel][]float64{
		types.ChannelDuctPressureSetpoint: {1.0},
		types.ChannelZoneDamper:           {88, 93},
	})
	rule := lowPressureRule(correct.Settings{Enabled: true, Step: 0.1, Min: 0.5, Max: 2.0})
	tiers, _ := DeriveTiers(baseThresholds(), SelectAll)

	verdicts, cmd := rule.Evaluate(w, tiers)
	require.Len(t, verdicts, 3)
	assert.InDelta(t, 10+RetuneOK, verdicts[0].Code, 1e-9, "low tier: 0% above 95 vs 62.5% required")
	assert.InDelta(t, 10+RetuneCorrected, verdicts[1].Code, 1e-9, "normal tier: 50% above 90 vs 50% required")
	assert.InDelta(t, 10+RetuneCorrected, verdicts[2].Code, 1e-9, "high tier: 100% above 85")
	require.NotNil(t, cmd)
	assert.InDelta(t, 1.1, cmd.Value, 1e-9)
}

func TestRetune_Precedence(t *testing.T) {
	enabled := correct.Settings{Enabled: true, Step: 0.1, Min: 0.5, Max: 2.0}
	faulted := map[types.Channel][]float64{
		types.ChannelDuctPressureSetpoint: {1.0},
		types.ChannelZoneDamper:           {100, 100},
	}
	with := func(extra map[types.Channel][]float64) map[types.Channel][]float64 {
		out := map[types.Channel][]float64{}
		for k, v := range faulted {
			out[k] = v
		}
		for k, v := range extra {
			if v == nil {
				delete(out, k)
				continue
			}
			out[k] = v
		}
		return out
	}

	tests := []struct {
		name     string
		values   map[types.Channel][]float64
		settings correct.Settings
		code     float64
		command  bool
	}{
		{"fan saturated beats missing set point",
			with(map[types.Channel][]float64{types.ChannelFanSpeed: {100}, types.ChannelDuctPressureSetpoint: nil}),
			enabled, 10 + RetuneExcluded, false},
		{"missing set point beats disabled",
			with(map[types.Channel][]float64{types.ChannelDuctPressureSetpoint: nil}),
			correct.Settings{Step: 0.1, Min: 0.5, Max: 2.0}, 10 + RetuneNoSetpoint, false},
		{"missing zone data",
			with(map[types.Channel][]float64{types.ChannelZoneDamper: nil}),
			enabled, 10 + RetuneNoZoneData, false},
		{"disabled beats override",
			with(map[types.Channel][]float64{types.OverrideChannel(types.ChannelDuctPressureSetpoint): {1}}),
			correct.Settings{Step: 0.1, Min: 0.5, Max: 2.0}, 10 + RetuneDisabled, false},
		{"override skips correction",
			with(map[types.Channel][]float64{types.OverrideChannel(types.ChannelDuctPressureSetpoint): {1}}),
			enabled, 10 + RetuneOverride, false},
		{"clamped at max",
			with(map[types.Channel][]float64{types.ChannelDuctPressureSetpoint: {1.95}}),
			enabled, 10 + RetuneAtLimit, true},
		{"corrected", faulted, enabled, 10 + RetuneCorrected, true},
		{"no fault",
			with(map[types.Channel][]float64{types.ChannelZoneDamper: {40, 50}}),
			enabled, 10 + RetuneOK, false},
	}
	tiers, _ := DeriveTiers(baseThresholds(), SelectCustom)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts, cmd := lowPressureRule(tt.settings).Evaluate(fill(5, tt.values), tiers)
			require.Len(t, verdicts, 1)
			assert.InDelta(t, tt.code, verdicts[0].Code, 1e-9)
			assert.Equal(t, tt.command, cmd != nil)
		})
	}
}

func TestRetune_Idempotent(t *testing.T) {
	w := fill(10, map[types.Channel][]float64{
		types.ChannelDuctPressureSetpoint: {1.0},
		types.ChannelZoneDamper:           {95, 97, 60},
	})
	rule := lowPressureRule(correct.Settings{Enabled: true, Step: 0.1, Min: 0.5, Max: 2.0})
	tiers, _ := DeriveTiers(baseThresholds(), SelectAll)

	first, cmd1 := rule.Evaluate(w, tiers)
	second, cmd2 := rule.Evaluate(w, tiers)
	assert.Equal(t, first, second)
	assert.Equal(t, cmd1, cmd2)
}

func TestRetune_Insufficient(t *testing.T) {
	rule := lowPressureRule(correct.Settings{Enabled: true, Step: 0.1, Min: 0.5, Max: 2.0})
	tiers, _ := DeriveTiers(baseThresholds(), SelectAll)

	verdicts := rule.Insufficient(tiers)
	require.Len(t, verdicts, 3)
	for _, v := range verdicts {
		assert.InDelta(t, 18.2, v.Code, 1e-9)
		assert.Equal(t, types.ColorGrey, v.Color)
	}
}

func TestThresholds_DefaultsAndValidate(t *testing.T) {
	filled := Thresholds{SetpointDeviationPct: 7}.WithDefaults()
	assert.Equal(t, 7.0, filled.SetpointDeviationPct)
	assert.Equal(t, DefaultThresholds().DamperHighLimit, filled.DamperHighLimit)
	require.NoError(t, filled.Validate())

	bad := filled
	bad.DamperLowLimit = 95
	err := bad.Validate()
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfigInvalidThresholds, types.CodeOf(err))

	bad = filled
	bad.ReheatFractionPct = 140
	assert.Error(t, bad.Validate())

	assert.Equal(t, DefaultThresholds(), Thresholds{}.WithDefaults())
}

func TestThresholds_ExplicitZeroLimits(t *testing.T) {
	var thr Thresholds
	require.NoError(t, json.Unmarshal([]byte(`{"reheat_valve_limit": 0, "damper_low_limit": 0, "max_cycles_per_hour": 6}`), &thr))
	thr = thr.WithDefaults()
	assert.Zero(t, thr.ReheatValveLimit)
	assert.Zero(t, thr.DamperLowLimit)
	assert.Equal(t, 6.0, thr.MaxCyclesPerHour)
	assert.Equal(t, DefaultThresholds().HighSATReheatLimit, thr.HighSATReheatLimit)
	require.NoError(t, thr.Validate())

	var omitted Thresholds
	require.NoError(t, json.Unmarshal([]byte(`{}`), &omitted))
	assert.Equal(t, DefaultThresholds(), omitted)

	kept := Thresholds{SetpointDeviationPct: 5, HighSATReheatLimit: 0}.WithDefaults()
	assert.Zero(t, kept.HighSATReheatLimit)
	assert.Equal(t, DefaultThresholds().DamperHighLimit, kept.DamperHighLimit)

	assert.Error(t, json.Unmarshal([]byte(`{"reheat_limit": 40}`), &thr))
}
