package diagnostics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aircx/internal/correct"
	"aircx/internal/evaluate"
	"aircx/internal/types"
	"aircx/internal/window"
)

func windowOf(n int, values map[types.Channel][]float64) *window.Window {
	w := window.New()
	for i := 0; i < n; i++ {
		w.Accept(types.SampleSet{Timestamp: t0.Add(time.Duration(i) * time.Minute), Values: values})
	}
	return w
}

func TestHighSupplyTemperatureFault(t *testing.T) {
	thr := evaluate.DefaultThresholds()
	tests := []struct {
		name    string
		values  map[types.Channel][]float64
		faulted bool
		ok      bool
	}{
		{"dampers open without reheat", map[types.Channel][]float64{
			types.ChannelZoneDamper: {95, 96},
			types.ChannelZoneReheat: {0, 0},
		}, true, true},
		{"dampers open with reheat", map[types.Channel][]float64{
			types.ChannelZoneDamper: {95, 96},
			types.ChannelZoneReheat: {80, 0},
		}, false, true},
		{"reheat missing counts as none", map[types.Channel][]float64{
			types.ChannelZoneDamper: {95, 96},
		}, true, true},
		{"dampers modulating", map[types.Channel][]float64{
			types.ChannelZoneDamper: {40, 50},
			types.ChannelZoneReheat: {0, 0},
		}, false, true},
		{"dampers missing", map[types.Channel][]float64{
			types.ChannelZoneReheat: {0, 0},
		}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faulted, _, ok := highSupplyTemperatureFault(windowOf(5, tt.values), thr)
			assert.Equal(t, tt.faulted, faulted)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestOutcome_AddCommandKeepsFirstPerChannel(t *testing.T) {
	var out Outcome
	assert.False(t, out.addCommand(nil))
	assert.True(t, out.addCommand(&types.Command{Channel: types.ChannelSupplyTempSetpoint, Value: 56}))
	assert.False(t, out.addCommand(&types.Command{Channel: types.ChannelSupplyTempSetpoint, Value: 54}))
	assert.True(t, out.addCommand(&types.Command{Channel: types.ChannelDuctPressureSetpoint, Value: 1.2}))
	require.Len(t, out.Commands, 2)
	assert.Equal(t, 56.0, out.Commands[0].Value)
}

func TestSupplyTemperature_ReheatingZonesRaiseSetpoint(t *testing.T) {
	tiers, err := evaluate.DeriveTiers(evaluate.DefaultThresholds(), evaluate.SelectNormal)
	require.NoError(t, err)
	d := NewSupplyTemperature(tiers, correct.Settings{Enabled: true, Step: 1, Min: 50, Max: 60})

	w := windowOf(12, map[types.Channel][]float64{
		types.ChannelSupplyTemp:         {52},
		types.ChannelSupplyTempSetpoint: {52},
		types.ChannelZoneReheat:         {90, 80, 0, 0},
		types.ChannelZoneDamper:         {30, 40, 20, 25},
	})
	out := d.Evaluate(w)

	require.Len(t, out.Verdicts, 3)
	assert.Equal(t, 30+evaluate.TrackingOK, out.Verdicts[0].Code)
	assert.InDelta(t, 40+evaluate.RetuneCorrected, out.Verdicts[1].Code, 1e-9)
	assert.Equal(t, types.ColorGreen, out.Verdicts[2].Color)
	require.Len(t, out.Commands, 1)
	assert.Equal(t, types.Command{Channel: types.ChannelSupplyTempSetpoint, Value: 53}, out.Commands[0])
}

func TestUnitOff_OneWhiteVerdictPerTier(t *testing.T) {
	tiers, err := evaluate.DeriveTiers(evaluate.DefaultThresholds(), evaluate.SelectAll)
	require.NoError(t, err)
	out := NewStaticPressure(tiers, StaticPressureOptions{}).UnitOff()
	require.Len(t, out.Verdicts, 3)
	for _, v := range out.Verdicts {
		assert.Equal(t, types.ColorWhite, v.Color)
		assert.Equal(t, "Duct Static Pressure", v.Rule)
	}
	assert.Empty(t, out.Commands)
}
