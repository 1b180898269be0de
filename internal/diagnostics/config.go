package diagnostics

import (
	"errors"
	"fmt"
	"time"

	"aircx/internal/correct"
	"aircx/internal/cycle"
	"aircx/internal/evaluate"
	"aircx/internal/results"
	"aircx/internal/types"
	"aircx/internal/window"
)

// EquipmentConfig describes one equipment unit: which diagnostics run, the
// analysis window, thresholds and correction bounds. It is loaded once at
// startup and never mutated afterwards.
type EquipmentConfig struct {
	ID          string   `json:"id" validate:"required"`
	Diagnostics []string `json:"diagnostics" validate:"required,min=1,dive,oneof=static_pressure supply_temperature cycling"`
	Sensitivity string   `json:"sensitivity" validate:"omitempty,oneof=all low normal high custom"`

	Window     WindowConfig        `json:"window"`
	Thresholds evaluate.Thresholds `json:"thresholds"`

	// Correction bounds are only checked for diagnostics that use them.
	StaticPressureCorrection    correct.Settings `json:"static_pressure_correction" validate:"-"`
	SupplyTemperatureCorrection correct.Settings `json:"supply_temperature_correction" validate:"-"`

	FanSpeedMax float64 `json:"fan_speed_max" validate:"gte=0,lte=100"`
	FanSpeedMin float64 `json:"fan_speed_min" validate:"gte=0,lte=100"`

	Cycling CyclingConfig `json:"cycling" validate:"-"`

	// PrereqTimeout is the number of consecutive unit-off samples after which
	// the window is discarded and a "not running" row is written.
	PrereqTimeout int `json:"prereq_timeout" validate:"gte=0"`

	// Table is the result table name.
	Table string `json:"table"`
}

// WindowConfig is the JSON form of window.GateConfig.
type WindowConfig struct {
	Minutes    int    `json:"minutes" validate:"gte=0"`
	MinSamples int    `json:"min_samples" validate:"gte=0"`
	Schedule   string `json:"schedule" validate:"omitempty,oneof=hourly daily"`
}

// CyclingConfig is the JSON form of the cycling diagnostic's parameters.
type CyclingConfig struct {
	Channel              types.Channel `json:"channel"`
	SetpointChannel      types.Channel `json:"setpoint_channel"`
	CheckIntervalMinutes int           `json:"check_interval_minutes"`
	CutoffMinutes        float64       `json:"cutoff_minutes"`
	PeakSpacingMinutes   float64       `json:"peak_spacing_minutes"`
	MinCycleMinutes      float64       `json:"min_cycle_minutes"`
	MinSwingFraction     float64       `json:"min_swing_fraction"`
	MinPeaks             int           `json:"min_peaks"`
}

// Defaults applied by WithDefaults.
const (
	DefaultSensitivity   = "all"
	DefaultWindowMinutes = 60
	DefaultMinSamples    = 30
	DefaultPrereqTimeout = 5
)

// WithDefaults returns a copy with unset fields filled in.
func (c EquipmentConfig) WithDefaults() EquipmentConfig {
	if c.Sensitivity == "" {
		c.Sensitivity = DefaultSensitivity
	}
	if c.Window.Minutes == 0 && c.Window.Schedule == "" {
		c.Window.Minutes = DefaultWindowMinutes
	}
	if c.Window.MinSamples == 0 {
		c.Window.MinSamples = DefaultMinSamples
	}
	c.Thresholds = c.Thresholds.WithDefaults()
	if c.FanSpeedMax == 0 {
		c.FanSpeedMax = 100
	}
	if c.PrereqTimeout == 0 {
		c.PrereqTimeout = DefaultPrereqTimeout
	}
	if c.Table == "" {
		c.Table = results.DefaultTable
	}

	cy := &c.Cycling
	if cy.Channel == "" {
		cy.Channel = types.ChannelZoneTemp
	}
	defaults := cycle.DefaultConfig()
	if cy.CheckIntervalMinutes == 0 {
		cy.CheckIntervalMinutes = int(defaults.CheckInterval / time.Minute)
	}
	if cy.CutoffMinutes == 0 {
		cy.CutoffMinutes = defaults.CutoffPeriod.Minutes()
	}
	if cy.PeakSpacingMinutes == 0 {
		cy.PeakSpacingMinutes = defaults.MinPeakSpacing.Minutes()
	}
	if cy.MinCycleMinutes == 0 {
		cy.MinCycleMinutes = defaults.MinCycleDuration.Minutes()
	}
	if cy.MinSwingFraction == 0 {
		cy.MinSwingFraction = defaults.MinSwingFraction
	}
	if cy.MinPeaks == 0 {
		cy.MinPeaks = defaults.MinPeaks
	}
	return c
}

// Gate converts the window settings.
func (c EquipmentConfig) Gate() window.GateConfig {
	return window.GateConfig{
		MinSamples: c.Window.MinSamples,
		MinElapsed: time.Duration(c.Window.Minutes) * time.Minute,
		Schedule:   window.Schedule(c.Window.Schedule),
	}
}

// CycleConfig converts the cycling settings.
func (c EquipmentConfig) CycleConfig() cycle.Config {
	return cycle.Config{
		CheckInterval:    time.Duration(c.Cycling.CheckIntervalMinutes) * time.Minute,
		CutoffPeriod:     minutesOf(c.Cycling.CutoffMinutes),
		MinPeakSpacing:   minutesOf(c.Cycling.PeakSpacingMinutes),
		MinCycleDuration: minutesOf(c.Cycling.MinCycleMinutes),
		MinSwingFraction: c.Cycling.MinSwingFraction,
		MinPeaks:         c.Cycling.MinPeaks,
	}
}

func minutesOf(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// Validate checks every setting the configured diagnostics depend on. All
// failures are configuration errors.
func (c EquipmentConfig) Validate() error {
	wrap := func(err error) error {
		var app *types.AppError
		if errors.As(err, &app) {
			return app.WithDetails(map[string]any{"equipment_id": c.ID})
		}
		return types.NewAppError(types.ErrCodeConfigInvalidWindow, err.Error(), err).
			WithDetails(map[string]any{"equipment_id": c.ID})
	}

	if c.ID == "" {
		return types.NewAppError(types.ErrCodeConfigMissingChannel, "equipment id is required", nil)
	}
	if _, err := evaluate.ParseSelection(c.Sensitivity); err != nil {
		return wrap(err)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return wrap(err)
	}
	if len(c.Diagnostics) == 0 {
		return wrap(types.NewAppError(types.ErrCodeConfigUnknownDiagnostic, "no diagnostics configured", nil))
	}

	windowed := false
	for _, name := range c.Diagnostics {
		switch name {
		case NameStaticPressure:
			windowed = true
			if err := c.StaticPressureCorrection.Validate(); err != nil {
				return wrap(err)
			}
			if c.FanSpeedMin >= c.FanSpeedMax {
				return wrap(types.NewAppError(types.ErrCodeConfigInvalidBounds,
					fmt.Sprintf("fan speed bounds must satisfy min < max, got [%v, %v]", c.FanSpeedMin, c.FanSpeedMax), nil))
			}
		case NameSupplyTemperature:
			windowed = true
			if err := c.SupplyTemperatureCorrection.Validate(); err != nil {
				return wrap(err)
			}
		case NameCycling:
			if err := c.CycleConfig().Validate(); err != nil {
				return wrap(err)
			}
		default:
			return wrap(types.NewAppError(types.ErrCodeConfigUnknownDiagnostic,
				fmt.Sprintf("unknown diagnostic %q", name), nil))
		}
	}
	if windowed {
		if err := c.Gate().Validate(); err != nil {
			return wrap(err)
		}
	}
	return nil
}
