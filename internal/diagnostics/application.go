package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aircx/internal/evaluate"
	"aircx/internal/results"
	"aircx/internal/types"
	"aircx/internal/window"
)

const reasonUnitOff = "unit_off"

// Application runs the configured diagnostics for one equipment unit. It owns
// the analysis window, the prerequisite tracker and the cycle detector; none
// of them are shared with other units. Process is not safe for concurrent
// use: each unit is driven by exactly one pipeline slot.
type Application struct {
	id     string
	table  string
	sink   results.Sink
	logger *slog.Logger

	gate        window.GateConfig
	tiers       evaluate.TierSet
	window      *window.Window
	prereq      *window.PrereqTracker
	diagnostics []Diagnostic
	cycling     *Cycling

	lastSeen time.Time
}

// New builds an Application from a validated equipment definition.
func New(cfg EquipmentConfig, sink results.Sink, logger *slog.Logger) (*Application, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	sel, err := evaluate.ParseSelection(cfg.Sensitivity)
	if err != nil {
		return nil, err
	}
	tiers, err := evaluate.DeriveTiers(cfg.Thresholds, sel)
	if err != nil {
		return nil, err
	}

	app := &Application{
		id:     cfg.ID,
		table:  cfg.Table,
		sink:   sink,
		logger: logger.With("equipment_id", cfg.ID),
		gate:   cfg.Gate(),
		tiers:  tiers,
		window: window.New(),
		prereq: window.NewPrereqTracker(cfg.PrereqTimeout),
	}
	for _, name := range cfg.Diagnostics {
		switch name {
		case NameStaticPressure:
			app.diagnostics = append(app.diagnostics, NewStaticPressure(tiers, StaticPressureOptions{
				Correction:  cfg.StaticPressureCorrection,
				FanSpeedMax: cfg.FanSpeedMax,
				FanSpeedMin: cfg.FanSpeedMin,
			}))
		case NameSupplyTemperature:
			app.diagnostics = append(app.diagnostics, NewSupplyTemperature(tiers, cfg.SupplyTemperatureCorrection))
		case NameCycling:
			c, err := NewCycling(tiers, cfg.Cycling.Channel, cfg.Cycling.SetpointChannel, cfg.CycleConfig())
			if err != nil {
				return nil, err
			}
			app.cycling = c
		}
	}
	app.logger.Info("diagnostic application ready",
		"diagnostics", cfg.Diagnostics,
		"sensitivity", cfg.Sensitivity,
		"min_samples", cfg.Window.MinSamples,
	)
	return app, nil
}

// ID returns the equipment identifier.
func (a *Application) ID() string { return a.id }

// Buffered returns the number of samples in the open window.
func (a *Application) Buffered() int { return a.window.Len() }

// Process feeds one sample set through the unit-off check, the cycle
// detector and the window gate. Every call writes at least one entry to the
// sink. Returned errors come from the sink only; data conditions surface as
// verdicts or log entries.
func (a *Application) Process(ctx context.Context, set types.SampleSet) error {
	ctx = types.WithEquipmentID(ctx, a.id)
	ts := set.Timestamp

	if !a.lastSeen.IsZero() && ts.Before(a.lastSeen) {
		a.sink.Log(ctx, slog.LevelWarn, "out-of-order sample dropped",
			"timestamp", ts, "last_timestamp", a.lastSeen)
		return nil
	}
	a.lastSeen = ts

	if !running(set) {
		return a.unitOff(ctx, ts)
	}
	a.prereq.Clear(reasonUnitOff)

	var errs []error
	wrote := false
	if a.cycling != nil {
		if last, ok := a.cycling.LastTimestamp(); ok && !window.CheckContinuity(ts, []time.Time{last}) {
			a.sink.Log(ctx, slog.LevelWarn, "discontinuous input; cycle detector reset",
				"timestamp", ts, "last_timestamp", last)
			a.cycling.Reset()
		}
		if out, at, ok := a.cycling.Observe(set); ok {
			errs = append(errs, a.write(ctx, at, out))
			wrote = true
		}
	}

	if len(a.diagnostics) == 0 {
		if !wrote {
			a.sink.Log(ctx, slog.LevelDebug, "sample observed", "timestamp", ts)
		}
		return errors.Join(errs...)
	}

	buffered := a.window.Timestamps()
	if !window.CheckContinuity(ts, buffered) {
		a.sink.Log(ctx, slog.LevelWarn, "discontinuous input; window discarded",
			"timestamp", ts, "discarded", len(buffered))
		a.window.Reset()
		a.window.Accept(set)
		return errors.Join(errs...)
	}

	switch status := window.CheckRunStatus(buffered, ts, a.gate); status {
	case window.Ready:
		at := buffered[len(buffered)-1]
		for _, d := range a.diagnostics {
			errs = append(errs, a.write(ctx, at, d.Evaluate(a.window)))
		}
		a.sink.Log(ctx, slog.LevelInfo, "window evaluated", "samples", len(buffered),
			"start", buffered[0], "end", at)
		a.window.Reset()
	case window.InsufficientData:
		at := buffered[len(buffered)-1]
		for _, d := range a.diagnostics {
			errs = append(errs, a.write(ctx, at, d.Insufficient()))
		}
		a.sink.Log(ctx, slog.LevelInfo, "window closed with insufficient data",
			"samples", len(buffered), "required", a.gate.MinSamples)
		a.window.Reset()
	default:
		a.sink.Log(ctx, slog.LevelDebug, "sample accepted", "timestamp", ts, "buffered", len(buffered)+1)
	}
	a.window.Accept(set)
	return errors.Join(errs...)
}

// unitOff handles a sample taken while the unit is not running. The window
// keeps its samples until the condition persists for the configured number of
// samples; then it is discarded and one WHITE row per diagnostic is written,
// once per off period.
func (a *Application) unitOff(ctx context.Context, ts time.Time) error {
	persistent, first := a.prereq.Fail(reasonUnitOff)
	if !first {
		a.sink.Log(ctx, slog.LevelDebug, "unit not running; sample skipped",
			"timestamp", ts, "consecutive", a.prereq.Count(reasonUnitOff), "persistent", persistent)
		return nil
	}

	a.window.Reset()
	var outs []Outcome
	for _, d := range a.diagnostics {
		outs = append(outs, d.UnitOff())
	}
	if a.cycling != nil {
		a.cycling.Reset()
		outs = append(outs, a.cycling.UnitOff())
	}
	var errs []error
	for _, out := range outs {
		errs = append(errs, a.write(ctx, ts, out))
	}
	a.sink.Log(ctx, slog.LevelInfo, "unit not running; window discarded",
		"timestamp", ts, "consecutive", a.prereq.Count(reasonUnitOff))
	return errors.Join(errs...)
}

// write stores the outcome's rows and issues its commands.
func (a *Application) write(ctx context.Context, at time.Time, out Outcome) error {
	var errs []error
	for _, row := range results.RowsFromVerdicts(a.id, at, out.Verdicts) {
		if err := a.sink.InsertTableRow(ctx, a.table, row); err != nil {
			errs = append(errs, err)
		}
	}
	for _, cmd := range out.Commands {
		if err := a.sink.Command(ctx, cmd.Channel, cmd.Value); err != nil {
			errs = append(errs, fmt.Errorf("command %s: %w", cmd.Channel, err))
		}
	}
	return errors.Join(errs...)
}

// running reports whether the unit is on. The supply fan status decides when
// present, then the fan speed; with neither the unit is assumed to run.
func running(set types.SampleSet) bool {
	if v, ok := set.Average(types.ChannelFanStatus); ok {
		return v > 0
	}
	if v, ok := set.Average(types.ChannelFanSpeed); ok {
		return v > 0
	}
	return true
}
