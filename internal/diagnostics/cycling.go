package diagnostics

import (
	"fmt"
	"time"

	"aircx/internal/cycle"
	"aircx/internal/evaluate"
	"aircx/internal/types"
)

// Result codes of the cycling diagnostic.
const (
	CyclingNormal       = 60.0
	CyclingExcessive    = 61.1
	CyclingInconclusive = 62.2
	CyclingNone         = 63.0
)

const cyclingRule = "Compressor Cycling"

// Cycling watches one raw channel, typically zone temperature, and reports
// on/off cycling once per check interval. It is fed every running sample,
// independently of the analysis window.
type Cycling struct {
	tiers    evaluate.TierSet
	channel  types.Channel
	setpoint types.Channel
	detector *cycle.Detector
}

// NewCycling builds the diagnostic for a value channel and its optional
// setpoint channel.
func NewCycling(tiers evaluate.TierSet, channel, setpoint types.Channel, cfg cycle.Config) (*Cycling, error) {
	d, err := cycle.NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	return &Cycling{tiers: tiers, channel: channel, setpoint: setpoint, detector: d}, nil
}

// Name returns the configuration name of the diagnostic.
func (c *Cycling) Name() string { return NameCycling }

// Observe feeds one sample. ok is true when a check interval closed and out
// holds its verdicts. Samples without a reading on the channel are ignored.
func (c *Cycling) Observe(set types.SampleSet) (out Outcome, at time.Time, ok bool) {
	v, has := set.Average(c.channel)
	if !has {
		return Outcome{}, time.Time{}, false
	}
	p := cycle.Point{Timestamp: set.Timestamp, Value: v}
	if c.setpoint != "" {
		p.Setpoint, p.HasSetpoint = set.Average(c.setpoint)
	}
	rep, ready := c.detector.Add(p)
	if !ready {
		return Outcome{}, time.Time{}, false
	}
	at = rep.End
	if at.IsZero() {
		at = set.Timestamp
	}
	return c.verdicts(rep), at, true
}

// LastTimestamp returns the time of the newest sample the detector holds.
func (c *Cycling) LastTimestamp() (time.Time, bool) {
	return c.detector.LastTimestamp()
}

// Reset drops the detector's buffer and carried state.
func (c *Cycling) Reset() {
	c.detector.Reset()
}

// UnitOff reports the unit as not running.
func (c *Cycling) UnitOff() Outcome {
	return unitOff(cyclingRule, c.tiers)
}

func (c *Cycling) verdicts(rep cycle.Report) Outcome {
	out := Outcome{}
	rate := rep.CyclesPerHour()
	for _, tier := range c.tiers.Active() {
		var code float64
		var msg string
		switch rep.State {
		case cycle.Inconclusive:
			code = CyclingInconclusive
			msg = "Not enough peaks and valleys were found to evaluate cycling; insufficient data."
		case cycle.NoCycling:
			code = CyclingNone
			msg = "No cycling detected; the unit stayed on the same side of its set point for the whole interval."
		default:
			limit := c.tiers.For(tier).MaxCyclesPerHour
			if rate > limit {
				code = CyclingExcessive
				msg = fmt.Sprintf("Excessive cycling detected: %.1f cycles per hour (limit %.1f).", rate, limit)
			} else {
				code = CyclingNormal
				msg = fmt.Sprintf("No excessive cycling detected: %.1f cycles per hour (limit %.1f).", rate, limit)
			}
		}
		out.Verdicts = append(out.Verdicts, types.NewVerdict(cyclingRule, tier, code, msg))
	}
	return out
}
