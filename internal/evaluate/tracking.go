package evaluate

import (
	"fmt"

	"aircx/internal/types"
	"aircx/internal/window"
)

// Result code offsets for setpoint tracking rules.
const (
	TrackingOK           = 0.0
	TrackingFault        = 1.1
	TrackingNoSetpoint   = 2.2
	TrackingInsufficient = 3.2
)

// Tracking checks that a measured value follows its setpoint: the mean
// absolute deviation, as a percentage of the mean setpoint, must stay within
// each tier's SetpointDeviationPct.
type Tracking struct {
	Name     string
	Label    string
	CodeBase float64
	Setpoint types.Channel
	Measured types.Channel
}

// Evaluate produces one verdict per active tier.
func (r Tracking) Evaluate(w *window.Window, tiers TierSet) []types.Verdict {
	if len(w.Averages(r.Setpoint)) == 0 {
		return r.all(tiers, TrackingNoSetpoint,
			fmt.Sprintf("%s set point data is not available; set point tracking was not evaluated.", r.Label))
	}
	sp, measured := w.Paired(r.Setpoint, r.Measured)
	deviation, okDev := meanAbsDiff(sp, measured)
	spMean, okMean := mean(sp)
	if !okDev || !okMean || spMean == 0 {
		return r.all(tiers, TrackingNoSetpoint,
			fmt.Sprintf("%s readings do not overlap a usable set point; set point tracking was not evaluated.", r.Label))
	}
	pctDev := deviation / spMean * 100
	if pctDev < 0 {
		pctDev = -pctDev
	}

	out := make([]types.Verdict, 0, len(tiers.Active()))
	for _, tier := range tiers.Active() {
		thr := tiers.For(tier).SetpointDeviationPct
		if pctDev > thr {
			out = append(out, types.NewVerdict(r.Name, tier, r.CodeBase+TrackingFault,
				fmt.Sprintf("%s is deviating from its set point by %.1f%% (limit %.1f%%).", r.Label, pctDev, thr)))
			continue
		}
		out = append(out, types.NewVerdict(r.Name, tier, r.CodeBase+TrackingOK,
			fmt.Sprintf("No problem detected with %s set point control.", lower(r.Label))))
	}
	return out
}

// Insufficient produces the verdicts for a window closed with too few samples.
func (r Tracking) Insufficient(tiers TierSet) []types.Verdict {
	return r.all(tiers, TrackingInsufficient,
		fmt.Sprintf("Insufficient data to evaluate %s set point tracking.", lower(r.Label)))
}

func (r Tracking) all(tiers TierSet, offset float64, msg string) []types.Verdict {
	out := make([]types.Verdict, 0, len(tiers.Active()))
	for _, tier := range tiers.Active() {
		out = append(out, types.NewVerdict(r.Name, tier, r.CodeBase+offset, msg))
	}
	return out
}
