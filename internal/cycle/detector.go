package cycle

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"aircx/internal/types"
)

// State is the outcome class of one check interval.
type State int

const (
	// Inconclusive means too few aligned extrema (or samples) were found to
	// say anything about cycling.
	Inconclusive State = iota
	// NoCycling means the series stayed on one side of the setpoint for the
	// whole interval.
	NoCycling
	// Cycling means at least one transition was observed.
	Cycling
)

func (s State) String() string {
	switch s {
	case Inconclusive:
		return "inconclusive"
	case NoCycling:
		return "no_cycling"
	case Cycling:
		return "cycling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config parameterizes a Detector. Filter and spacing parameters are given in
// time units and converted to samples using the median sampling step of each
// interval, so one configuration serves any sampling rate.
type Config struct {
	// CheckInterval is the span between reports.
	CheckInterval time.Duration `json:"check_interval" validate:"gt=0"`
	// CutoffPeriod is the shortest period the low-pass filter keeps. When it
	// is less than two sampling steps the raw series is used unfiltered.
	CutoffPeriod time.Duration `json:"cutoff_period" validate:"gt=0"`
	// MinPeakSpacing is the minimum time between two kept peaks (or valleys).
	// Extrema closer than this to either end of the buffer are ignored.
	MinPeakSpacing time.Duration `json:"min_peak_spacing" validate:"gt=0"`
	// MinCycleDuration deletes peak/valley pairs closer than this and merges
	// setpoint crossings that reverse within it.
	MinCycleDuration time.Duration `json:"min_cycle_duration" validate:"gte=0"`
	// MinSwingFraction drops adjacent peak/valley pairs whose filtered swing
	// is below this fraction of the filtered range.
	MinSwingFraction float64 `json:"min_swing_fraction" validate:"gte=0,lt=1"`
	// MinPeaks is the number of aligned peaks and valleys required for a
	// conclusive report.
	MinPeaks int `json:"min_peaks" validate:"gte=1"`
	// Capacity bounds the buffer.
	Capacity int `json:"capacity" validate:"gte=0"`
}

// DefaultConfig returns the parameters used for hourly checks.
func DefaultConfig() Config {
	return Config{
		CheckInterval:    time.Hour,
		CutoffPeriod:     6 * time.Minute,
		MinPeakSpacing:   3 * time.Minute,
		MinCycleDuration: 2 * time.Minute,
		MinSwingFraction: 0.2,
		MinPeaks:         2,
	}
}

// Validate rejects parameters the detector cannot work with.
func (c Config) Validate() error {
	switch {
	case c.CheckInterval <= 0:
		return types.NewAppError(types.ErrCodeConfigInvalidWindow, "cycle check interval must be positive", nil)
	case c.CutoffPeriod <= 0:
		return types.NewAppError(types.ErrCodeConfigInvalidThresholds,
			fmt.Sprintf("cycle filter cutoff period must be positive, got %v", c.CutoffPeriod), nil)
	case c.MinPeakSpacing <= 0:
		return types.NewAppError(types.ErrCodeConfigInvalidThresholds, "min peak spacing must be positive", nil)
	case c.MinCycleDuration < 0:
		return types.NewAppError(types.ErrCodeConfigInvalidThresholds, "min cycle duration must not be negative", nil)
	case !(c.MinSwingFraction >= 0 && c.MinSwingFraction < 1):
		return types.NewAppError(types.ErrCodeConfigInvalidThresholds,
			fmt.Sprintf("min swing fraction must be in [0, 1), got %v", c.MinSwingFraction), nil)
	case c.MinPeaks < 1:
		return types.NewAppError(types.ErrCodeConfigInvalidThresholds, "min peaks must be at least 1", nil)
	}
	return nil
}

// Report summarizes one check interval.
type Report struct {
	Start           time.Time
	End             time.Time
	Interval        time.Duration
	State           State
	OnCycles        int
	OffCycles       int
	MeanOnDuration  time.Duration
	MeanOffDuration time.Duration
	// Setpoint is the mean observed setpoint, or the mean synthetic midpoint
	// between aligned peaks and valleys when none is published.
	Setpoint  float64
	Synthetic bool
	Peaks     int
	Valleys   int
	// Filtered is false when peak detection fell back to the raw series.
	Filtered bool
}

// CyclesPerHour is the on-cycle rate over the check interval.
func (r Report) CyclesPerHour() float64 {
	if r.Interval <= 0 {
		return 0
	}
	return float64(r.OnCycles) / r.Interval.Hours()
}

// Detector consumes one raw series for one equipment unit and emits a Report
// once per check interval. It is not safe for concurrent use.
type Detector struct {
	cfg Config
	buf *Buffer

	started       bool
	intervalStart time.Time

	// Carried across intervals: the end of the last reported range and the
	// state and start of the run that was open at that point. lastRunKnown is
	// false while that run began before the first report.
	reported     bool
	reportEnd    time.Time
	lastOn       bool
	lastRunAt    time.Time
	lastRunKnown bool
}

// NewDetector validates cfg and returns an empty detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	capacity := cfg.Capacity
	if capacity == 0 {
		// One sample per second over two intervals.
		capacity = int(2 * cfg.CheckInterval / time.Second)
	}
	return &Detector{cfg: cfg, buf: NewBuffer(capacity)}, nil
}

// Add feeds one sample. When p arrives at least one check interval after the
// current interval started, the buffered samples including p are reported and
// only the last quarter of the interval is retained.
func (d *Detector) Add(p Point) (Report, bool) {
	if !d.started {
		d.started = true
		d.intervalStart = p.Timestamp
	}
	d.buf.Push(p)
	if p.Timestamp.Sub(d.intervalStart) < d.cfg.CheckInterval {
		return Report{}, false
	}
	rep := d.report()
	d.intervalStart = p.Timestamp
	d.buf.RetainSince(p.Timestamp.Add(-d.cfg.CheckInterval / 4))
	return rep, true
}

// LastTimestamp returns the time of the newest buffered sample.
func (d *Detector) LastTimestamp() (time.Time, bool) {
	p, ok := d.buf.Last()
	return p.Timestamp, ok
}

// Reset forgets all buffered samples and carried state.
func (d *Detector) Reset() {
	d.buf.Reset()
	*d = Detector{cfg: d.cfg, buf: d.buf}
}

func (d *Detector) report() Report {
	points := d.buf.Points()
	rep := Report{Interval: d.cfg.CheckInterval, Start: d.intervalStart}
	if len(points) == 0 {
		return rep
	}
	rep.End = points[len(points)-1].Timestamp

	values := make([]float64, len(points))
	times := make([]time.Time, len(points))
	var observed []float64
	for i, p := range points {
		values[i] = p.Value
		times[i] = p.Timestamp
		if p.HasSetpoint {
			observed = append(observed, p.Setpoint)
		}
	}

	step := medianStep(times)
	series, err := LowPass(values, d.cutoff(step))
	rep.Filtered = err == nil
	if err != nil {
		series = values
	}
	dist := d.spacing(step)
	peaks, valleys, ok := Align(values, times,
		trimEdges(FindPeaks(series, dist), len(series), dist),
		trimEdges(FindValleys(series, dist), len(series), dist),
		d.cfg.MinCycleDuration)
	if ok {
		peaks, valleys = pruneSwings(series, peaks, valleys, d.cfg.MinSwingFraction)
		rep.Peaks, rep.Valleys = len(peaks), len(valleys)
	}
	enough := ok && len(peaks) >= d.cfg.MinPeaks && len(valleys) >= d.cfg.MinPeaks

	var setpoints []float64
	switch {
	case len(observed) == len(points):
		setpoints = make([]float64, len(points))
		for i, p := range points {
			setpoints[i] = p.Setpoint
		}
		rep.Setpoint = stat.Mean(setpoints, nil)
	case enough:
		var mids []float64
		setpoints, mids = synthesize(values, peaks, valleys)
		rep.Setpoint = stat.Mean(mids, nil)
		rep.Synthetic = true
	default:
		return rep
	}

	status := make([]bool, len(points))
	for i := range points {
		status[i] = values[i] > setpoints[i]
	}
	d.summarize(&rep, times, status)
	if rep.State == Cycling && !enough {
		rep.State = Inconclusive
	}
	return rep
}

// synthesize builds a setpoint series from the midpoints of aligned
// peak/valley pairs. Each midpoint holds from its pair's first extremum until
// the next pair; samples before the first pair take the first midpoint.
func synthesize(values []float64, peaks, valleys []int) (series, mids []float64) {
	type pair struct {
		at  int
		mid float64
	}
	pairs := make([]pair, len(peaks))
	for i := range peaks {
		pairs[i] = pair{at: min(peaks[i], valleys[i]), mid: (values[peaks[i]] + values[valleys[i]]) / 2}
		mids = append(mids, pairs[i].mid)
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].at < pairs[b].at })

	series = make([]float64, len(values))
	k := 0
	for i := range values {
		for k+1 < len(pairs) && pairs[k+1].at <= i {
			k++
		}
		series[i] = pairs[k].mid
	}
	return series, mids
}

// cutoff converts CutoffPeriod to a fraction of the Nyquist frequency at the
// given sampling step. It returns 0, which LowPass rejects, when the step is
// unknown.
func (d *Detector) cutoff(step time.Duration) float64 {
	if step <= 0 {
		return 0
	}
	return 2 * step.Seconds() / d.cfg.CutoffPeriod.Seconds()
}

// spacing converts MinPeakSpacing to a sample count at the given step.
func (d *Detector) spacing(step time.Duration) int {
	if step <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(d.cfg.MinPeakSpacing.Seconds()/step.Seconds())))
}

// trimEdges drops extrema within dist samples of either end, where the
// filter's edge transient and the cut-off neighbourhood make them unreliable.
func trimEdges(idx []int, n, dist int) []int {
	out := idx[:0:0]
	for _, i := range idx {
		if i >= dist && i <= n-1-dist {
			out = append(out, i)
		}
	}
	return out
}

// pruneSwings repeatedly removes the adjacent peak/valley pair with the
// smallest swing in series while that swing is below frac of the series
// range. Alternation and equal counts are preserved.
func pruneSwings(series []float64, peaks, valleys []int, frac float64) (keptPeaks, keptValleys []int) {
	if frac <= 0 || len(peaks) == 0 {
		return peaks, valleys
	}
	events := make([]extremum, 0, len(peaks)+len(valleys))
	for _, p := range peaks {
		events = append(events, extremum{index: p, peak: true})
	}
	for _, v := range valleys {
		events = append(events, extremum{index: v})
	}
	sort.Slice(events, func(a, b int) bool { return events[a].index < events[b].index })

	lo, hi := series[0], series[0]
	for _, v := range series {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	limit := frac * (hi - lo)

	for len(events) >= 2 {
		at, smallest := -1, math.Inf(1)
		for i := 0; i+1 < len(events); i++ {
			if sw := math.Abs(series[events[i].index] - series[events[i+1].index]); sw < smallest {
				at, smallest = i, sw
			}
		}
		if smallest >= limit {
			break
		}
		events = append(events[:at], events[at+2:]...)
	}

	for _, e := range events {
		if e.peak {
			keptPeaks = append(keptPeaks, e.index)
		} else {
			keptValleys = append(keptValleys, e.index)
		}
	}
	return keptPeaks, keptValleys
}

// summarize counts setpoint crossings after the previous report and measures
// the runs between them. A crossing that reverses within MinCycleDuration is
// chatter: both it and its reversal are ignored. The run open at the end of
// the interval is carried into the next report; it is counted when it starts
// and measured when it ends. In the first interval the run the data starts
// in is neither counted nor measured, since its start is unknown.
func (d *Detector) summarize(rep *Report, times []time.Time, status []bool) {
	n := len(times)
	first := 0
	if d.reported {
		for first < n && !times[first].After(d.reportEnd) {
			first++
		}
	}
	if first == n {
		rep.State = Inconclusive
		return
	}

	on, runStart, known := status[first], times[first], false
	if d.reported {
		on, runStart, known = d.lastOn, d.lastRunAt, d.lastRunKnown
	}

	var onDur, offDur []float64
	transitions := 0
	for i := first; i < n; {
		if status[i] == on {
			i++
			continue
		}
		j := i
		for j < n && status[j] == status[i] {
			j++
		}
		if j < n && times[j].Sub(times[i]) < d.cfg.MinCycleDuration {
			i = j
			continue
		}
		if known {
			secs := times[i].Sub(runStart).Seconds()
			if on {
				onDur = append(onDur, secs)
			} else {
				offDur = append(offDur, secs)
			}
		}
		on, runStart, known = status[i], times[i], true
		transitions++
		if on {
			rep.OnCycles++
		} else {
			rep.OffCycles++
		}
		i = j
	}
	rep.MeanOnDuration = meanDuration(onDur)
	rep.MeanOffDuration = meanDuration(offDur)

	if transitions > 0 {
		rep.State = Cycling
	} else {
		rep.State = NoCycling
	}

	d.reported = true
	d.reportEnd = times[n-1]
	d.lastOn = on
	d.lastRunAt = runStart
	d.lastRunKnown = known
}

func medianStep(times []time.Time) time.Duration {
	if len(times) < 2 {
		return 0
	}
	steps := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		steps[i-1] = times[i].Sub(times[i-1]).Seconds()
	}
	sort.Float64s(steps)
	return time.Duration(stat.Quantile(0.5, stat.Empirical, steps, nil) * float64(time.Second))
}

func meanDuration(secs []float64) time.Duration {
	if len(secs) == 0 {
		return 0
	}
	m := stat.Mean(secs, nil)
	if math.IsNaN(m) {
		return 0
	}
	return time.Duration(m * float64(time.Second))
}
