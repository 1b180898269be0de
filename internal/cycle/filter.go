package cycle

import (
	"errors"
	"math"
)

var (
	// ErrFilterTooShort is returned when the series is too short to pad for a
	// zero-phase pass.
	ErrFilterTooShort = errors.New("cycle: series too short to filter")
	// ErrFilterUnstable is returned for an invalid cutoff or a non-finite
	// result.
	ErrFilterUnstable = errors.New("cycle: filter produced non-finite output")
)

// padLen is the odd-extension length on each side, three times the filter
// order plus one.
const padLen = 9

// biquad holds second-order coefficients normalized so a0 == 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// butterworth designs a 2nd-order low-pass for a cutoff expressed as a
// fraction of the Nyquist frequency, via the bilinear transform.
func butterworth(cutoff float64) (biquad, error) {
	if !(cutoff > 0 && cutoff < 1) {
		return biquad{}, ErrFilterUnstable
	}
	k := math.Tan(math.Pi * cutoff / 2)
	k2 := k * k
	norm := 1 / (1 + math.Sqrt2*k + k2)
	b0 := k2 * norm
	return biquad{
		b0: b0,
		b1: 2 * b0,
		b2: b0,
		a1: 2 * (k2 - 1) * norm,
		a2: (1 - math.Sqrt2*k + k2) * norm,
	}, nil
}

// run filters xs in place (transposed direct form II), starting from the
// steady state for a constant input equal to xs[0].
func (f biquad) run(xs []float64) {
	if len(xs) == 0 {
		return
	}
	x0 := xs[0]
	z2 := (f.b2 - f.a2) * x0
	z1 := (f.b1-f.a1)*x0 + z2
	for i, x := range xs {
		y := f.b0*x + z1
		z1 = f.b1*x - f.a1*y + z2
		z2 = f.b2*x - f.a2*y
		xs[i] = y
	}
}

// LowPass applies a zero-phase (forward and backward) 2nd-order Butterworth
// low-pass to xs. cutoff is normalized to the Nyquist frequency, in (0, 1).
// The input is left untouched; callers fall back to it on error.
func LowPass(xs []float64, cutoff float64) ([]float64, error) {
	f, err := butterworth(cutoff)
	if err != nil {
		return nil, err
	}
	n := len(xs)
	if n <= padLen {
		return nil, ErrFilterTooShort
	}

	// Odd extension around both endpoints limits edge transients.
	ext := make([]float64, n+2*padLen)
	for i := 0; i < padLen; i++ {
		ext[i] = 2*xs[0] - xs[padLen-i]
		ext[n+padLen+i] = 2*xs[n-1] - xs[n-2-i]
	}
	copy(ext[padLen:], xs)

	f.run(ext)
	reverse(ext)
	f.run(ext)
	reverse(ext)

	out := ext[padLen : padLen+n]
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrFilterUnstable
		}
	}
	return out, nil
}

func reverse(xs []float64) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
