package decoder

import (
	"math"
	"sync"
)

// PositionScale is the fixed-point scale of fractional playback position:
// fpos ranges over [0, PositionScale) between consecutive input samples.
const PositionScale = 16384

// InterpTaps is the width of the polyphase resampling kernel.
const InterpTaps = 8

// InverseFilterLen is the length of the symmetric FIR prefilter sampleprep
// runs over a recording before building its polyphase-ready data, undoing
// the implicit lowpass SMPL_INTERP introduces, so that decoding at unity
// rate reproduces the original signal. Latency is (InverseFilterLen-1)/2.
const InverseFilterLen = 191

var (
	interpOnce  sync.Once
	interpTable [PositionScale][InterpTaps]float32
)

// smplInterp lazily builds and returns the polyphase interpolation table:
// for each of PositionScale fractional positions, the InterpTaps-tap
// windowed-sinc kernel used to interpolate at that offset between samples.
//
// The original ships this as a precomputed data table (see
// interpdata_initpf.c, which only builds the *prefilter* kernel from it);
// the table itself is generated offline by a tool not present in the
// reference sources. This port regenerates an equivalent table at process
// start from a Kaiser-windowed sinc design, which is the standard technique
// for this exact job (fixed small tap count, many phases) and gives
// numerically well-behaved coefficients without needing the original's raw
// data dump.
func smplInterp() *[PositionScale][InterpTaps]float32 {
	interpOnce.Do(func() {
		const beta = 7.857 // Kaiser window, roughly -80dB stopband
		i0beta := besselI0(beta)
		half := InterpTaps / 2
		for phase := 0; phase < PositionScale; phase++ {
			frac := float64(phase) / PositionScale
			var sum float64
			var taps [InterpTaps]float64
			for t := 0; t < InterpTaps; t++ {
				x := float64(t-half+1) - frac
				taps[t] = sinc(x) * kaiser(x, float64(half), beta, i0beta)
				sum += taps[t]
			}
			for t := 0; t < InterpTaps; t++ {
				interpTable[phase][t] = float32(taps[t] / sum)
			}
		}
	})
	return &interpTable
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func kaiser(x, halfWidth, beta, i0beta float64) float64 {
	r := x / halfWidth
	if r < -1 || r > 1 {
		return 0
	}
	return besselI0(beta*math.Sqrt(1-r*r)) / i0beta
}

func besselI0(x float64) float64 {
	// Series expansion; 20 terms is comfortably converged for our beta range.
	sum := 1.0
	term := 1.0
	halfX := x / 2
	for k := 1; k < 20; k++ {
		term *= (halfX * halfX) / float64(k*k)
		sum += term
	}
	return sum
}
