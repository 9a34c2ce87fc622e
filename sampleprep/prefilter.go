package sampleprep

import (
	"math"
	"sync"

	"github.com/cbegin/organsampler/decoder"
	"github.com/cbegin/organsampler/fastconv"
	"github.com/cbegin/organsampler/odfilter"
)

// releaseSlop is wavldr.c's 32-sample slop, the silence the original
// appends to a release so its fake loop has somewhere to sit. Nothing in
// this package uses it: Pack quantizes each release as recorded, with no
// trailing silence and an empty loop table.
const releaseSlop = 32

var (
	inverseKernelOnce sync.Once
	inverseKernel     [decoder.InverseFilterLen]float32
)

// halfSamplePhaseKernel reproduces decoder.smplInterp's design (a
// Kaiser-windowed sinc) at exactly the half-sample offset, the phase with
// the worst high-frequency roll-off of any resampling position. This is
// the response designInverseKernel compensates for.
func halfSamplePhaseKernel() [decoder.InterpTaps]float64 {
	const beta = 7.857
	i0beta := besselI0(beta)
	half := decoder.InterpTaps / 2
	var taps [decoder.InterpTaps]float64
	var sum float64
	for t := 0; t < decoder.InterpTaps; t++ {
		x := float64(t-half+1) - 0.5
		s := sinc(x)
		r := x / float64(half)
		var k float64
		if r >= -1 && r <= 1 {
			k = besselI0(beta*math.Sqrt(1-r*r)) / i0beta
		}
		taps[t] = s * k
		sum += taps[t]
	}
	for t := range taps {
		taps[t] /= sum
	}
	return taps
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func besselI0(x float64) float64 {
	sum, term, halfX := 1.0, 1.0, x/2
	for k := 1; k < 20; k++ {
		term *= (halfX * halfX) / float64(k*k)
		sum += term
	}
	return sum
}

// designInverseKernel builds the prefilter's tap coefficients by frequency
// sampling: take the worst-case-phase interpolation response, invert its
// magnitude spectrum (clamped so a near-zero response doesn't blow up near
// Nyquist), and window the result down to InverseFilterLen taps.
//
// The original ships this as a precomputed SMPL_INVERSE_COEFS data table
// (see interpdata_initpf.c, which only ever consumes it, never builds it);
// this is a principled substitute using a standard frequency-sampling FIR
// design, the same approach taken for decoder.smplInterp.
func designInverseKernel() [decoder.InverseFilterLen]float32 {
	const n = 512
	worstPhase := halfSamplePhaseKernel()

	resp := make([]float64, n)
	for k := 0; k < n; k++ {
		var re, im float64
		for t, c := range worstPhase {
			angle := -2 * math.Pi * float64(k) * float64(t) / n
			re += c * math.Cos(angle)
			im += c * math.Sin(angle)
		}
		resp[k] = math.Hypot(re, im)
	}

	const clampFloor = 0.08
	inv := make([]float64, n)
	for k, r := range resp {
		if r < clampFloor {
			r = clampFloor
		}
		inv[k] = 1.0 / r
	}

	half := decoder.InverseFilterLen / 2
	var kernel [decoder.InverseFilterLen]float32
	for t := 0; t < decoder.InverseFilterLen; t++ {
		shift := t - half
		var acc float64
		for k := 0; k < n; k++ {
			angle := 2 * math.Pi * float64(k) * float64(shift) / n
			acc += inv[k] * math.Cos(angle)
		}
		acc /= n
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(t)/float64(decoder.InverseFilterLen-1))
		kernel[t] = float32(acc * w)
	}
	return kernel
}

func inversePrefilterKernel() *[decoder.InverseFilterLen]float32 {
	inverseKernelOnce.Do(func() {
		inverseKernel = designInverseKernel()
	})
	return &inverseKernel
}

// PrefilterSet is the shared, once-built odfilter.Filter for the
// InverseFilterLen-tap compensation kernel, plus the fastconv.FFTSet it was
// built from — kept so every LoaderPool worker can build its own
// odfilter.Temporaries against the same Filter, per odfilter's documented
// one-Temporaries-per-goroutine requirement.
type PrefilterSet struct {
	FFT    *fastconv.FFTSet
	Filter *odfilter.Filter
}

// NewPrefilterSet folds the inverse-filter taps into an odfilter kernel
// exactly as odfilter_interp_prefilter_init does.
func NewPrefilterSet() (*PrefilterSet, error) {
	fs := fastconv.NewFFTSet()
	filt, err := odfilter.NewFilter(fs, decoder.InverseFilterLen)
	if err != nil {
		return nil, err
	}
	tmps := odfilter.NewTemporaries(filt)
	kernel := inversePrefilterKernel()
	buf := make([]float32, decoder.InverseFilterLen)
	copy(buf, kernel[:])
	filt.BuildConv(tmps, decoder.InverseFilterLen, buf, 1.0)
	return &PrefilterSet{FFT: fs, Filter: filt}, nil
}

// Prefilter convolves every channel of an attack/sustain segment (looped,
// phase-aligned, per apply_prefilter) and every release (non-looped, with
// InverseFilterLen/8 extra samples shaved off the pre-ring), returning a
// new RawIngest with filtered data in place of raw.
func Prefilter(ps *PrefilterSet, raw *RawIngest) *RawIngest {
	tmps := odfilter.NewTemporaries(ps.Filter)
	preRead := uint((decoder.InverseFilterLen - 1) / 2)

	out := *raw
	out.Attack = make([][]float32, raw.Channels)
	for ch := range out.Attack {
		in := raw.Attack[ch]
		filtered := make([]float32, len(in))
		odfilter.Run(in, filtered, false, uint64(raw.SustainStart), uint64(len(in)), preRead, true, tmps, ps.Filter)
		out.Attack[ch] = filtered
	}

	relPreRead := preRead + uint(decoder.InverseFilterLen/8)
	out.Releases = make([][][]float32, len(raw.Releases))
	for i, rel := range raw.Releases {
		outRel := make([][]float32, raw.Channels)
		for ch := range outRel {
			in := rel[ch]
			filtered := make([]float32, len(in))
			odfilter.Run(in, filtered, false, 0, uint64(len(in)), relPreRead, false, tmps, ps.Filter)
			outRel[ch] = filtered
		}
		out.Releases[i] = outRel
	}
	return &out
}
