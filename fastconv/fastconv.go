// Package fastconv provides a radix-2 real-input DFT used for
// frequency-domain FIR filtering ("fast convolution").
//
// The transform packs a real length-N input into an N/2-point complex
// spectrum using a half-bin frequency offset (each bin sits at
// (k+0.5)/N cycles/sample rather than k/N), so no bin is purely real and
// every one of the N/2 bins can be pointwise-multiplied against a matching
// frequency-domain kernel without the usual DC/Nyquist special cases a
// plain real FFT has. Grounded on the opendiapason fastconv.c/h API:
// GetRealConv/ExecuteFwd/ExecuteFwdReord/ExecuteRevReord/ExecuteConv mirror
// fastconv_get_real_conv/fastconv_execute_fwd/_fwd_reord/_rev_reord/_conv.
package fastconv

import (
	"errors"
	"math"
	"sync"
)

// ErrOutOfMemory is the only failure mode this package exposes, per spec.
var ErrOutOfMemory = errors.New("fastconv: out of memory")

// lenMultiple is the vector width (4 lanes) times 8, the length granularity
// of the original's vectorized layout; recommended lengths are always a
// multiple of this.
const lenMultiple = 32

// VectorWidth is the single-precision lane width the spec's vectorized
// layout is expressed in.
const VectorWidth = 4

// RecommendLength returns the next length N >= kernelLen+maxBlockLen-1 that
// is safe to pass to GetRealConv: a power of two, and a multiple of 32.
// maxBlockLen of zero means "pick a sensible block size" (8x the kernel
// length, the point the original found to be a good performance tradeoff).
func RecommendLength(kernelLen, maxBlockLen int) int {
	target := 8 * kernelLen
	if maxBlockLen > target {
		target = maxBlockLen
	}
	minLen := kernelLen + target - 1
	units := (minLen + lenMultiple - 1) / lenMultiple
	return lenMultiple * roundUpPow2(units)
}

func roundUpPow2(min int) int {
	n := 1
	for n < min {
		n *= 2
	}
	return n
}

// FFTSet owns and caches Pass objects by transform length. A single FFTSet
// may be shared across threads: GetRealConv is idempotent and safe for
// concurrent callers, but as with the original, plan *creation* is
// serialized internally — reads of an already-built Pass need no lock.
type FFTSet struct {
	mu    sync.Mutex
	cache map[int]*Pass
}

// NewFFTSet creates an empty plan cache.
func NewFFTSet() *FFTSet {
	return &FFTSet{cache: make(map[int]*Pass)}
}

// GetRealConv returns the cached Pass for the given real transform length,
// building it on first use. n must be a power of two and a multiple of 32
// (as RecommendLength returns); anything else is a programmer error
// (panics), matching the spec's "unsupported lengths are a programmer
// error" contract.
func (fs *FFTSet) GetRealConv(n int) (*Pass, error) {
	if n <= 0 || n%lenMultiple != 0 || n&(n-1) != 0 {
		panic("fastconv: real length must be a power of two and a multiple of 32")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if p, ok := fs.cache[n]; ok {
		return p, nil
	}
	p, err := newPass(n)
	if err != nil {
		return nil, err
	}
	fs.cache[n] = p
	return p, nil
}

// Pass describes the execution of one fixed-length shifted real DFT.
// Immutable once built; twiddle tables are computed once here and reused by
// every ExecuteXxx call, as required by the spec's "FFT plan" data model.
type Pass struct {
	n int // real transform length (time-domain length, and inner complex FFT length)
	m int // n/2, number of complex output bins

	bitrev []int // bit-reversal permutation for the length-n complex FFT

	twR, twI []float64 // forward twiddle table, length n/2

	halfBinR, halfBinI []float64 // half-bin modulation w[i] = exp(-i*pi*i/n), length n

	natToVec []int // natural bin index -> vectorized/native storage slot
	vecToNat []int // inverse of natToVec
}

func newPass(n int) (*Pass, error) {
	if n > 1<<24 {
		// Guards against pathological lengths; this is the only situation
		// in which this package declines to allocate.
		return nil, ErrOutOfMemory
	}
	m := n / 2
	p := &Pass{
		n:        n,
		m:        m,
		bitrev:   make([]int, n),
		twR:      make([]float64, m),
		twI:      make([]float64, m),
		halfBinR: make([]float64, n),
		halfBinI: make([]float64, n),
		natToVec: make([]int, m),
		vecToNat: make([]int, m),
	}
	bits := 0
	for 1<<bits < n {
		bits++
	}
	for i := 0; i < n; i++ {
		p.bitrev[i] = reverseBits(i, bits)
	}
	for j := 0; j < m; j++ {
		theta := -2 * math.Pi * float64(j) / float64(n)
		p.twR[j] = math.Cos(theta)
		p.twI[j] = math.Sin(theta)
	}
	for i := 0; i < n; i++ {
		theta := -math.Pi * float64(i) / float64(n)
		p.halfBinR[i] = math.Cos(theta)
		p.halfBinI[i] = math.Sin(theta)
	}
	// Stride-4 "vectorized" layout: bins are stored as if produced by 4
	// interleaved SIMD lanes, so ExecuteFwd/ExecuteConv never need to
	// permute. Reord variants pay the cost of undoing this.
	group := m / VectorWidth
	if group == 0 {
		group = 1
	}
	for k := 0; k < m; k++ {
		g := k / VectorWidth
		r := k % VectorWidth
		pos := r*group + g
		if pos >= m {
			pos = k
		}
		p.natToVec[k] = pos
		p.vecToNat[pos] = k
	}
	return p, nil
}

func reverseBits(x, bits int) int {
	r := 0
	for i := 0; i < bits; i++ {
		r = (r << 1) | (x & 1)
		x >>= 1
	}
	return r
}

// fftInPlace runs an iterative radix-2 Cooley-Tukey complex DFT on data (len
// n, a power of two). It is unnormalized in both directions: forward
// computes sum x[n] exp(-2pi i k n/N); "inverse" (conjugated twiddles)
// computes sum X[k] exp(+2pi i k n /N), neither divided by N. This matches
// the spec's invariant that forward-then-inverse is the identity "up to
// 1/N scaling" — callers that want unity gain fold the compensating factor
// into a kernel instead (see odfilter's kernel builders).
func fftInPlace(re, im []float64, bitrev []int, twR, twI []float64, inverse bool) {
	n := len(re)
	for i, j := range bitrev {
		if j > i {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}
	for size := 2; size <= n; size *= 2 {
		half := size / 2
		step := n / size
		for start := 0; start < n; start += size {
			for j := 0; j < half; j++ {
				idx := j * step
				tr, ti := twR[idx], twI[idx]
				if inverse {
					ti = -ti
				}
				a := start + j
				b := a + half
				br, bi := re[b], im[b]
				xr := br*tr - bi*ti
				xi := br*ti + bi*tr
				re[b] = re[a] - xr
				im[b] = im[a] - xi
				re[a] = re[a] + xr
				im[a] = im[a] + xi
			}
		}
	}
}

// ExecuteFwd computes the forward shifted real DFT of in (length n) into out
// (length n: n/2 complex bins, interleaved real/imag) in the cheap
// vectorized/native bin order. Used by ExecuteConv and by kernel builders,
// which never need natural bin order.
func (p *Pass) ExecuteFwd(in, out []float32) {
	n, m := p.n, p.m
	re := make([]float64, n)
	im := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(in[i])
		re[i] = x * p.halfBinR[i]
		im[i] = x * p.halfBinI[i]
	}
	fftInPlace(re, im, p.bitrev, p.twR, p.twI, false)
	for k := 0; k < m; k++ {
		pos := p.natToVec[k]
		out[2*pos] = float32(re[k])
		out[2*pos+1] = float32(im[k])
	}
}

// ExecuteFwdReord is like ExecuteFwd but additionally reorders bins into
// natural (strictly increasing frequency) order for analysis callers.
func (p *Pass) ExecuteFwdReord(in, out, scratch []float32) {
	p.ExecuteFwd(in, scratch)
	m := p.m
	for pos := 0; pos < m; pos++ {
		k := p.vecToNat[pos]
		out[2*k] = scratch[2*pos]
		out[2*k+1] = scratch[2*pos+1]
	}
}

// executeInvNative runs the unnormalized inverse shifted DFT: spec is a
// vectorized-order complex spectrum (n/2 bins), out receives n real samples.
func (p *Pass) executeInvNative(spec, out []float32) {
	n, m := p.n, p.m
	re := make([]float64, n)
	im := make([]float64, n)
	for pos := 0; pos < m; pos++ {
		k := p.vecToNat[pos]
		re[k] = float64(spec[2*pos])
		im[k] = float64(spec[2*pos+1])
	}
	for k := 0; k < m; k++ {
		j := n - 1 - k
		re[j] = re[k]
		im[j] = -im[k]
	}
	fftInPlace(re, im, p.bitrev, p.twR, p.twI, true)
	for i := 0; i < n; i++ {
		wr, wi := p.halfBinR[i], p.halfBinI[i]
		// undo the forward half-bin modulation: multiply by conj(w[i])
		out[i] = float32(re[i]*wr + im[i]*wi)
	}
}

// ExecuteRevReord takes a natural-order complex spectrum (n/2 bins) and
// produces the n real time-domain samples it was (shifted-DFT) transformed
// from, paying the cost of un-reordering into vectorized layout first.
func (p *Pass) ExecuteRevReord(in, out, scratch []float32) {
	m := p.m
	for k := 0; k < m; k++ {
		pos := p.natToVec[k]
		scratch[2*pos] = in[2*k]
		scratch[2*pos+1] = in[2*k+1]
	}
	p.executeInvNative(scratch, out)
}

// ExecuteConv performs one partition of overlap-add convolution: forward
// transforms in (real, length n, cheap native order), pointwise-multiplies
// by kernel (already in native-order frequency domain, as produced by
// ExecuteFwd or one of odfilter's kernel builders), and inverse transforms
// the product into out (real, length n). No reordering is performed in
// either direction.
func (p *Pass) ExecuteConv(in, kernel, out, scratch []float32) {
	p.ExecuteFwd(in, scratch)
	m := p.m
	for i := 0; i < m; i++ {
		ar, ai := scratch[2*i], scratch[2*i+1]
		br, bi := kernel[2*i], kernel[2*i+1]
		scratch[2*i] = ar*br - ai*bi
		scratch[2*i+1] = ar*bi + ai*br
	}
	p.executeInvNative(scratch, out)
}

// N returns the transform length this pass was built for.
func (p *Pass) N() int { return p.n }

// ComplexBins returns n/2, the number of complex bins a spectrum buffer for
// this pass holds.
func (p *Pass) ComplexBins() int { return p.m }
