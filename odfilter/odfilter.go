// Package odfilter runs real-valued FIR convolutions via fastconv, in the
// particular ways applicable to organ samples: plain rectangular sums,
// cross-correlation kernels, and arbitrary-kernel overlap-add convolution
// with optional loop-continuation and pre-read realignment.
//
// Grounded on opendiapason's odfilter.h/odfilter.c: Filter/Temporaries,
// NewFilter, BuildRect/BuildXcorr/BuildConv and Run are direct ports of
// odfilter_init_filter/odfilter_init_temporaries/odfilter_build_*/odfilter_run.
package odfilter

import "github.com/cbegin/organsampler/fastconv"

// Filter is a convolution kernel together with the fastconv plan it runs
// against. kernel is always conv_len elements long, produced by one of the
// Build* methods (or filled in manually by a caller who already has a
// frequency-domain kernel in the plan's native bin order).
type Filter struct {
	KernLen int
	ConvLen int
	Conv    *fastconv.Pass
	Kernel  []float32
}

// Temporaries holds the scratch buffers a Run (or Build*) call needs so that
// one Filter's kernel can be shared read-only across multiple callers/threads
// while each keeps its own Temporaries.
type Temporaries struct {
	tmp1, tmp2, tmp3 []float32
}

// NewFilter builds a Filter sized for a kernel of the given length, picking
// a convolution length via fastconv.RecommendLength the way the original
// picks conv_len from fftset_recommend_conv_length(length, 512). The kernel
// buffer is allocated but left zeroed; call one of the Build* methods (or
// fill Kernel manually) before Run.
func NewFilter(fs *fastconv.FFTSet, kernLen int) (*Filter, error) {
	convLen := fastconv.RecommendLength(kernLen, 512)
	pass, err := fs.GetRealConv(convLen)
	if err != nil {
		return nil, err
	}
	return &Filter{
		KernLen: kernLen,
		ConvLen: convLen,
		Conv:    pass,
		Kernel:  make([]float32, convLen),
	}, nil
}

// NewTemporaries allocates the three conv_len scratch buffers a Filter's
// Build*/Run operations need.
func NewTemporaries(f *Filter) *Temporaries {
	return &Temporaries{
		tmp1: make([]float32, f.ConvLen),
		tmp2: make([]float32, f.ConvLen),
		tmp3: make([]float32, f.ConvLen),
	}
}

// BuildRect builds a kernel that sums length elements together; scale is
// applied to every tap (pass 1/length to average instead of sum).
func (f *Filter) BuildRect(tmps *Temporaries, length int, scale float32) {
	if length >= f.ConvLen {
		panic("odfilter: kernel length must be less than conv length")
	}
	scale *= 1.0 / float32(f.ConvLen)
	buf := tmps.tmp1
	for i := 0; i < length; i++ {
		buf[i] = scale
	}
	for i := length; i < f.ConvLen; i++ {
		buf[i] = 0
	}
	f.Conv.ExecuteFwd(buf, f.Kernel)
}

// BuildXcorr builds a kernel that is a time-reversed, scaled copy of buffer
// (for matched-filter cross-correlation), and returns the sum of squares of
// buffer (unscaled), useful for normalizing correlation results.
func (f *Filter) BuildXcorr(tmps *Temporaries, length int, buffer []float32, scale float32) float32 {
	if length >= f.ConvLen {
		panic("odfilter: kernel length must be less than conv length")
	}
	scaled := scale * 1.0 / float32(f.ConvLen)
	buf := tmps.tmp1
	var psum float32
	for i := 0; i < length; i++ {
		s := buffer[length-1-i]
		buf[i] = s * scaled
		psum += s * s
	}
	for i := length; i < f.ConvLen; i++ {
		buf[i] = 0
	}
	f.Conv.ExecuteFwd(buf, f.Kernel)
	return psum
}

// BuildConv builds a kernel with taps taken directly from buffer, scaled.
func (f *Filter) BuildConv(tmps *Temporaries, length int, buffer []float32, scale float32) {
	if length >= f.ConvLen {
		panic("odfilter: kernel length must be less than conv length")
	}
	scaled := scale * 1.0 / float32(f.ConvLen)
	buf := tmps.tmp1
	for i := 0; i < length; i++ {
		buf[i] = buffer[i] * scaled
	}
	for i := length; i < f.ConvLen; i++ {
		buf[i] = 0
	}
	f.Conv.ExecuteFwd(buf, f.Kernel)
}

// Run performs overlap-add convolution of input (length samples) against the
// filter's kernel, writing length samples into output.
//
// If addToOutput is false, output is zeroed first; otherwise the filtered
// result is summed into whatever output already holds.
//
// If isLooped is true, input is treated as continuing past length by
// wrapping back to suspStart (a sustain loop); otherwise the signal is
// assumed to go to zero immediately after length.
//
// preRead shifts the output earlier by preRead samples, which for a
// symmetric kernel cancels the convolution's inherent group delay so the
// output re-aligns with the input.
func Run(input, output []float32, addToOutput bool, suspStart, length uint64, preRead uint, isLooped bool, tmps *Temporaries, f *Filter) {
	maxIn := f.ConvLen - f.KernLen + 1
	sc1, sc2, sc3 := tmps.tmp1, tmps.tmp2, tmps.tmp3

	if !addToOutput {
		for i := range output[:length] {
			output[i] = 0
		}
	}

	var inputRead, inputPos uint64
	for {
		outputPos := int64(inputRead) - int64(preRead)

		var j int
		if isLooped {
			op := 0
			for op < maxIn {
				maxRead := int(length - inputPos)
				desireRead := maxIn - op
				if desireRead > maxRead {
					desireRead = maxRead
				}
				for j = 0; j < desireRead; j++ {
					sc1[j+op] = input[uint64(j)+inputPos]
				}
				inputPos += uint64(desireRead)
				op += desireRead
				if inputPos == length {
					inputPos = suspStart
				}
			}
			for ; op < f.ConvLen; op++ {
				sc1[op] = 0
			}
		} else {
			for j = 0; j < maxIn && inputRead+uint64(j) < length; j++ {
				sc1[j] = input[inputRead+uint64(j)]
			}
			for ; j < f.ConvLen; j++ {
				sc1[j] = 0
			}
		}

		f.Conv.ExecuteConv(sc1, f.Kernel, sc2, sc3)

		for j = 0; j < f.ConvLen; j++ {
			x := outputPos + int64(j)
			if x < 0 {
				continue
			}
			if uint64(x) >= length {
				break
			}
			output[x] += sc2[j]
		}

		if j == 0 {
			break
		}
		inputRead += uint64(maxIn)
	}
}

// RunInPlace is Run with the input and output buffers the same underlying
// data: it copies data aside first so the convolution always reads the
// original signal.
func RunInPlace(data []float32, suspStart, length uint64, preRead uint, isLooped bool, tmps *Temporaries, f *Filter) {
	old := make([]float32, length)
	copy(old, data[:length])
	Run(old, data, false, suspStart, length, preRead, isLooped, tmps, f)
}
