package sampleprep

import (
	"time"

	"github.com/cbegin/organsampler/reltable"
)

// ProfileReport is the timing breakdown Profile produces: how long a
// Quantize pass and a BuildAlignment pass take against data shaped like
// pipe's, reported separately so a caller can see which stage dominates
// prep time for a given pipe size.
type ProfileReport struct {
	Samples       int
	Channels      int
	QuantizeTime  time.Duration
	AlignmentTime time.Duration
}

// Profile is a lightweight instrumented dry-run of Quantize and
// BuildAlignment, grounded on app_engprofile.c's approach of timing a
// pipeline stage against synthetic data rather than requiring a live
// instrument recording: app_engprofile.c populates NB_SAMPLES synthetic
// voices and times engine_callback rather than profiling any one real
// sample set, and Profile does the analogous thing for the
// sample-preparation stages. It borrows only pipe's shape (frame count,
// channel count, period) and synthesizes representative signal data of
// that shape to drive a fresh Quantize16 and reltable.Build call, timing
// each separately.
func Profile(pipe *PreparedPipe) ProfileReport {
	frames := sampleFrames(pipe)
	channels := pipe.Attack.Channels
	if channels < 1 {
		channels = 1
	}

	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
		for i := range data[c] {
			data[c][i] = float32(i%2000)/1000 - 1
		}
	}

	start := time.Now()
	_, _ = Quantize16(data, 1.0, 1)
	quantizeTime := time.Since(start)

	envelope := make([]float32, frames)
	corr := make([]float32, frames)
	for i, v := range data[0] {
		envelope[i] = v * v
		corr[i] = envelope[i]
	}

	start = time.Now()
	_ = reltable.Build(envelope, [][]float32{corr}, []float32{1.0}, pipe.Period, nil)
	alignmentTime := time.Since(start)

	return ProfileReport{
		Samples:       frames,
		Channels:      channels,
		QuantizeTime:  quantizeTime,
		AlignmentTime: alignmentTime,
	}
}

// sampleFrames recovers the per-channel frame count of pipe's attack
// sample regardless of which bit depth it was packed to.
func sampleFrames(pipe *PreparedPipe) int {
	channels := pipe.Attack.Channels
	if channels < 1 {
		channels = 1
	}
	switch {
	case len(pipe.Attack.Data16) > 0:
		return len(pipe.Attack.Data16) / channels
	case len(pipe.Attack.Data12) > 0:
		total := (len(pipe.Attack.Data12) / 3) * 2
		return total / channels
	default:
		return 0
	}
}
