// Package sampleprep is the offline sample-preparation pipeline: it turns
// one attack/sustain recording plus zero or more release recordings into a
// PreparedPipe the playback engine can decode in real time, running the
// prefilter, envelope/cross-correlation, release-alignment and
// quantization stages odfilter/reltable exist to support.
//
// Grounded on opendiapason's src/wavldr.c (load_smpl_comp/load_smpl_lists:
// the overall stage order and per-stage math), src/filterutils.c
// (odfilter_interp_prefilter_init's kernel scaling), and app_autoloop's
// loader-pool shape for LoaderPool.
package sampleprep

import (
	"errors"
	"math"
)

// Pitch is the smpl-chunk-derived MIDI pitch, fixed-point fraction in
// 1/2^32ths of a semitone, per decode_types.h's pitch encoding. Ingest
// leaves RawIngest.Pitch zero: the smpl-chunk pitch reaches Ingest as
// wav.RawPipe.Frequency, which sets Period instead.
type Pitch struct {
	MIDINote  int
	CentsFrac int32
}

// LoopStart and LoopEnd mirror decoder.LoopStart/LoopEnd; sampleprep builds
// these before handing them to a decoder.Sample.
type LoopStart struct {
	StartSample   uint32
	FirstValidEnd int
}

type LoopEnd struct {
	EndSample uint32
	StartIdx  int
}

// LoopTable is the attack/sustain segment's sampler-body loop table, built
// the way load_smpl_lists does: ends sorted ascending and FirstValidEnd
// computed per start (see buildLoopTable). No further invariant is checked.
type LoopTable struct {
	Starts []LoopStart
	Ends   []LoopEnd
}

var (
	// ErrNoLoop is returned by Ingest when the attack recording has no
	// loop points — load_smpl_comp's "no/too-many loops or no release"
	// check.
	ErrNoLoop = errors.New("sampleprep: attack recording has no loop points")
	// ErrTooManyLoops mirrors decode_types.h's MAX_LOOP bound.
	ErrTooManyLoops = errors.New("sampleprep: attack recording exceeds the maximum loop count")
	// ErrChannelMismatch is returned when a release's channel count
	// doesn't match the attack's.
	ErrChannelMismatch = errors.New("sampleprep: release channel count does not match attack")
)

// MaxLoop mirrors decode_types.h's MAX_LOOP.
const MaxLoop = 16

// RawIngest is the channel-planar, not-yet-filtered form of one pipe's
// recordings: the output of Ingest and the input to Prefilter.
type RawIngest struct {
	Channels   int
	SampleRate int

	Attack     [][]float32 // one []float32 per channel
	AttackLoop LoopTable
	// SustainStart is the sample index the looped tail begins at — the
	// point odfilter.Run's suspStart parameter needs for the attack
	// segment's looped convolution.
	SustainStart uint32

	Releases [][][]float32 // one [][]float32 (per-channel) per release

	Period float32 // estimated cycle length, in samples
	Pitch  Pitch
}

// buildLoopTable sorts the loop-end list by end position and computes each
// start's FirstValidEnd, mirroring load_smpl_lists's "filthy bubble sort"
// and first-valid-end scan exactly (including the assumption that some end
// after each start's position exists).
func buildLoopTable(starts []LoopStart, ends []LoopEnd) LoopTable {
	out := make([]LoopEnd, len(ends))
	copy(out, ends)
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].EndSample < out[i].EndSample {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	startsOut := make([]LoopStart, len(starts))
	copy(startsOut, starts)
	for i := range startsOut {
		loopStart := startsOut[i].StartSample
		fv := 0
		for out[fv].EndSample <= loopStart {
			fv++
		}
		startsOut[i].FirstValidEnd = fv
	}
	return LoopTable{Starts: startsOut, Ends: out}
}

// FrequencyEstimate finds the dominant cycle length (in samples) of mono
// (Ingest passes the whole attack recording, channels summed) via
// normalized autocorrelation, used when the WAV file's
// smpl chunk didn't carry a pitch estimate. Searches the organ's practical
// pipe range (16 Hz to 8 kHz) rather than an unbounded lag search.
//
// Grounded on wavldr.c's "pipe->frequency = norm_rate / as_bits->period"
// relationship (frequency estimation feeds back into the period used by
// the envelope/correlation stage) — the estimator itself is this port's
// own addition since the original takes the period from the smpl chunk's
// pitch field and filterutils.c does not contain a frequency-estimation
// routine. Split out as its own loader stage (rather than folded into
// Ingest) so a caller that already knows the pitch can skip it.
func FrequencyEstimate(mono []float32, sampleRate int) float32 {
	minLag := sampleRate / 8000
	if minLag < 2 {
		minLag = 2
	}
	maxLag := sampleRate / 16
	if maxLag > len(mono)/2 {
		maxLag = len(mono) / 2
	}
	if maxLag <= minLag {
		return float32(sampleRate) / 440
	}

	bestLag := minLag
	bestScore := -math.MaxFloat64
	for lag := minLag; lag <= maxLag; lag++ {
		var sum, norm1, norm2 float64
		n := len(mono) - lag
		for i := 0; i < n; i++ {
			a, b := float64(mono[i]), float64(mono[i+lag])
			sum += a * b
			norm1 += a * a
			norm2 += b * b
		}
		denom := math.Sqrt(norm1 * norm2)
		if denom == 0 {
			continue
		}
		score := sum / denom
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}
	return float32(bestLag)
}

func monoEnvelopeSource(channels [][]float32) []float32 {
	if len(channels) == 1 {
		return channels[0]
	}
	out := make([]float32, len(channels[0]))
	for c := range channels {
		for i, v := range channels[c] {
			out[i] += v
		}
	}
	return out
}
