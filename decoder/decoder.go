// Package decoder implements the per-voice sample decode state machine:
// polyphase fractional-rate resampling, stochastic loop-endpoint selection,
// and gain fades, for both 16-bit and packed-12-bit, stereo and mono
// sample data.
//
// Grounded on opendiapason's src/decode_types.h (dec_state, dec_smpl,
// fade_state, the update_rnd LCG) and src/decode_least16x2.h
// (fade_process2, fade_configure, decode2x12/encode2x12, u16c2_dec,
// u12c2_dec); mono variants are the single-channel analogue the header
// describes via its INSERT_SINGLE/ACCUM_SINGLE macros.
package decoder

// OutputSamples is the fixed number of frames Decode produces (and sums
// into the caller's buffers) per call.
const OutputSamples = 64

// MaxLoop bounds the number of loop start/end definitions a Sample may
// declare.
const MaxLoop = 16

// Flags is the set of status bits Decode returns.
type Flags uint

const (
	// IsLooping is set once playback has advanced into the loop region
	// (i.e. the attack portion has completed).
	IsLooping Flags = 1 << iota
	// IsFading is set while a gain fade triggered by SetFade is still in
	// progress.
	IsFading
)

// updateRnd advances the loop-endpoint selection LCG.
func updateRnd(rnd uint32) uint32 {
	return rnd*1103515245 + 12345
}

// LoopStart is one possible loop re-entry point.
type LoopStart struct {
	StartSample uint32
	// FirstValidEnd is the index of the first LoopEnd this start point may
	// be reached from; Ends is sorted by end-marker position.
	FirstValidEnd int
}

// LoopEnd is one possible loop exit point, forcing a jump to a specific
// LoopStart when reached.
type LoopEnd struct {
	EndSample uint32
	StartIdx  int
}

// Sample is the static (read-only, shareable across voices) sample data and
// loop table a State decodes from.
type Sample struct {
	Gain     float32
	Channels int // 1 or 2
	Bits     int // 16 or 12

	Starts []LoopStart
	Ends   []LoopEnd

	Data16 []int16 // interleaved by channel, valid when Bits == 16
	Data12 []byte  // 3 bytes per 2 samples, valid when Bits == 12
}

func (s *Sample) frameCount() int {
	if s.Bits == 16 {
		return len(s.Data16) / s.Channels
	}
	// Every 3 bytes hold 2 packed samples (of any channel layout).
	return (len(s.Data12) / 3) * 2 / s.Channels
}

// decode2x12 unpacks two sign-extended 12-bit samples from 3 bytes.
func decode2x12(buf []byte) (a, b float32) {
	v := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
	ai := int32(v<<8) >> 20
	bi := int32(v<<20) >> 20
	return float32(ai), float32(bi)
}

// encode2x12 packs two 12-bit signed samples into 3 bytes.
func encode2x12(buf []byte, a, b int32) {
	v := (uint32(a)&0xFFF)<<12 | (uint32(b) & 0xFFF)
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
}

// tapLine is an InterpTaps-deep history ring for one channel, read by the
// polyphase kernel each output sample.
type tapLine struct {
	hist [InterpTaps]float32
}

func (t *tapLine) insert(sample float32) {
	copy(t.hist[:InterpTaps-1], t.hist[1:])
	t.hist[InterpTaps-1] = sample
}

func (t *tapLine) accum(coefs *[InterpTaps]float32) float32 {
	var acc float32
	for i, c := range coefs {
		acc += t.hist[i] * c
	}
	return acc
}

// fadeState is a linear gain ramp to a target, reached over at least the
// requested number of samples (rounded up to a multiple of 4, matching the
// original's 4-wide fade-vector granularity even though this port applies
// it sample-by-sample rather than in SIMD groups).
type fadeState struct {
	gain      float32
	step      float32
	target    float32
	remaining int
}

func (f *fadeState) configure(targetSamples int, gain float32) {
	if targetSamples != 0 {
		decayFrames := (targetSamples + 3) / 4
		f.step = (gain - f.gain) / float32(decayFrames*4)
		f.remaining = decayFrames * 4
		f.target = gain
	} else {
		f.gain = gain
		f.target = gain
		f.step = 0
		f.remaining = 0
	}
}

// apply advances the ramp by one sample and returns the gain to use for it.
// The step (or exact-target snap) is applied before the value is read, so
// the first sample of a fade already carries one step of delta and the
// gain lands on target exactly on the last nominal sample of the ramp.
func (f *fadeState) apply() float32 {
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			f.gain = f.target
		} else {
			f.gain += f.step
		}
	}
	return f.gain
}

func (f *fadeState) fading() bool { return f.remaining > 0 }

// State is one voice's live decode state: its resampling history, current
// playback position, active loop endpoint, and fade ramp.
type State struct {
	smpl *Sample

	ipos uint32
	fpos uint32
	rate uint32

	loopend  LoopEnd
	rndState uint32

	left, right tapLine
	fade        fadeState

	// scratchL/scratchR hold one Decode call's pre-fade interpolated
	// samples; fields (not locals) so Decode allocates nothing on the
	// audio thread.
	scratchL, scratchR [OutputSamples]float32

	decodeFn func(s *State, buf [][]float32) Flags
}

// Rate returns the current fractional playback rate (relative to
// PositionScale; PositionScale itself plays at the sample's native rate).
func (s *State) Rate() uint32 { return s.rate }

// SetRate sets the fractional playback rate.
func (s *State) SetRate(rate uint32) { s.rate = rate }

// Position returns the current integer/fractional read position.
func (s *State) Position() (ipos, fpos uint32) { return s.ipos, s.fpos }

// NewState instantiates decode state for sample, starting playback at
// ipos/fpos. If ipos is non-zero, the resampling history is pumped with the
// InterpTaps samples preceding it so the filter starts primed instead of
// from silence — important for releases, where an unprimed filter would
// produce audible ramp-in artifacts right at the splice point.
func NewState(smpl *Sample, ipos, fpos uint32) *State {
	s := &State{smpl: smpl, ipos: ipos, fpos: fpos, rate: PositionScale}
	s.fade.configure(0, smpl.Gain)
	s.loopend = smpl.Ends[0]

	first := uint32(0)
	if ipos > InterpTaps {
		first = ipos - InterpTaps
	}
	switch {
	case smpl.Bits == 16 && smpl.Channels == 2:
		for i := first; i < ipos; i++ {
			s.left.insert(float32(smpl.Data16[2*i]))
			s.right.insert(float32(smpl.Data16[2*i+1]))
		}
		s.decodeFn = decode16x2
	case smpl.Bits == 12 && smpl.Channels == 2:
		for i := first; i < ipos; i++ {
			l, r := decode2x12(smpl.Data12[3*i:])
			s.left.insert(l)
			s.right.insert(r)
		}
		s.decodeFn = decode12x2
	case smpl.Bits == 16 && smpl.Channels == 1:
		for i := first; i < ipos; i++ {
			s.left.insert(float32(smpl.Data16[i]))
		}
		s.decodeFn = decode16x1
	case smpl.Bits == 12 && smpl.Channels == 1:
		for i := first; i < ipos; i++ {
			l, r := decode2x12(smpl.Data12[3*(i/2):])
			if i%2 == 0 {
				s.left.insert(l)
			} else {
				s.left.insert(r)
			}
		}
		s.decodeFn = decode12x1
	default:
		panic("decoder: unsupported sample bits/channels combination")
	}
	return s
}

// SetFade triggers a gain ramp to gain over at least targetSamples samples.
func (s *State) SetFade(targetSamples int, gain float32) {
	s.fade.configure(targetSamples, s.smpl.Gain*gain)
}

// Decode renders OutputSamples frames, summing them into buf (one slice per
// channel, each at least OutputSamples long).
func (s *State) Decode(buf [][]float32) Flags {
	return s.decodeFn(s, buf)
}

func (s *State) advanceLoop16(checkAfterIncrement bool) {
	if checkAfterIncrement {
		s.ipos++
		if s.ipos <= s.loopend.EndSample {
			return
		}
	} else {
		if s.ipos < s.loopend.EndSample {
			s.ipos++
			return
		}
	}
	start := s.smpl.Starts[s.loopend.StartIdx]
	s.ipos = start.StartSample
	s.rndState = updateRnd(s.rndState)
	span := len(s.smpl.Ends) - start.FirstValidEnd
	s.loopend = s.smpl.Ends[start.FirstValidEnd+int(s.rndState)%span]
}

func (s *State) isLooping() bool {
	return s.ipos >= s.smpl.Starts[s.loopend.StartIdx].StartSample
}

func decode16x2(s *State, buf [][]float32) Flags {
	tmpL := s.scratchL[:]
	tmpR := s.scratchR[:]
	table := smplInterp()
	for i := 0; i < OutputSamples; i++ {
		coefs := &table[s.fpos]
		tmpL[i] = s.left.accum(coefs)
		tmpR[i] = s.right.accum(coefs)
		s.fpos += s.rate
		for s.fpos >= PositionScale {
			s.left.insert(float32(s.smpl.Data16[2*s.ipos]))
			s.right.insert(float32(s.smpl.Data16[2*s.ipos+1]))
			s.advanceLoop16(true)
			s.fpos -= PositionScale
		}
	}
	return applyFadeStereo(s, buf, tmpL, tmpR)
}

func decode12x2(s *State, buf [][]float32) Flags {
	tmpL := s.scratchL[:]
	tmpR := s.scratchR[:]
	table := smplInterp()
	for i := 0; i < OutputSamples; i++ {
		coefs := &table[s.fpos]
		tmpL[i] = s.left.accum(coefs)
		tmpR[i] = s.right.accum(coefs)
		s.fpos += s.rate
		for s.fpos >= PositionScale {
			l, r := decode2x12(s.smpl.Data12[3*s.ipos:])
			s.left.insert(l)
			s.right.insert(r)
			s.advanceLoop16(false)
			s.fpos -= PositionScale
		}
	}
	return applyFadeStereo(s, buf, tmpL, tmpR)
}

func decode16x1(s *State, buf [][]float32) Flags {
	tmp := s.scratchL[:]
	table := smplInterp()
	for i := 0; i < OutputSamples; i++ {
		coefs := &table[s.fpos]
		tmp[i] = s.left.accum(coefs)
		s.fpos += s.rate
		for s.fpos >= PositionScale {
			s.left.insert(float32(s.smpl.Data16[s.ipos]))
			s.advanceLoop16(true)
			s.fpos -= PositionScale
		}
	}
	return applyFadeMono(s, buf, tmp)
}

func decode12x1(s *State, buf [][]float32) Flags {
	tmp := s.scratchL[:]
	table := smplInterp()
	for i := 0; i < OutputSamples; i++ {
		coefs := &table[s.fpos]
		tmp[i] = s.left.accum(coefs)
		s.fpos += s.rate
		for s.fpos >= PositionScale {
			pairIdx := s.ipos / 2
			l, r := decode2x12(s.smpl.Data12[3*pairIdx:])
			if s.ipos%2 == 0 {
				s.left.insert(l)
			} else {
				s.left.insert(r)
			}
			s.advanceLoop16(false)
			s.fpos -= PositionScale
		}
	}
	return applyFadeMono(s, buf, tmp)
}

func applyFadeStereo(s *State, buf [][]float32, tmpL, tmpR []float32) Flags {
	for i := 0; i < OutputSamples; i++ {
		g := s.fade.apply()
		buf[0][i] += tmpL[i] * g
		buf[1][i] += tmpR[i] * g
	}
	var flags Flags
	if s.isLooping() {
		flags |= IsLooping
	}
	if s.fade.fading() {
		flags |= IsFading
	}
	return flags
}

func applyFadeMono(s *State, buf [][]float32, tmp []float32) Flags {
	for i := 0; i < OutputSamples; i++ {
		g := s.fade.apply()
		buf[0][i] += tmp[i] * g
	}
	var flags Flags
	if s.isLooping() {
		flags |= IsLooping
	}
	if s.fade.fading() {
		flags |= IsFading
	}
	return flags
}
