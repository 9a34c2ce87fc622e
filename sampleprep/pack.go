package sampleprep

import (
	"github.com/cbegin/organsampler/decoder"
	"github.com/cbegin/organsampler/reltable"
)

// Bits selects the fixed-point sample format Pack quantizes to.
type Bits int

const (
	Bits16 Bits = 16
	Bits12 Bits = 12
)

// PreparedPipe is the fully-prepared output of the sample-preparation
// pipeline: a decoder.Sample ready to be handed to playeng for the
// attack/sustain loop, one decoder.Sample per release, and the
// release-alignment table tying them together (reltable.Entry.ReleaseID
// indexes into Releases). This is the load_smpl_comp equivalent of a
// finished "struct dec_smpl" plus its reltable.
type PreparedPipe struct {
	Attack    *decoder.Sample
	Releases  []*decoder.Sample
	Alignment *reltable.Table
	Period    float32
}

// Pack quantizes raw's attack and release channel data to bits-width PCM
// (dithering via Quantize16/Quantize12, each release continuing the same
// LCG stream the attack used) and assembles the decoder.Sample values a
// PreparedPipe needs, mirroring load_smpl_lists's final per-release
// quantize-and-store step. alignment is passed through unchanged — Pack
// does not touch reltable, it only owns quantization and sample assembly.
func Pack(raw *RawIngest, alignment *reltable.Table, gain float32, bits Bits, rnd uint32) (*PreparedPipe, uint32) {
	attackPeak := findMax(raw.Attack)
	var attackSample *decoder.Sample
	attackSample, rnd = packOne(raw.Attack, raw.AttackLoop, attackPeak, gain, bits, rnd)

	releases := make([]*decoder.Sample, len(raw.Releases))
	for i, rel := range raw.Releases {
		peak := findMax(rel)
		releases[i], rnd = packOne(rel, LoopTable{}, peak, gain, bits, rnd)
	}

	return &PreparedPipe{
		Attack:    attackSample,
		Releases:  releases,
		Alignment: alignment,
		Period:    raw.Period,
	}, rnd
}

func packOne(channels [][]float32, loop LoopTable, peak, gain float32, bits Bits, rnd uint32) (*decoder.Sample, uint32) {
	s := &decoder.Sample{
		Gain:     gain,
		Channels: len(channels),
		Bits:     int(bits),
	}
	s.Starts = make([]decoder.LoopStart, len(loop.Starts))
	for i, ls := range loop.Starts {
		s.Starts[i] = decoder.LoopStart{StartSample: ls.StartSample, FirstValidEnd: ls.FirstValidEnd}
	}
	s.Ends = make([]decoder.LoopEnd, len(loop.Ends))
	for i, le := range loop.Ends {
		s.Ends[i] = decoder.LoopEnd{EndSample: le.EndSample, StartIdx: le.StartIdx}
	}

	switch bits {
	case Bits16:
		s.Data16, rnd = Quantize16(channels, peak, rnd)
	case Bits12:
		s.Data12, rnd = Quantize12(channels, peak, rnd)
	}
	return s, rnd
}
