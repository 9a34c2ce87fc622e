package sampleprep

import "github.com/cbegin/organsampler/wav"

// Ingest combines one attack/sustain RawPipe and zero or more release
// RawPipes into a RawIngest, validating the loop table and channel layout
// the way load_smpl_comp does before any filtering begins.
func Ingest(attack *wav.RawPipe, releases []*wav.RawPipe) (*RawIngest, error) {
	var starts []LoopStart
	var ends []LoopEnd
	for _, m := range attack.Markers {
		if !m.HasLoop {
			continue
		}
		starts = append(starts, LoopStart{StartSample: m.Position})
		ends = append(ends, LoopEnd{EndSample: m.Position + m.Length, StartIdx: len(starts) - 1})
	}
	if len(starts) == 0 {
		return nil, ErrNoLoop
	}
	if len(starts) > MaxLoop {
		return nil, ErrTooManyLoops
	}

	loopTable := buildLoopTable(starts, ends)
	sustainStart := starts[0].StartSample
	for _, s := range starts {
		if s.StartSample < sustainStart {
			sustainStart = s.StartSample
		}
	}

	relPlanar := make([][][]float32, len(releases))
	for i, r := range releases {
		if r.Channels != attack.Channels {
			return nil, ErrChannelMismatch
		}
		relPlanar[i] = r.Data
	}

	var period float32
	if attack.Frequency > 0 {
		period = float32(attack.SampleRate) / float32(attack.Frequency)
	} else {
		period = FrequencyEstimate(monoEnvelopeSource(attack.Data), attack.SampleRate)
	}

	return &RawIngest{
		Channels:     attack.Channels,
		SampleRate:   attack.SampleRate,
		Attack:       attack.Data,
		AttackLoop:   loopTable,
		SustainStart: sustainStart,
		Releases:     relPlanar,
		Period:       period,
	}, nil
}
