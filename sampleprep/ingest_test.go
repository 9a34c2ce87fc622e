package sampleprep

import (
	"testing"

	"github.com/cbegin/organsampler/wav"
	"github.com/stretchr/testify/require"
)

func makeRawPipe(frames, channels int) *wav.RawPipe {
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
		for i := range data[c] {
			data[c][i] = float32(i) / float32(frames)
		}
	}
	return &wav.RawPipe{
		Data:       data,
		Frames:     frames,
		Channels:   channels,
		SampleRate: 44100,
		Frequency:  -1,
	}
}

func TestIngestRejectsMissingLoop(t *testing.T) {
	attack := makeRawPipe(1000, 2)
	_, err := Ingest(attack, nil)
	require.ErrorIs(t, err, ErrNoLoop)
}

func TestIngestRejectsTooManyLoops(t *testing.T) {
	attack := makeRawPipe(1000, 2)
	for i := 0; i < MaxLoop+1; i++ {
		attack.Markers = append(attack.Markers, wav.Marker{
			Position: uint32(100 + i), Length: 500, HasLoop: true,
		})
	}
	_, err := Ingest(attack, nil)
	require.ErrorIs(t, err, ErrTooManyLoops)
}

func TestIngestRejectsChannelMismatch(t *testing.T) {
	attack := makeRawPipe(1000, 2)
	attack.Markers = []wav.Marker{{Position: 100, Length: 500, HasLoop: true}}
	release := makeRawPipe(500, 1)

	_, err := Ingest(attack, []*wav.RawPipe{release})
	require.ErrorIs(t, err, ErrChannelMismatch)
}

func TestIngestUsesSmplFrequencyWhenPresent(t *testing.T) {
	attack := makeRawPipe(1000, 2)
	attack.Markers = []wav.Marker{{Position: 100, Length: 500, HasLoop: true}}
	attack.Frequency = 441

	raw, err := Ingest(attack, nil)
	require.NoError(t, err)
	require.InDelta(t, float32(100), raw.Period, 0.001)
}

func TestIngestBuildsSustainStartFromEarliestLoop(t *testing.T) {
	attack := makeRawPipe(1000, 2)
	attack.Markers = []wav.Marker{
		{Position: 300, Length: 400, HasLoop: true},
		{Position: 100, Length: 500, HasLoop: true},
	}
	attack.Frequency = 441

	raw, err := Ingest(attack, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(100), raw.SustainStart)
	require.Len(t, raw.AttackLoop.Starts, 2)
	require.Len(t, raw.AttackLoop.Ends, 2)
}
