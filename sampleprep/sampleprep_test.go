package sampleprep

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildLoopTableSortsEndsAndComputesFirstValidEnd(t *testing.T) {
	starts := []LoopStart{{StartSample: 100}, {StartSample: 50}}
	ends := []LoopEnd{{EndSample: 900, StartIdx: 0}, {EndSample: 600, StartIdx: 1}}

	table := buildLoopTable(starts, ends)

	require.Equal(t, uint32(600), table.Ends[0].EndSample)
	require.Equal(t, uint32(900), table.Ends[1].EndSample)

	require.Equal(t, 0, table.Starts[0].FirstValidEnd)
	require.Equal(t, 0, table.Starts[1].FirstValidEnd)
}

func TestEstimatePeriodFindsKnownTone(t *testing.T) {
	const sampleRate = 44100
	const period = 100
	mono := make([]float32, sampleRate/4)
	for i := range mono {
		phase := float32(i%period) / float32(period)
		mono[i] = sinApprox(phase)
	}

	got := FrequencyEstimate(mono, sampleRate)
	require.InDelta(t, period, got, 2)
}

func TestEstimatePeriodFallsBackOnShortInput(t *testing.T) {
	mono := make([]float32, 4)
	got := FrequencyEstimate(mono, 8000)
	require.Equal(t, float32(8000)/440, got)
}

func TestMonoEnvelopeSourceSumsChannels(t *testing.T) {
	l := []float32{1, 2, 3}
	r := []float32{4, 5, 6}
	sum := monoEnvelopeSource([][]float32{l, r})
	require.Equal(t, []float32{5, 7, 9}, sum)
}

// sinApprox is a cheap periodic waveform generator for the period-estimate
// test; it doesn't need to be an accurate sine, just have a clean, strong
// fundamental at the chosen period.
func sinApprox(phase float32) float32 {
	if phase < 0.5 {
		return 4*phase - 1
	}
	return 3 - 4*phase
}
