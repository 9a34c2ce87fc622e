package reltable

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindLastSegmentClampsAndInterpolatesGain(t *testing.T) {
	table := &Table{Entries: []Entry{
		{LastSample: 100, M: 10, B: 0, Gain: 0.5},
		{LastSample: 200, M: 10, B: 0, Gain: 1.0},
	}}
	_, gain, _ := table.Find(150)
	require.InDelta(t, 0.75, gain, 0.05)
}

func TestFindFirstSegmentUsesFlatGain(t *testing.T) {
	table := &Table{Entries: []Entry{
		{LastSample: 100, M: 10, B: 0, Gain: 0.75},
	}}
	_, gain, _ := table.Find(10)
	require.Equal(t, float32(0.75), gain)
}

func TestFindReturnsMatchedEntrysReleaseID(t *testing.T) {
	table := &Table{Entries: []Entry{
		{ReleaseID: 2, LastSample: 100, M: 10, B: 0, Gain: 1},
		{ReleaseID: 5, LastSample: 200, M: 10, B: 0, Gain: 1},
	}}
	_, _, rel := table.Find(50)
	require.Equal(t, 2, rel)
	_, _, rel = table.Find(150)
	require.Equal(t, 5, rel)
}

func TestFindFabsGuardFiresOnNegativeArg(t *testing.T) {
	var observed float64
	fired := false
	table := &Table{
		Entries:     []Entry{{LastSample: 100, M: 10, B: 50, Gain: 1.0}},
		onFabsGuard: func(sample float64) { fired = true; observed = sample },
	}
	_, _, _ = table.Find(5)
	require.True(t, fired, "sample below b should trigger the negative-arg hook")
	require.Equal(t, 5.0, observed)
}

func TestFindNoGuardFiredWhenArgNonNegative(t *testing.T) {
	fired := false
	table := &Table{
		Entries:     []Entry{{LastSample: 100, M: 10, B: 5, Gain: 1.0}},
		onFabsGuard: func(sample float64) { fired = true },
	}
	_, _, _ = table.Find(50)
	require.False(t, fired)
}

func TestBuildProducesTableRootedAtBestCorrelation(t *testing.T) {
	n := 400
	envelope := make([]float32, n)
	corr := make([]float32, n)
	for i := range envelope {
		envelope[i] = 1.0
		// Correlation peaks around sample 200, matching a well-aligned spot.
		d := float64(i - 200)
		corr[i] = float32(math.Exp(-d * d / 2000.0))
	}
	table := Build(envelope, [][]float32{corr}, []float32{1.0}, 50, nil)
	require.NotEmpty(t, table.Entries)
	require.LessOrEqual(t, len(table.Entries), MaxEntries)
	for _, e := range table.Entries {
		require.Greater(t, e.M, 0.0)
		require.Equal(t, 0, e.ReleaseID)
	}
}

// TestBuildGainIsUnityForConstantEnvelopeMatchingRelease is the literal
// release-alignment scenario: a constant-power attack/sustain envelope and a
// release whose waveform is identical to the sustain (so their
// cross-correlation peaks, at unity gain, exactly at every multiple of the
// fundamental period). The built table's gain should be 1.0 everywhere and
// Find's returned release offset should be periodic with the period.
func TestBuildGainIsUnityForConstantEnvelopeMatchingRelease(t *testing.T) {
	const period = 50
	const n = 380 // several full periods, short of the next period multiple

	envelope := make([]float32, n)
	corr := make([]float32, n)
	for i := range envelope {
		envelope[i] = 1.0
		corr[i] = float32(0.5 + 0.5*math.Cos(2*math.Pi*float64(i)/period))
	}

	table := Build(envelope, [][]float32{corr}, []float32{1.0}, period, nil)
	require.NotEmpty(t, table.Entries)

	for _, sample := range []float64{0, 30, 75, 140, 225} {
		offset, gain, _ := table.Find(sample)
		require.InDelta(t, 1.0, gain, 1e-3, "gain at sample %v", sample)

		// The release offset one fundamental period later must match the
		// offset at sample, within a sample, i.e. it repeats periodically.
		offsetNextPeriod, gainNextPeriod, _ := table.Find(sample + period)
		require.InDelta(t, 1.0, gainNextPeriod, 1e-3, "gain at sample %v", sample+period)
		require.InDelta(t, offset, offsetNextPeriod, 1.0, "offset not periodic: sample %v -> %v, sample %v -> %v", sample, offset, sample+period, offsetNextPeriod)
	}
}

func TestBuildMergesMultipleReleasesAndSortsByLastSample(t *testing.T) {
	n := 400
	envelope := make([]float32, n)
	corrA := make([]float32, n)
	corrB := make([]float32, n)
	for i := range envelope {
		envelope[i] = 1.0
		corrA[i] = float32(math.Exp(-math.Pow(float64(i-100), 2) / 2000.0))
		corrB[i] = float32(math.Exp(-math.Pow(float64(i-300), 2) / 2000.0))
	}

	table := Build(envelope, [][]float32{corrA, corrB}, []float32{1.0, 1.0}, 50, nil)
	require.NotEmpty(t, table.Entries)

	seen := map[int]bool{}
	for i, e := range table.Entries {
		seen[e.ReleaseID] = true
		if i > 0 {
			require.LessOrEqual(t, table.Entries[i-1].LastSample, e.LastSample)
		}
	}
	require.Len(t, seen, 2)
}
