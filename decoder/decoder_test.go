package decoder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeLoopedStereoSample(n int) *Sample {
	data := make([]int16, 2*n)
	for i := 0; i < n; i++ {
		data[2*i] = int16(i)
		data[2*i+1] = int16(-i)
	}
	return &Sample{
		Gain:     1.0,
		Channels: 2,
		Bits:     16,
		Data16:   data,
		Starts:   []LoopStart{{StartSample: 4, FirstValidEnd: 0}},
		Ends:     []LoopEnd{{EndSample: uint32(n - 1), StartIdx: 0}},
	}
}

func TestDecode16x2ProducesOutputSamples(t *testing.T) {
	smpl := makeLoopedStereoSample(64)
	s := NewState(smpl, 0, 0)
	left := make([]float32, OutputSamples)
	right := make([]float32, OutputSamples)
	s.Decode([][]float32{left, right})
	found := false
	for _, v := range left {
		if v != 0 {
			found = true
		}
	}
	require.True(t, found, "decode should have produced non-zero samples")
}

func TestDecodeEntersLoopAfterStartAdvances(t *testing.T) {
	smpl := makeLoopedStereoSample(32)
	s := NewState(smpl, 0, 0)
	var flags Flags
	for i := 0; i < 4; i++ {
		left := make([]float32, OutputSamples)
		right := make([]float32, OutputSamples)
		flags = s.Decode([][]float32{left, right})
	}
	require.True(t, flags&IsLooping != 0, "after several blocks the voice should have entered its loop region")
}

func TestSetFadeEventuallyCompletes(t *testing.T) {
	smpl := makeLoopedStereoSample(64)
	s := NewState(smpl, 0, 0)
	s.SetFade(8, 0.0)
	require.True(t, s.fade.fading())
	for i := 0; i < 20 && s.fade.fading(); i++ {
		left := make([]float32, OutputSamples)
		right := make([]float32, OutputSamples)
		s.Decode([][]float32{left, right})
	}
	require.False(t, s.fade.fading(), "fade should complete within a handful of blocks")
	require.InDelta(t, 0.0, s.fade.gain, 1e-5)
}

func TestDecode2x12RoundTrip(t *testing.T) {
	buf := make([]byte, 3)
	encode2x12(buf, 1234, -1234)
	a, b := decode2x12(buf)
	require.Equal(t, float32(1234), a)
	require.Equal(t, float32(-1234), b)
}

func TestMonoDecodeProducesOutput(t *testing.T) {
	data := make([]int16, 64)
	for i := range data {
		data[i] = int16(i)
	}
	smpl := &Sample{
		Gain: 1.0, Channels: 1, Bits: 16, Data16: data,
		Starts: []LoopStart{{StartSample: 4, FirstValidEnd: 0}},
		Ends:   []LoopEnd{{EndSample: 63, StartIdx: 0}},
	}
	s := NewState(smpl, 0, 0)
	out := make([]float32, OutputSamples)
	s.Decode([][]float32{out})
	var found bool
	for _, v := range out {
		if v != 0 {
			found = true
		}
	}
	require.True(t, found)
}
