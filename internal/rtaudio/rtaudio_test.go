package rtaudio

import (
	"testing"

	"github.com/cbegin/organsampler/decoder"
	"github.com/cbegin/organsampler/playeng"
	"github.com/stretchr/testify/require"
)

func makeSample(n int) *decoder.Sample {
	data := make([]int16, 2*n)
	for i := 0; i < n; i++ {
		data[2*i] = int16(1000 + i)
		data[2*i+1] = int16(-1000 - i)
	}
	return &decoder.Sample{
		Gain:     1.0,
		Channels: 2,
		Bits:     16,
		Data16:   data,
		Starts:   []decoder.LoopStart{{StartSample: 4, FirstValidEnd: 0}},
		Ends:     []decoder.LoopEnd{{EndSample: uint32(n - 1), StartIdx: 0}},
	}
}

func activeEngine(t *testing.T) *playeng.Engine {
	eng := playeng.NewEngine(2, 2, 1)
	st := decoder.NewState(makeSample(64), 0, 0)
	inst := eng.Insert([]*decoder.State{st}, 1, func(userdata interface{}, states []*decoder.State, sigmask, oldFlags, samplerTime uint32) uint32 {
		return playeng.PackCallbackStatus(0, 1, 0, 0)
	}, nil)
	require.NotNil(t, inst)
	eng.SignalInstance(inst, 1)
	return eng
}

func TestEngineSourceProducesRequestedFrameCountAcrossBlockBoundaries(t *testing.T) {
	eng := activeEngine(t)
	src := NewEngineSource(eng, 2)

	dst := make([]float32, 5*decoder.OutputSamples) // not a multiple of one block's worth in frames
	src.Process(dst)

	nonZero := false
	for _, v := range dst {
		if v != 0 {
			nonZero = true
			break
		}
	}
	require.True(t, nonZero, "interleaved output should carry the active voice's samples")
}

func TestEngineSourceCarriesLeftoverFramesBetweenCalls(t *testing.T) {
	eng := activeEngine(t)
	src := NewEngineSource(eng, 2)

	small := make([]float32, 10) // 5 stereo frames, well under one 64-frame block
	src.Process(small)
	require.NotEmpty(t, src.pending, "a partially-consumed block should remain buffered")

	rest := make([]float32, 4)
	src.Process(rest)
}

func TestStreamReaderReadMatchesRequestedByteCount(t *testing.T) {
	eng := activeEngine(t)
	r := NewStreamReader(NewEngineSource(eng, 2))

	buf := make([]byte, 4*8) // 4 stereo float32 frames
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
}
