package playeng

import (
	"testing"

	"github.com/cbegin/organsampler/decoder"
	"github.com/stretchr/testify/require"
)

func makeSample(n int) *decoder.Sample {
	data := make([]int16, 2*n)
	for i := 0; i < n; i++ {
		data[2*i] = int16(i)
		data[2*i+1] = int16(-i)
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

func TestInsertAndProcessMixesVoice(t *testing.T) {
	eng := NewEngine(4, 2, 1)
	st := decoder.NewState(makeSample(64), 0, 0)

	called := false
	inst := eng.Insert([]*decoder.State{st}, 1, func(userdata interface{}, states []*decoder.State, sigmask, oldFlags, samplerTime uint32) uint32 {
		called = true
		return PackCallbackStatus(0, 1, 0, 0)
	}, nil)
	require.NotNil(t, inst)

	eng.SignalInstance(inst, 1)

	buf := [][]float32{make([]float32, decoder.OutputSamples), make([]float32, decoder.OutputSamples)}
	eng.Process(buf)

	require.True(t, called, "signalled instance should have its callback invoked")
	found := false
	for _, v := range buf[0] {
		if v != 0 {
			found = true
		}
	}
	require.True(t, found, "active voice should contribute non-zero samples")
}

func TestPolyphonyLimitReturnsNil(t *testing.T) {
	eng := NewEngine(1, 2, 1)
	st1 := decoder.NewState(makeSample(64), 0, 0)
	st2 := decoder.NewState(makeSample(64), 0, 0)

	cb := func(userdata interface{}, states []*decoder.State, sigmask, oldFlags, samplerTime uint32) uint32 {
		return PackCallbackStatus(0, 1, 0, 0)
	}
	first := eng.Insert([]*decoder.State{st1}, 1, cb, nil)
	require.NotNil(t, first)
	second := eng.Insert([]*decoder.State{st2}, 1, cb, nil)
	require.Nil(t, second, "engine at max polyphony must refuse new instances")
}

func TestInstanceDiscardedWhenCallbackReturnsNoActiveBits(t *testing.T) {
	eng := NewEngine(2, 2, 1)
	st := decoder.NewState(makeSample(64), 0, 0)
	inst := eng.Insert([]*decoder.State{st}, 1, func(userdata interface{}, states []*decoder.State, sigmask, oldFlags, samplerTime uint32) uint32 {
		return PackCallbackStatus(0, 0, 0, 0) // no active bits: terminate
	}, nil)
	eng.SignalInstance(inst, 1)

	buf := [][]float32{make([]float32, decoder.OutputSamples), make([]float32, decoder.OutputSamples)}
	eng.Process(buf)
	// process again: the instance slot should have been reclaimed, freeing
	// polyphony for a fresh Insert at full capacity.
	eng.Process(buf)

	st2 := decoder.NewState(makeSample(64), 0, 0)
	st3 := decoder.NewState(makeSample(64), 0, 0)
	i2 := eng.Insert([]*decoder.State{st2}, 1, func(interface{}, []*decoder.State, uint32, uint32, uint32) uint32 {
		return PackCallbackStatus(0, 1, 0, 0)
	}, nil)
	i3 := eng.Insert([]*decoder.State{st3}, 1, func(interface{}, []*decoder.State, uint32, uint32, uint32) uint32 {
		return PackCallbackStatus(0, 1, 0, 0)
	}, nil)
	require.NotNil(t, i2)
	require.NotNil(t, i3)
}

func TestSignalBlockWithholdsCallback(t *testing.T) {
	eng := NewEngine(2, 2, 1)
	st := decoder.NewState(makeSample(64), 0, 0)
	called := false
	inst := eng.Insert([]*decoder.State{st}, 1, func(interface{}, []*decoder.State, uint32, uint32, uint32) uint32 {
		called = true
		return PackCallbackStatus(0, 1, 0, 0)
	}, nil)
	eng.SignalBlock(1)
	eng.SignalInstance(inst, 1)

	buf := [][]float32{make([]float32, decoder.OutputSamples), make([]float32, decoder.OutputSamples)}
	eng.Process(buf)
	require.False(t, called, "blocked signal bits must not trigger the callback")

	eng.SignalUnblock(1)
	eng.Process(buf)
	require.True(t, called, "unblocking should let the pending signal through")
}
