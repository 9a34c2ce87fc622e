package wav

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func makePipe(frames, channels, rate int) *RawPipe {
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
		for i := range data[c] {
			data[c][i] = float32(i%200-100) / 100
		}
	}
	return &RawPipe{Data: data, Frames: frames, Channels: channels, SampleRate: rate, NativeBits: 16, Frequency: -1}
}

func TestRoundTripStereoPCM16(t *testing.T) {
	br := NewBasicReader()
	src := makePipe(256, 2, 44100)

	var buf bytes.Buffer
	require.NoError(t, br.WritePipe(&buf, src))

	got, warnings, err := br.ReadPipe(&buf)
	require.NoError(t, err)
	require.Zero(t, warnings)
	require.Equal(t, src.Frames, got.Frames)
	require.Equal(t, src.Channels, got.Channels)
	require.Equal(t, src.SampleRate, got.SampleRate)
	for c := 0; c < src.Channels; c++ {
		for i := 0; i < src.Frames; i++ {
			require.InDelta(t, src.Data[c][i], got.Data[c][i], 1.0/32767)
		}
	}
}

func TestRoundTripMono(t *testing.T) {
	br := NewBasicReader()
	src := makePipe(64, 1, 22050)

	var buf bytes.Buffer
	require.NoError(t, br.WritePipe(&buf, src))
	got, _, err := br.ReadPipe(&buf)
	require.NoError(t, err)
	require.Equal(t, 1, got.Channels)
}

func TestReadPipeRejectsNonRIFF(t *testing.T) {
	br := NewBasicReader()
	_, _, err := br.ReadPipe(bytes.NewReader([]byte("not a wave file at all")))
	require.ErrorIs(t, err, ErrNotAWave)
}

func TestReadPipeRejectsMissingData(t *testing.T) {
	br := NewBasicReader()
	var body bytes.Buffer
	body.WriteString(fmtID)
	writeLE32(&body, 16)
	writeLE16(&body, 1)
	writeLE16(&body, 1)
	writeLE32(&body, 44100)
	writeLE32(&body, 88200)
	writeLE16(&body, 2)
	writeLE16(&body, 16)

	var file bytes.Buffer
	file.WriteString(riffID)
	writeLE32(&file, uint32(4+body.Len()))
	file.WriteString(waveID)
	file.Write(body.Bytes())

	_, _, err := br.ReadPipe(&file)
	require.ErrorIs(t, err, ErrMissingData)
}

func writeLE32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeLE16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}
