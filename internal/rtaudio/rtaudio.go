// Package rtaudio adapts playeng.Engine's fixed-block Process output into a
// live audio device through playeng's fixed
// decoder.OutputSamples-frame pull model: each device read may ask for any
// number of frames, so EngineSource buffers whole engine blocks and doles
// out interleaved samples a read at a time.
package rtaudio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/cbegin/organsampler/decoder"
	"github.com/cbegin/organsampler/playeng"
	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// EngineSource pulls fixed decoder.OutputSamples-frame blocks from an
// *playeng.Engine and serves them as an interleaved float32 stream of
// arbitrary read length.
type EngineSource struct {
	eng      *playeng.Engine
	channels int
	scratch  [][]float32
	pending  []float32
}

// NewEngineSource wraps eng, whose Process writes into channels-count
// per-channel buffers, as an interleaved stream source.
func NewEngineSource(eng *playeng.Engine, channels int) *EngineSource {
	scratch := make([][]float32, channels)
	for c := range scratch {
		scratch[c] = make([]float32, decoder.OutputSamples)
	}
	return &EngineSource{eng: eng, channels: channels, scratch: scratch}
}

// Process fills dst (interleaved, len(dst) a multiple of channels) by
// pulling as many engine blocks as needed, buffering any leftover frames
// from a partially-consumed block for the next call.
func (s *EngineSource) Process(dst []float32) {
	n := 0
	for n < len(dst) {
		if len(s.pending) == 0 {
			s.fillBlock()
		}
		copied := copy(dst[n:], s.pending)
		s.pending = s.pending[copied:]
		n += copied
	}
}

func (s *EngineSource) fillBlock() {
	for c := range s.scratch {
		for i := range s.scratch[c] {
			s.scratch[c][i] = 0
		}
	}
	s.eng.Process(s.scratch)

	if cap(s.pending) < decoder.OutputSamples*s.channels {
		s.pending = make([]float32, decoder.OutputSamples*s.channels)
	} else {
		s.pending = s.pending[:decoder.OutputSamples*s.channels]
	}
	for i := 0; i < decoder.OutputSamples; i++ {
		for c := 0; c < s.channels; c++ {
			s.pending[i*s.channels+c] = s.scratch[c][i]
		}
	}
}

// StreamReader adapts an EngineSource to io.Reader in the PCM float32LE
// interleaved format ebiten's audio.Context.NewPlayerF32 consumes.
type StreamReader struct {
	mu     sync.Mutex
	source *EngineSource
	buf    []float32
}

func NewStreamReader(source *EngineSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frameBytes := 4 * r.source.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	need := frames * r.source.channels
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	return frames * frameBytes, nil
}

func (r *StreamReader) Close() error { return nil }

// Player drives a playeng.Engine through ebiten's shared audio context.
type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	contextOnce sync.Once
	context     *ebitaudio.Context
	contextErr  error
	contextRate int
)

func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		contextRate = sampleRate
		context = ebitaudio.NewContext(sampleRate)
	})
	if contextErr != nil {
		return nil, contextErr
	}
	if contextRate != sampleRate {
		return nil, fmt.Errorf("rtaudio: audio context already initialized at %d Hz (requested %d Hz)", contextRate, sampleRate)
	}
	return context, nil
}

// NewPlayer builds an ebiten-backed live player for eng, producing
// channels-count interleaved output at sampleRate.
func NewPlayer(sampleRate, channels int, eng *playeng.Engine) (*Player, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	source := NewEngineSource(eng, channels)
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Play()           { p.player.Play() }
func (p *Player) Pause()          { p.player.Pause() }
func (p *Player) IsPlaying() bool { return p.player.IsPlaying() }

func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) Stop() error {
	p.player.Pause()
	p.player.Close()
	return p.reader.Close()
}
