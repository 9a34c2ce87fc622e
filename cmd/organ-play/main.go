// Command organ-play is a manual smoke-test harness for the playback
// engine: it loads the prepared pipes a prior organ-prep run wrote, drives
// a live playeng.Engine through internal/rtaudio, and accepts note-on/
// note-off commands typed on stdin. It stays thin and delegates everything
// interesting to playeng/decoder/sampleprep.
package main

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cbegin/organsampler/decoder"
	"github.com/cbegin/organsampler/internal/obslog"
	"github.com/cbegin/organsampler/internal/organconf"
	"github.com/cbegin/organsampler/internal/rtaudio"
	"github.com/cbegin/organsampler/playeng"
	"github.com/cbegin/organsampler/sampleprep"
	"github.com/spf13/pflag"
)

// startSignal is armed at Insert time so the engine's very first Process
// call invokes releaseCallback once to set the voice's active bit (a fresh
// Instance starts with flags == 0, i.e. inactive, until its callback runs);
// noteOffSignal is raised later via SignalInstance to request the release
// fade. Insert's sigmask parameter becomes the instance's initial pending
// signal word directly (mirroring playeng_insert's "ei->signals = sigmask"),
// so the two need separate bits or note-on would immediately read as a
// note-off.
const (
	startSignal   = 0x1
	noteOffSignal = 0x2
)

const releaseFadeFrames = 2000

func main() {
	var (
		configPath   = pflag.StringP("config", "c", "", "path to organ-play TOML config")
		manifestPath = pflag.StringP("manifest", "m", "", "path to the rank YAML manifest written alongside the prepared pipes")
		sampleRate   = pflag.Int("sample-rate", 44100, "output sample rate")
		polyphony    = pflag.Int("polyphony", 64, "maximum simultaneous voices")
		workers      = pflag.Int("workers", 2, "playback engine worker goroutine count")
		logLevel     = pflag.String("log-level", "info", "log level: debug|info|warn|error")
	)
	pflag.Parse()

	log := obslog.New(obslog.Options{Level: parseLevel(*logLevel)})
	obslog.SetDefault(log)

	if *manifestPath == "" {
		log.Fatal("organ-play: -manifest is required")
	}
	if _, err := organconf.Load(*configPath, nil); err != nil {
		log.Fatal("loading config", "err", err)
	}

	manifest, err := organconf.LoadRankManifest(*manifestPath)
	if err != nil {
		log.Fatal("loading rank manifest", "err", err)
	}

	ranks := make(map[string]*loadedRank, len(manifest.Ranks))
	for _, r := range manifest.Ranks {
		pipe, err := readPipe(pipePath(r.AttackWAV))
		if err != nil {
			log.Error("skipping rank, no prepared pipe found", "rank", r.Name, "err", err)
			continue
		}
		ranks[r.Name] = &loadedRank{rank: r, pipe: pipe}
		log.Info("rank loaded", "rank", r.Name, "base_note", r.BaseNote)
	}
	if len(ranks) == 0 {
		log.Fatal("organ-play: no ranks loaded (run organ-prep first)")
	}

	eng := playeng.NewEngine(*polyphony, 2, *workers)
	player, err := rtaudio.NewPlayer(*sampleRate, 2, eng)
	if err != nil {
		log.Fatal("starting audio player", "err", err)
	}
	player.Play()
	defer player.Stop()

	log.Info("organ-play ready", "commands", "on <rank> <note> | off <rank> <note> | quit")
	voices := map[string]*playeng.Instance{}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "quit", "q", "exit":
			return
		case "on":
			if len(fields) != 3 {
				log.Warn("usage: on <rank> <note>")
				continue
			}
			note, err := strconv.Atoi(fields[2])
			if err != nil {
				log.Warn("invalid note", "input", fields[2])
				continue
			}
			lr, ok := ranks[fields[1]]
			if !ok {
				log.Warn("unknown rank", "rank", fields[1])
				continue
			}
			key := fields[1] + ":" + fields[2]
			if inst := noteOn(eng, lr, note); inst != nil {
				voices[key] = inst
			} else {
				log.Warn("polyphony exhausted, voice dropped", "rank", fields[1], "note", note)
			}
		case "off":
			if len(fields) != 3 {
				log.Warn("usage: off <rank> <note>")
				continue
			}
			key := fields[1] + ":" + fields[2]
			inst, ok := voices[key]
			if !ok {
				continue
			}
			eng.SignalInstance(inst, noteOffSignal)
			delete(voices, key)
		default:
			log.Warn("unrecognized command", "input", scanner.Text())
		}
	}
}

type loadedRank struct {
	rank organconf.Rank
	pipe *sampleprep.PreparedPipe
}

// noteOn starts a new voice for lr at note (a MIDI note number), pitched
// relative to lr.rank.BaseNote via a 12-tone-equal-tempered rate scale.
func noteOn(eng *playeng.Engine, lr *loadedRank, note int) *playeng.Instance {
	state := decoder.NewState(lr.pipe.Attack, 0, 0)
	semitones := float64(note - lr.rank.BaseNote)
	rate := float64(decoder.PositionScale) * math.Pow(2, semitones/12)
	state.SetRate(uint32(rate))

	return eng.Insert([]*decoder.State{state}, startSignal, releaseCallback, nil)
}

// releaseCallback keeps a voice's fadeTermMask bit clear until a note-off
// signal arrives, at which point it triggers SetFade and sets the bit so
// the engine discards the voice once the fade completes (GetCallbackFadeTerm
// combined with decoder.IsFading, per playeng's threadExecute). The
// already-released state survives purely in the returned flags word
// (GetCallbackFadeTerm(oldFlags)), so this closure needs no instance-local
// state of its own.
func releaseCallback(userdata interface{}, states []*decoder.State, sigmask, oldFlags, samplerTime uint32) uint32 {
	released := playeng.GetCallbackFadeTerm(oldFlags) != 0
	if sigmask&noteOffSignal != 0 && !released {
		states[0].SetFade(releaseFadeFrames, 0)
		released = true
	}
	var fadeTerm uint8
	if released {
		fadeTerm = 0x1
	}
	return playeng.PackCallbackStatus(0, 0x1, fadeTerm, 0)
}

func readPipe(path string) (*sampleprep.PreparedPipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var pipe sampleprep.PreparedPipe
	if err := gob.NewDecoder(f).Decode(&pipe); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &pipe, nil
}

// pipePath mirrors organ-prep's outputPath: the prepared pipe for
// attackWAV sits alongside it with the same base name and a .organpipe
// extension.
func pipePath(attackWAV string) string {
	dir := filepath.Dir(attackWAV)
	base := strings.TrimSuffix(filepath.Base(attackWAV), filepath.Ext(attackWAV))
	return filepath.Join(dir, base+".organpipe")
}

func parseLevel(name string) obslog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return obslog.DebugLevel
	case "warn":
		return obslog.WarnLevel
	case "error":
		return obslog.ErrorLevel
	default:
		return obslog.InfoLevel
	}
}
