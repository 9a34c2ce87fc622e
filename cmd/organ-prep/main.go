// Command organ-prep runs the offline sample-preparation pipeline over a
// rank manifest: for every rank it ingests the attack/sustain recording
// plus its releases, prefilters, computes the release-alignment table,
// quantizes to the configured bit depth, and writes the resulting
// PreparedPipe next to the source samples as a small gob-encoded blob.
package main

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cbegin/organsampler/internal/obslog"
	"github.com/cbegin/organsampler/internal/organconf"
	"github.com/cbegin/organsampler/sampleprep"
	"github.com/cbegin/organsampler/wav"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath   = pflag.StringP("config", "c", "", "path to organ-prep TOML config")
		manifestPath = pflag.StringP("manifest", "m", "", "path to the rank YAML manifest")
		threads      = pflag.IntP("threads", "j", 0, "loader worker count (0 = use config value)")
		bits         = pflag.Int("output-bits", 0, "output bit depth, 16 or 12 (0 = use config value)")
		gain         = pflag.Float64("gain", 1.0, "linear gain applied to every prepared pipe")
		logLevel     = pflag.String("log-level", "info", "log level: debug|info|warn|error")
	)
	pflag.Parse()

	log := obslog.New(obslog.Options{Level: parseLevel(*logLevel)})
	obslog.SetDefault(log)

	if *manifestPath == "" {
		log.Fatal("organ-prep: -manifest is required")
	}

	cfg, err := organconf.Load(*configPath, nil)
	if err != nil {
		log.Fatal("loading config", "err", err)
	}
	if *threads > 0 {
		cfg.LoaderThreads = *threads
	}
	if *bits > 0 {
		cfg.OutputBits = *bits
	}

	manifest, err := organconf.LoadRankManifest(*manifestPath)
	if err != nil {
		log.Fatal("loading rank manifest", "err", err)
	}

	pool := sampleprep.NewLoaderPool(cfg.LoaderThreads)
	var outcomes sync.Map // uuid string -> rank name

	go func() {
		reader := wav.NewBasicReader()
		for _, rank := range manifest.Ranks {
			job, err := buildJob(reader, rank, sampleprep.Bits(cfg.OutputBits), float32(*gain))
			if err != nil {
				log.Error("skipping rank", "rank", rank.Name, "err", err)
				continue
			}
			outcomes.Store(job.ID.String(), rank.Name)
			pool.Submit(job)
		}
		pool.Close()
	}()

	for result := range pool.Results() {
		rankNameVal, _ := outcomes.Load(result.ID.String())
		rankName, _ := rankNameVal.(string)
		if result.Err != nil {
			log.Error("rank preparation failed", "rank", rankName, "err", result.Err)
			continue
		}
		rank := findRank(manifest, rankName)
		out := outputPath(rank.AttackWAV)
		if err := writePipe(out, result.Pipe); err != nil {
			log.Error("writing prepared pipe", "rank", rankName, "err", err)
			continue
		}
		log.Info("rank prepared", "rank", rankName, "out", out)
	}

	if err := pool.Err(); err != nil {
		log.Fatal("organ-prep finished with errors", "err", err)
	}
}

func buildJob(reader wav.Reader, rank organconf.Rank, bits sampleprep.Bits, gain float32) (sampleprep.Job, error) {
	attack, err := readWAV(reader, rank.AttackWAV)
	if err != nil {
		return sampleprep.Job{}, fmt.Errorf("attack %s: %w", rank.AttackWAV, err)
	}
	releases := make([]*wav.RawPipe, 0, len(rank.ReleaseWAVs))
	for _, path := range rank.ReleaseWAVs {
		rel, err := readWAV(reader, path)
		if err != nil {
			return sampleprep.Job{}, fmt.Errorf("release %s: %w", path, err)
		}
		releases = append(releases, rel)
	}
	return sampleprep.Job{
		ID:       uuid.New(),
		Attack:   attack,
		Releases: releases,
		Gain:     gain,
		Bits:     bits,
	}, nil
}

func readWAV(reader wav.Reader, path string) (*wav.RawPipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pipe, warnings, err := reader.ReadPipe(f)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		obslog.Default().Warn("wav warning", "path", path, "warning", w)
	}
	return pipe, nil
}

func writePipe(path string, pipe *sampleprep.PreparedPipe) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(pipe)
}

func outputPath(attackWAV string) string {
	dir := filepath.Dir(attackWAV)
	base := strings.TrimSuffix(filepath.Base(attackWAV), filepath.Ext(attackWAV))
	return filepath.Join(dir, base+".organpipe")
}

func findRank(m *organconf.RankManifest, name string) organconf.Rank {
	for _, r := range m.Ranks {
		if r.Name == name {
			return r
		}
	}
	return organconf.Rank{}
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
