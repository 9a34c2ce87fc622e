// Package organconf loads the engine's layered configuration: a TOML file
// for engine/loader tuning (with pflag values layered on top at the
// caller's choice) and a YAML rank manifest describing which WAV recordings
// make up each rank.
package organconf

import (
	"fmt"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EngineConfig is the set of tunables organ-prep and organ-play read from
// a TOML config file, with field names matching the TOML keys one-to-one
// (koanf's default "." delimiter, flat keys).
type EngineConfig struct {
	LoaderThreads         int      `koanf:"loader_threads"`
	OutputBits            int      `koanf:"output_bits"`
	DitherPasses          int      `koanf:"dither_passes"`
	BlockSize             int      `koanf:"block_size"`
	PollRateHz            int      `koanf:"poll_rate_hz"`
	PreserveUnknownChunks bool     `koanf:"preserve_unknown_chunks"`
	SampleLibraryPaths    []string `koanf:"sample_library_paths"`
}

// defaultConfig matches the values organ-prep/organ-play fall back to when
// no TOML file is given and no flag overrides a key.
func defaultConfig() EngineConfig {
	return EngineConfig{
		LoaderThreads:      4,
		OutputBits:         16,
		DitherPasses:       2,
		BlockSize:          256,
		PollRateHz:         1000,
		SampleLibraryPaths: nil,
	}
}

// Load reads path as TOML into a fresh EngineConfig seeded with
// defaultConfig's values, optionally layering flags's set values on top
// (flags may be nil to skip that layer entirely). Matches go-musicfox's
// load-file-then-layer-flags koanf pattern.
func Load(path string, flags *pflag.FlagSet) (*EngineConfig, error) {
	k := koanf.New(".")
	cfg := defaultConfig()
	if err := k.Load(rawbytesFromStruct(cfg), nil); err != nil {
		return nil, fmt.Errorf("organconf: seeding defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("organconf: loading %s: %w", path, err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("organconf: layering flags: %w", err)
		}
	}

	var out EngineConfig
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("organconf: unmarshal: %w", err)
	}
	return &out, nil
}

// LoadBytes is Load's in-memory counterpart, used by tests and by callers
// that already have TOML text rather than a path on disk (the rawbytes
// provider's reason for being in this package's dependency set).
func LoadBytes(tomlText []byte, flags *pflag.FlagSet) (*EngineConfig, error) {
	k := koanf.New(".")
	cfg := defaultConfig()
	if err := k.Load(rawbytesFromStruct(cfg), nil); err != nil {
		return nil, fmt.Errorf("organconf: seeding defaults: %w", err)
	}
	if len(tomlText) > 0 {
		if err := k.Load(rawbytes.Provider(tomlText), toml.Parser()); err != nil {
			return nil, fmt.Errorf("organconf: parsing inline config: %w", err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("organconf: layering flags: %w", err)
		}
	}
	var out EngineConfig
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("organconf: unmarshal: %w", err)
	}
	return &out, nil
}

// rawbytesFromStruct wraps cfg in structProvider, a koanf.Provider whose
// Read returns cfg's fields as a flat map keyed by their koanf key names
// (ReadBytes is unsupported), so defaults are seeded without any file
// encoding. The key names in Read are written out by hand and must match
// EngineConfig's struct tags.
func rawbytesFromStruct(cfg EngineConfig) koanf.Provider {
	return structProvider{cfg}
}

type structProvider struct{ cfg EngineConfig }

func (s structProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("organconf: structProvider does not support ReadBytes")
}

func (s structProvider) Read() (map[string]interface{}, error) {
	paths := make([]string, 0, len(s.cfg.SampleLibraryPaths))
	paths = append(paths, s.cfg.SampleLibraryPaths...)
	return map[string]interface{}{
		"loader_threads":          s.cfg.LoaderThreads,
		"output_bits":             s.cfg.OutputBits,
		"dither_passes":           s.cfg.DitherPasses,
		"block_size":              s.cfg.BlockSize,
		"poll_rate_hz":            s.cfg.PollRateHz,
		"preserve_unknown_chunks": s.cfg.PreserveUnknownChunks,
		"sample_library_paths":    paths,
	}, nil
}
