package organconf

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadBytesAppliesDefaultsWhenConfigEmpty(t *testing.T) {
	cfg, err := LoadBytes(nil, nil)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.LoaderThreads)
	require.Equal(t, 16, cfg.OutputBits)
	require.Equal(t, 2, cfg.DitherPasses)
}

func TestLoadBytesOverridesDefaultsFromTOML(t *testing.T) {
	toml := []byte(`
loader_threads = 8
output_bits = 12
sample_library_paths = ["/ranks/a", "/ranks/b"]
`)
	cfg, err := LoadBytes(toml, nil)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.LoaderThreads)
	require.Equal(t, 12, cfg.OutputBits)
	require.Equal(t, []string{"/ranks/a", "/ranks/b"}, cfg.SampleLibraryPaths)
	require.Equal(t, 2, cfg.DitherPasses, "unset keys keep their default")
}

func TestLoadBytesFlagsOverrideTOML(t *testing.T) {
	toml := []byte(`loader_threads = 8`)

	flags := pflag.NewFlagSet("organ-prep", pflag.ContinueOnError)
	flags.Int("loader_threads", 4, "")
	require.NoError(t, flags.Set("loader_threads", "16"))

	cfg, err := LoadBytes(toml, flags)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.LoaderThreads)
}

func TestParseRankManifestValidatesRanks(t *testing.T) {
	doc := []byte(`
ranks:
  - name: principal8
    attack_wav: principal8/c4.wav
    release_wavs: [principal8/c4_rel1.wav]
    base_note: 60
  - name: flute4
    attack_wav: flute4/c4.wav
    base_note: 60
`)
	m, err := ParseRankManifest(doc)
	require.NoError(t, err)
	require.Len(t, m.Ranks, 2)
	require.Equal(t, "principal8", m.Ranks[0].Name)
	require.Len(t, m.Ranks[0].ReleaseWAVs, 1)
}

func TestParseRankManifestRejectsDuplicateNames(t *testing.T) {
	doc := []byte(`
ranks:
  - name: principal8
    attack_wav: a.wav
  - name: principal8
    attack_wav: b.wav
`)
	_, err := ParseRankManifest(doc)
	require.Error(t, err)
}

func TestParseRankManifestRejectsMissingAttack(t *testing.T) {
	doc := []byte(`
ranks:
  - name: principal8
`)
	_, err := ParseRankManifest(doc)
	require.Error(t, err)
}
