package organconf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rank describes one pipe-organ rank's source recordings: the attack/
// sustain WAV, its release recordings, and the MIDI base note the first
// pipe in the rank sounds at.
type Rank struct {
	Name         string   `yaml:"name"`
	AttackWAV    string   `yaml:"attack_wav"`
	ReleaseWAVs  []string `yaml:"release_wavs"`
	BaseNote     int      `yaml:"base_note"`
	OutputBits   int      `yaml:"output_bits,omitempty"`
	LoopOverride *string  `yaml:"loop_marker,omitempty"`
}

// RankManifest is the top-level YAML document organ-prep reads to learn
// which WAV files make up the organ being prepared.
type RankManifest struct {
	Ranks []Rank `yaml:"ranks"`
}

// LoadRankManifest parses path as a RankManifest.
func LoadRankManifest(path string) (*RankManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("organconf: reading rank manifest %s: %w", path, err)
	}
	return ParseRankManifest(data)
}

// ParseRankManifest parses data as a RankManifest, validating that every
// rank names an attack recording and a unique name.
func ParseRankManifest(data []byte) (*RankManifest, error) {
	var m RankManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("organconf: parsing rank manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Ranks))
	for _, r := range m.Ranks {
		if r.Name == "" {
			return nil, fmt.Errorf("organconf: rank manifest has an entry with no name")
		}
		if r.AttackWAV == "" {
			return nil, fmt.Errorf("organconf: rank %q has no attack_wav", r.Name)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("organconf: duplicate rank name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return &m, nil
}
