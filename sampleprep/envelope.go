package sampleprep

import (
	"github.com/cbegin/organsampler/fastconv"
	"github.com/cbegin/organsampler/internal/obslog"
	"github.com/cbegin/organsampler/odfilter"
	"github.com/cbegin/organsampler/reltable"
)

// Correlation holds the per-release statistics EnvelopeAndCorrelation
// produces: the power envelope of the attack/sustain recording (shared
// across releases) and, per release, its cross-correlation against the
// attack/sustain recording plus its own power.
type Correlation struct {
	Envelope   []float32 // power envelope of the attack/sustain recording
	PerRelease []ReleaseCorr
	EnvWidth   int
}

type ReleaseCorr struct {
	Corr     []float32
	RelPower float32
}

// EnvelopeAndCorrelation computes the power envelope of the (already
// prefiltered) attack/sustain recording and, for every release, its
// cross-correlation against the attack/sustain recording and its own
// power — exactly the
// three buffers wavldr.c's load_smpl_lists builds before calling
// reltable_build.
//
// envWidth is period*2 rounded to the nearest integer, per
// "env_width = (unsigned)(as_bits->period * 2.0f + 0.5f)".
func EnvelopeAndCorrelation(fs *fastconv.FFTSet, raw *RawIngest) (*Correlation, error) {
	envWidth := int(raw.Period*2 + 0.5)
	if envWidth < 1 {
		envWidth = 1
	}

	filt, err := odfilter.NewFilter(fs, envWidth)
	if err != nil {
		return nil, err
	}
	tmps := odfilter.NewTemporaries(filt)

	n := len(raw.Attack[0])
	envelope := make([]float32, n)
	for ch := 0; ch < raw.Channels; ch++ {
		for i, v := range raw.Attack[ch] {
			envelope[i] += v * v
		}
	}

	filt.BuildRect(tmps, envWidth, 1.0/float32(envWidth))
	odfilter.RunInPlace(envelope, uint64(raw.SustainStart), uint64(n), uint(envWidth-1), true, tmps, filt)

	perRelease := make([]ReleaseCorr, len(raw.Releases))
	for ri, rel := range raw.Releases {
		var relPower float32
		mse := make([]float32, n)
		for ch := 0; ch < raw.Channels; ch++ {
			relPower += filt.BuildXcorr(tmps, envWidth, rel[ch], 1.0/float32(envWidth))
			odfilter.Run(raw.Attack[ch], mse, ch != 0, uint64(raw.SustainStart), uint64(n), uint(envWidth-1), true, tmps, filt)
		}
		relPower /= float32(envWidth)
		perRelease[ri] = ReleaseCorr{Corr: mse, RelPower: relPower}
	}

	return &Correlation{Envelope: envelope, PerRelease: perRelease, EnvWidth: envWidth}, nil
}

// BuildAlignment runs reltable.Build across every release's corr/relPower
// against the shared envelope in one call, wiring reltable's fabs-guard
// observer to obslog at Debug level per the resolved Open Question on
// Find's preserved "TODO: FABS INSERTED..." behavior.
func BuildAlignment(raw *RawIngest, corr *Correlation) *reltable.Table {
	corrs := make([][]float32, len(corr.PerRelease))
	relPowers := make([]float32, len(corr.PerRelease))
	for i, rc := range corr.PerRelease {
		corrs[i] = rc.Corr
		relPowers[i] = rc.RelPower
	}
	onFabsGuard := func(sample float64) {
		obslog.Default().Debug("reltable fabs guard triggered", "sample", sample)
	}
	return reltable.Build(corr.Envelope, corrs, relPowers, raw.Period, onFabsGuard)
}
