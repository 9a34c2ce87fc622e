// Package reltable builds and queries release-alignment tables: a way to
// pick the sample position, within an attack/sustain recording, that best
// matches the start of a release recording so the crossfade between them
// doesn't produce cancellation or a gain mismatch.
//
// Grounded on opendiapason's src/reltable.h/reltable.c.
package reltable

import (
	"math"
	"sort"
)

// MaxEntries mirrors RELTABLE_MAX_ENTRIES: a table never holds more than
// this many piecewise-linear segments, per release.
const MaxEntries = 128

// Entry is one piecewise-linear segment of a built table, tagged with which
// release recording it belongs to.
type Entry struct {
	ReleaseID  int
	LastSample uint32
	M          float64
	B          float64
	Gain       float32
	MeanErr    float64
}

// Table is a release-alignment table spanning every release a pipe has: a
// small ordered-by-LastSample list of segments, each giving a linear
// position-to-position mapping (m, b), a crossfade gain, and the release it
// applies to.
//
// The original's reltable_build only ever saw one release at a time;
// app_sampletest.c's caller looped over releases and merged the resulting
// tables itself. Build folds that orchestration in here, since every caller
// in this repo (sampleprep.BuildAlignment) needs the merged form anyway.
type Table struct {
	Entries []Entry

	onFabsGuard func(sample float64)
}

// Find returns the release-relative sample position to jump into for the
// given attack/sustain sample position, a linearly interpolated crossfade
// gain, and which release the matched segment belongs to.
//
// The fmod(fabs(...)) below exactly matches the original's
// "TODO: FABS INSERTED TO PREVENT NEGATIVE OUTPUT! MAY BE A BUG ELSEWHERE."
// — kept bit-for-bit since changing it changes existing alignment audio.
// The onFabsGuard callback passed to Build, if non-nil, is invoked whenever
// the pre-fabs argument was negative, so callers can observe how often this
// guard actually fires without changing the numeric behavior.
func (t *Table) Find(sample float64) (pos float64, gain float32, releaseID int) {
	if len(t.Entries) == 0 {
		panic("reltable: table has no entries")
	}
	i := 0
	for i < len(t.Entries)-1 {
		if sample <= float64(t.Entries[i].LastSample) {
			break
		}
		i++
	}

	if i == 0 {
		gain = t.Entries[0].Gain
	} else {
		sg := t.Entries[i-1].Gain
		eg := t.Entries[i].Gain
		ss := float64(t.Entries[i-1].LastSample)
		es := float64(t.Entries[i].LastSample)
		gain = sg + float32((sample-(ss+1))*float64(eg-sg)/(es-(ss+1)))
	}

	arg := sample - t.Entries[i].B
	if arg < 0 && t.onFabsGuard != nil {
		t.onFabsGuard(sample)
	}
	pos = math.Mod(math.Abs(arg), t.Entries[i].M)
	return pos, gain, t.Entries[i].ReleaseID
}

// relnode is one node of the binary tree Build grows while refining
// segments; leaves become Table entries.
type relnode struct {
	modfac, b            float64
	startIdx, endIdx     int
	idealError, actualErr float64
	relGain              float32
	left, right          *relnode
}

func buildRelnode(rn *relnode, syncPositions []uint64, gainVec []float32, start, end int, errorVec []float64) {
	if end-start == 0 {
		rn.b = float64(syncPositions[start])
		rn.relGain = gainVec[start]
		rn.modfac = 1.0
	} else {
		var meanY, meanX float64
		rn.relGain = 0
		for i := start; i <= end; i++ {
			meanY += float64(syncPositions[i])
			meanX += float64(i)
			if gainVec[i] > rn.relGain {
				rn.relGain = gainVec[i]
			}
		}
		n := float64(end - start + 1)
		meanY /= n
		meanX /= n
		var sumN, sumD float64
		for i := start; i <= end; i++ {
			sumN += (float64(i) - meanX) * (float64(syncPositions[i]) - meanY)
			sumD += (float64(i) - meanX) * (float64(i) - meanX)
		}
		rn.modfac = sumN / sumD
		rn.b = meanY - rn.modfac*meanX
		rn.b = rn.modfac*float64(start) + rn.b
	}

	rn.startIdx = start
	rn.endIdx = end

	errLen := len(errorVec)
	var emin, eapprox float64
	for i := start; i <= end; i++ {
		approx := rn.b + float64(i-start)*rn.modfac
		actual := syncPositions[i]

		x1 := int(math.Floor(approx))
		interp := math.Min(1.0, math.Max(0.0, approx-float64(x1)))
		x2 := x1 + 1

		if x1 < 0 {
			x1 = 0
		}
		if x2 < 0 {
			x2 = 0
		}
		if x1 >= errLen {
			x1 = errLen - 1
		}
		if x2 >= errLen {
			x2 = errLen - 1
		}

		emin += errorVec[actual]
		eapprox += errorVec[x1]*(1.0-interp) + errorVec[x2]*interp
	}

	rn.idealError = emin
	rn.actualErr = eapprox
	rn.left, rn.right = nil, nil
}

func findWorstNode(root *relnode) *relnode {
	if root.left != nil && root.right != nil {
		w1 := findWorstNode(root.left)
		w2 := findWorstNode(root.right)
		if w1.startIdx == w1.endIdx {
			return w2
		}
		if w2.startIdx == w2.endIdx {
			return w1
		}
		if w1.actualErr-w1.idealError > w2.actualErr-w2.idealError {
			return w1
		}
		return w2
	}
	return root
}

func recursiveConstructTable(node *relnode, table *Table, syncPositions []uint64) {
	if node.left != nil && node.right != nil {
		recursiveConstructTable(node.left, table, syncPositions)
		recursiveConstructTable(node.right, table, syncPositions)
		return
	}
	if len(table.Entries) >= MaxEntries {
		panic("reltable: exceeded maximum table entries")
	}
	m := node.modfac
	b := node.b
	for b > float64(syncPositions[node.startIdx]) {
		b -= node.modfac
	}
	count := node.endIdx - node.startIdx + 1
	table.Entries = append(table.Entries, Entry{
		LastSample: uint32(syncPositions[node.endIdx]),
		B:          b,
		M:          m,
		Gain:       node.relGain,
		MeanErr:    (node.actualErr - node.idealError) / float64(count),
	})
}

// buildTree constructs the binary tree of linear segments by repeatedly
// splitting whichever leaf has the greatest gap between its actual and
// ideal interpolation error, stopping once that gap drops below 0.3 or the
// 160-node working budget (matching the original's fixed stack buffer) is
// exhausted.
func buildTree(syncPositions []uint64, gainVec []float32, errorVec []float64) *Table {
	const nodeBudget = 160
	nodes := make([]relnode, nodeBudget)
	nbuf := nodeBudget

	root := &nodes[0]
	nbuf--
	buildRelnode(root, syncPositions, gainVec, 0, len(syncPositions)-1, errorVec)

	for nbuf > 2 {
		w := findWorstNode(root)
		if w.actualErr-w.idealError < 0.3 || w.startIdx == w.endIdx {
			break
		}

		var eh float64
		i := w.startIdx
		for ; i <= w.endIdx && eh < w.actualErr; i++ {
			approx := w.b + float64(i-w.startIdx)*w.modfac
			x1 := int(approx)
			interp := approx - float64(x1)
			x2 := x1 + 1
			errLen := len(errorVec)
			if x1 >= errLen {
				x1 = errLen - 1
			}
			if x2 >= errLen {
				x2 = errLen - 1
			}
			eh += 2.0 * (errorVec[x1]*(1.0-interp) + errorVec[x2]*interp)
		}
		i--

		var stop1, start2 int
		if i == w.startIdx {
			stop1 = i
			start2 = i + 1
		} else {
			stop1 = i - 1
			start2 = i
		}

		nbuf--
		w.left = &nodes[nbuf]
		nbuf--
		w.right = &nodes[nbuf]

		buildRelnode(w.left, syncPositions, gainVec, w.startIdx, stop1, errorVec)
		buildRelnode(w.right, syncPositions, gainVec, start2, w.endIdx, errorVec)
	}

	table := &Table{}
	recursiveConstructTable(root, table, syncPositions)
	return table
}

// Build computes a release-alignment table spanning every release recording
// a pipe has, from one shared power-envelope and one cross-correlation/
// power pair per release.
//
// envelope[i] is the power of N consecutive attack/sustain samples starting
// at i, summed over channels, shared by every release. corrs[r][i] is the
// correlation of those same N samples against release r's first N samples,
// summed over channels; relPowers[r] is release r's own power over its
// first N samples, summed over channels. period is the audio's pitch period
// in samples, used to pick the search stride (and neighborhood radius)
// around each candidate alignment point. onFabsGuard, if non-nil, is stored
// on the returned Table and invoked by Find per the fabs-guard note there.
//
// corrs and relPowers must have the same length; each release's segments
// are built independently via buildOne, tagged with their release index,
// and merged into one LastSample-ordered table.
func Build(envelope []float32, corrs [][]float32, relPowers []float32, period float32, onFabsGuard func(sample float64)) *Table {
	if len(corrs) != len(relPowers) {
		panic("reltable: corrs and relPowers must have the same length")
	}
	merged := &Table{onFabsGuard: onFabsGuard}
	for r := range corrs {
		t := buildOne(envelope, corrs[r], relPowers[r], period)
		for _, e := range t.Entries {
			e.ReleaseID = r
			merged.Entries = append(merged.Entries, e)
		}
	}
	sort.Slice(merged.Entries, func(i, j int) bool {
		return merged.Entries[i].LastSample < merged.Entries[j].LastSample
	})
	return merged
}

// buildOne computes a release-alignment table from power-envelope and
// cross-correlation statistics between an attack/sustain recording and a
// single release recording — the original reltable_build's exact scope.
func buildOne(envelopeBuf, corrBuf []float32, relPower float32, period float32) *Table {
	n := len(envelopeBuf)
	errorVec := make([]float64, n)
	var err float64
	var errpos int

	for i := 0; i < n; i++ {
		f := relPower + envelopeBuf[i] - 2.0*corrBuf[i]
		var v float64
		if f > 0 {
			v = math.Sqrt(float64(f))
		}
		errorVec[i] = v
		if i == 0 || v < err {
			err = v
			errpos = i
		}
	}

	lf := 2 * intMax(1, int(period/15.0))
	skip := intMax(1, int(period-float32(lf)/2))
	relScale := 1.0 / relPower

	var epos []uint64
	var egain []float32

	// Positions before the best sync position, walking backwards.
	for i := errpos; i > skip; {
		i -= skip
		lep := i
		le := errorVec[lep]
		for j := 1; j < lf && i >= j; j++ {
			if errorVec[i-j] < le {
				lep = i - j
				le = errorVec[lep]
			}
		}
		egain = append(egain, corrBuf[lep]*float32(relScale))
		epos = append(epos, uint64(lep))
		i = lep
	}

	// Reverse so positions run in increasing order.
	for i, j := 0, len(epos)-1; i < j; i, j = i+1, j-1 {
		epos[i], epos[j] = epos[j], epos[i]
		egain[i], egain[j] = egain[j], egain[i]
	}

	epos = append(epos, uint64(errpos))
	egain = append(egain, corrBuf[errpos]*float32(relScale))

	for i := errpos + skip; i < n; i += skip {
		lep := i
		le := errorVec[lep]
		for j := 1; j < lf && i+j < n; j++ {
			if errorVec[i+j] < le {
				lep = i + j
				le = errorVec[lep]
			}
		}
		egain = append(egain, corrBuf[lep]*float32(relScale))
		epos = append(epos, uint64(lep))
		i = lep
	}

	return buildTree(epos, egain, errorVec)
}

func intMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}
