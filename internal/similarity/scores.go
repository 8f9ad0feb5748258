package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/RyanBlaney/cover-benchmark/internal/features"
)

// Song is the block features of one song at one tempo level
type Song struct {
	Features features.Block
	Other    *features.Other
}

// Result is a scored comparison of two songs
type Result struct {
	CSM       [][]float64 `json:"-"`
	Binary    [][]float64 `json:"-"`
	Alignment [][]float64 `json:"-"`
	Score     float64     `json:"score"`
}

// ScoreFeature compares one feature: cross-similarity, mutual kNN binary
// matrix, then Smith-Waterman.
func ScoreFeature(X [][]float64, o1 *features.Other, Y [][]float64, o2 *features.Other, kappa float64, t CSMType) (*Result, error) {
	csm, err := CSM(X, o1, Y, o2, t)
	if err != nil {
		return nil, err
	}
	binary := BinaryMutual(csm, kappa)
	score, D := SmithWaterman(binary)
	return &Result{CSM: csm, Binary: binary, Alignment: D, Score: score}, nil
}

// sharedNames returns the features present in both songs, sorted
func sharedNames(a, b features.Block) []string {
	var names []string
	for name := range a {
		if _, ok := b[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ScoreORMerge binarizes the cross-similarity of every shared feature,
// crops them to the smallest block counts and ORs them before alignment.
// The returned CSM is nil.
func ScoreORMerge(s1, s2 Song, kappa float64, types map[string]CSMType) (*Result, error) {
	names := sharedNames(s1.Features, s2.Features)
	if len(names) == 0 {
		return nil, fmt.Errorf("similarity: songs share no features")
	}

	binaries := make([][][]float64, 0, len(names))
	rows, cols := math.MaxInt, math.MaxInt
	for _, name := range names {
		csm, err := CSM(s1.Features[name], s1.Other, s2.Features[name], s2.Other, CSMTypeFor(name, types))
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", name, err)
		}
		b := BinaryMutual(csm, kappa)
		binaries = append(binaries, b)
		rows = min(rows, len(s1.Features[name]))
		cols = min(cols, len(s2.Features[name]))
	}

	merged := make([][]float64, rows)
	for i := range merged {
		merged[i] = make([]float64, cols)
		for j := range cols {
			for _, b := range binaries {
				if b[i][j] > 0 {
					merged[i][j] = 1
					break
				}
			}
		}
	}
	score, D := SmithWaterman(merged)
	return &Result{Binary: merged, Alignment: D, Score: score}, nil
}

// ScoreEarlyFusion fuses all shared features before binarization: each
// feature contributes an affinity over the blocks of both songs, the
// affinities are combined by similarity network fusion with K neighbours
// over iters rounds, and the cross-song quadrant of the fused matrix becomes
// the CSM. Features are cropped to the smallest block counts first.
func ScoreEarlyFusion(s1, s2 Song, kappa float64, K, iters int, types map[string]CSMType) (*Result, error) {
	if K < 1 {
		return nil, fmt.Errorf("similarity: fusion needs K >= 1, got %d", K)
	}
	names := sharedNames(s1.Features, s2.Features)
	if len(names) == 0 {
		return nil, fmt.Errorf("similarity: songs share no features")
	}

	n, m := math.MaxInt, math.MaxInt
	for _, name := range names {
		n = min(n, len(s1.Features[name]))
		m = min(m, len(s2.Features[name]))
	}

	Ws := make([][][]float64, 0, len(names))
	for _, name := range names {
		X, Y := s1.Features[name][:n], s2.Features[name][:m]
		t := CSMTypeFor(name, types)
		ssm1, err := CSM(X, s1.Other, X, s1.Other, t)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", name, err)
		}
		ssm2, err := CSM(Y, s2.Other, Y, s2.Other, t)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", name, err)
		}
		csm, err := CSM(X, s1.Other, Y, s2.Other, t)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", name, err)
		}
		Ws = append(Ws, Affinity(jointDistance(ssm1, ssm2, csm), K, AffinityMu))
	}

	fused, err := FuseNetworks(Ws, K, iters, 1)
	if err != nil {
		return nil, err
	}

	csm := make([][]float64, n)
	similarity := make([][]float64, n)
	for i := range n {
		csm[i] = make([]float64, m)
		similarity[i] = make([]float64, m)
		for j := range m {
			csm[i][j] = fused[i][n+j] + fused[n+j][i]
			similarity[i][j] = math.Exp(-csm[i][j])
		}
	}

	binary := BinaryMutual(similarity, kappa)
	score, D := SmithWaterman(binary)
	return &Result{CSM: csm, Binary: binary, Alignment: D, Score: score}, nil
}
