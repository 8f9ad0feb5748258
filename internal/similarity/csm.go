// Package similarity compares the block features of two songs: cross-
// similarity matrices, their mutual nearest-neighbour binarization, local
// alignment scoring, and fusion of several features into one matrix.
package similarity

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/cover-benchmark/internal/features"
)

var (
	// ErrUnknownCSMType is returned for an unsupported comparison type
	ErrUnknownCSMType = errors.New("similarity: unknown CSM type")
	// ErrShapeMismatch is returned when block dimensions of two songs differ
	ErrShapeMismatch = errors.New("similarity: feature dimensions differ")
)

// CSMType selects how two blocks are compared
type CSMType string

const (
	Euclidean CSMType = "Euclidean"
	Cosine    CSMType = "Cosine"
	CosineOTI CSMType = "CosineOTI"
	EMD1D     CSMType = "EMD1D"
)

// ParseCSMType validates a type name
func ParseCSMType(s string) (CSMType, error) {
	switch t := CSMType(s); t {
	case Euclidean, Cosine, CosineOTI, EMD1D:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCSMType, s)
}

// CSMTypeFor looks the comparison type of a feature up by exact name, then
// by name without its scale suffix, and falls back to Euclidean.
func CSMTypeFor(name string, types map[string]CSMType) CSMType {
	if t, ok := types[name]; ok {
		return t
	}
	if t, ok := types[features.BaseName(name)]; ok {
		return t
	}
	return Euclidean
}

// DefaultCSMTypes returns the comparison used for each block feature in the
// benchmark
func DefaultCSMTypes() map[string]CSMType {
	return map[string]CSMType{
		features.NameMFCCs:     Euclidean,
		features.NameSSMs:      Euclidean,
		features.NameGeodesics: Euclidean,
		"Jumps":                Euclidean,
		"Curvs":                Euclidean,
		"Tors":                 Euclidean,
		features.NameD2s:       EMD1D,
		features.NameChromas:   CosineOTI,
	}
}

// CSM computes the [len(X)][len(Y)] cross-similarity (distance) matrix
// between the blocks of two songs. o1 and o2 are only read by CosineOTI.
func CSM(X [][]float64, o1 *features.Other, Y [][]float64, o2 *features.Other, t CSMType) ([][]float64, error) {
	if len(X) > 0 && len(Y) > 0 && len(X[0]) != len(Y[0]) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrShapeMismatch, len(X[0]), len(Y[0]))
	}

	switch t {
	case Euclidean:
		return pairwise(X, Y, func(a, b []float64) float64 {
			return floats.Distance(a, b, 2)
		}), nil
	case Cosine:
		return cosineCSM(X, Y), nil
	case CosineOTI:
		if o1 == nil || o2 == nil || len(o1.ChromaMean) == 0 || len(o1.ChromaMean) != len(o2.ChromaMean) {
			return nil, fmt.Errorf("similarity: CosineOTI needs matching chroma means for both songs")
		}
		shift := OTI(o1.ChromaMean, o2.ChromaMean)
		rolled, err := rollChroma(X, len(o1.ChromaMean), shift)
		if err != nil {
			return nil, err
		}
		return cosineCSM(rolled, Y), nil
	case EMD1D:
		return emdCSM(X, Y), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCSMType, t)
}

func pairwise(X, Y [][]float64, dist func(a, b []float64) float64) [][]float64 {
	D := make([][]float64, len(X))
	for i, x := range X {
		D[i] = make([]float64, len(Y))
		for j, y := range Y {
			D[i][j] = dist(x, y)
		}
	}
	return D
}

func unitRows(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = append([]float64(nil), x...)
		if n := floats.Norm(x, 2); n > 0 {
			floats.Scale(1/n, out[i])
		}
	}
	return out
}

// cosineCSM is one minus the cosine similarity; zero rows compare as
// orthogonal to everything.
func cosineCSM(X, Y [][]float64) [][]float64 {
	return pairwise(unitRows(X), unitRows(Y), func(a, b []float64) float64 {
		return 1 - floats.Dot(a, b)
	})
}

// emdCSM is the 1-D earth mover's distance between blocks read as
// histograms: the L1 distance of their cumulative sums.
func emdCSM(X, Y [][]float64) [][]float64 {
	cum := func(M [][]float64) [][]float64 {
		out := make([][]float64, len(M))
		for i, row := range M {
			out[i] = make([]float64, len(row))
			floats.CumSum(out[i], row)
		}
		return out
	}
	return pairwise(cum(X), cum(Y), func(a, b []float64) float64 {
		return floats.Distance(a, b, 1)
	})
}

// OTI returns the optimal transposition index: the circular shift of c1
// that best aligns it with c2.
func OTI(c1, c2 []float64) int {
	n := len(c1)
	best, bestScore := 0, math.Inf(-1)
	for shift := range n {
		s := 0.0
		for k := range n {
			s += c1[((k-shift)%n+n)%n] * c2[k]
		}
		if s > bestScore {
			best, bestScore = shift, s
		}
	}
	return best
}

// rollChroma shifts the chroma bins of every frame in every block by shift.
// Blocks are flattened [frames][bins].
func rollChroma(X [][]float64, bins, shift int) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row)%bins != 0 {
			return nil, fmt.Errorf("%w: block of %d values is not a multiple of %d chroma bins", ErrShapeMismatch, len(row), bins)
		}
		out[i] = make([]float64, len(row))
		for f := 0; f < len(row); f += bins {
			for k := range bins {
				out[i][f+(k+shift)%bins] = row[f+k]
			}
		}
	}
	return out, nil
}
