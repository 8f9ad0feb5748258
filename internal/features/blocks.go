package features

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// normalizeBlock mean-centers the frames of x ([frames][dims]) and scales
// each frame to unit length. The input is not modified.
func normalizeBlock(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return x
	}
	dims := len(x[0])
	col := make([]float64, len(x))
	means := make([]float64, dims)
	for d := range dims {
		for f, row := range x {
			col[f] = row[d]
		}
		means[d] = stat.Mean(col, nil)
	}

	out := make([][]float64, len(x))
	for f, row := range x {
		out[f] = make([]float64, dims)
		floats.SubTo(out[f], row, means)
	}
	normalizeRows(out)
	return out
}

// normalizeRows scales each row to unit Euclidean length in place; zero
// rows are left alone.
func normalizeRows(x [][]float64) {
	for _, row := range x {
		if n := floats.Norm(row, 2); n > 0 {
			floats.Scale(1/n, row)
		}
	}
}

// SSM returns the Euclidean self-similarity (distance) matrix of the rows
// of x.
func SSM(x [][]float64) [][]float64 {
	n := len(x)
	D := make([][]float64, n)
	for i := range D {
		D[i] = make([]float64, n)
	}
	for i := range n {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(x[i], x[j], 2)
			D[i][j] = d
			D[j][i] = d
		}
	}
	return D
}

// LowerTriangle flattens the strictly lower triangle of a square matrix in
// row-major order.
func LowerTriangle(D [][]float64) []float64 {
	n := len(D)
	out := make([]float64, 0, n*(n-1)/2)
	for r := range n {
		out = append(out, D[r][:r]...)
	}
	return out
}

// D2Histogram bins the distinct pairwise distances of D over [0, 2] into
// bins equal-width bins, normalized to sum 1. Unit-norm frames never lie
// further than 2 apart.
func D2Histogram(D [][]float64, bins int) []float64 {
	hist := make([]float64, bins)
	total := 0.0
	for r := range D {
		for c := range r {
			v := D[r][c]
			if v < 0 || v > 2 {
				continue
			}
			b := min(int(v/2*float64(bins)), bins-1)
			hist[b]++
			total++
		}
	}
	if total > 0 {
		floats.Scale(1/total, hist)
	}
	return hist
}

// Geodesic returns the arc length travelled over every window of 2*delta
// frames.
func Geodesic(x [][]float64, delta int) ([]float64, error) {
	span := 2 * delta
	if len(x) <= span {
		return nil, fmt.Errorf("%w: %d frames, geodesic needs more than %d", ErrBlockTooShort, len(x), span)
	}
	cum := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		cum[i] = cum[i-1] + floats.Distance(x[i], x[i-1], 2)
	}
	out := make([]float64, len(x)-span)
	for i := range out {
		out[i] = cum[i+span] - cum[i]
	}
	return out, nil
}
