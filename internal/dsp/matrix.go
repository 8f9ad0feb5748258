package dsp

import "math"

// Linspace returns n evenly spaced values over [start, stop]
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Columns copies columns [from, to) of a [rows][cols] matrix into a
// [to-from][rows] matrix, i.e. a transposed slice.
func Columns(M [][]float64, from, to int) [][]float64 {
	out := make([][]float64, 0, max(to-from, 0))
	for c := from; c < to; c++ {
		v := make([]float64, len(M))
		for r := range M {
			v[r] = M[r][c]
		}
		out = append(out, v)
	}
	return out
}

// RowNorms returns the Euclidean norm of every row
func RowNorms(X [][]float64) []float64 {
	norms := make([]float64, len(X))
	for i, row := range X {
		s := 0.0
		for _, v := range row {
			s += v * v
		}
		norms[i] = math.Sqrt(s)
	}
	return norms
}

// Flatten concatenates the rows of X
func Flatten(X [][]float64) []float64 {
	n := 0
	for _, row := range X {
		n += len(row)
	}
	out := make([]float64, 0, n)
	for _, row := range X {
		out = append(out, row...)
	}
	return out
}

// RowMeans returns the mean of every row
func RowMeans(X [][]float64) []float64 {
	means := make([]float64, len(X))
	for i, row := range X {
		if len(row) == 0 {
			continue
		}
		s := 0.0
		for _, v := range row {
			s += v
		}
		means[i] = s / float64(len(row))
	}
	return means
}

// Transpose returns the [cols][rows] transpose of a rectangular matrix
func Transpose(M [][]float64) [][]float64 {
	if len(M) == 0 {
		return nil
	}
	out := make([][]float64, len(M[0]))
	for c := range out {
		out[c] = make([]float64, len(M))
		for r, row := range M {
			out[c][r] = row[c]
		}
	}
	return out
}
