package similarity

import (
	"math"
	"sort"
)

// neighbourCount turns kappa into a neighbour count for rows of length m:
// a fraction of m when kappa < 1, otherwise kappa itself.
func neighbourCount(kappa float64, m int) int {
	var k int
	if kappa < 1 {
		k = int(math.Round(kappa * float64(m)))
	} else {
		k = int(kappa)
	}
	return min(max(k, 0), m)
}

// rowNeighbours marks, for each row of D, its k smallest entries
func rowNeighbours(D [][]float64, kappa float64) [][]bool {
	out := make([][]bool, len(D))
	for i, row := range D {
		out[i] = make([]bool, len(row))
		k := neighbourCount(kappa, len(row))
		idx := make([]int, len(row))
		for j := range idx {
			idx[j] = j
		}
		sort.SliceStable(idx, func(a, b int) bool { return row[idx[a]] < row[idx[b]] })
		for _, j := range idx[:k] {
			out[i][j] = true
		}
	}
	return out
}

// BinaryMutual keeps entry (i, j) of the distance matrix D when j is among
// the nearest neighbours of row i and i is among the nearest neighbours of
// column j. kappa is a fraction of the row (column) length when below 1 and
// a neighbour count otherwise; kappa == 0 keeps everything.
func BinaryMutual(D [][]float64, kappa float64) [][]float64 {
	n := len(D)
	out := make([][]float64, n)
	if n == 0 {
		return out
	}
	m := len(D[0])
	if kappa == 0 {
		for i := range out {
			out[i] = make([]float64, m)
			for j := range out[i] {
				out[i][j] = 1
			}
		}
		return out
	}

	rows := rowNeighbours(D, kappa)
	cols := rowNeighbours(transpose(D), kappa)
	for i := range out {
		out[i] = make([]float64, m)
		for j := range m {
			if rows[i][j] && cols[j][i] {
				out[i][j] = 1
			}
		}
	}
	return out
}

func transpose(D [][]float64) [][]float64 {
	if len(D) == 0 {
		return nil
	}
	T := make([][]float64, len(D[0]))
	for j := range T {
		T[j] = make([]float64, len(D))
		for i := range D {
			T[j][i] = D[i][j]
		}
	}
	return T
}
