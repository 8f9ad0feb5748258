package similarity

// Alignment scoring constants
const (
	MatchScore    = 1.0
	MismatchScore = -1.0
	GapOpen       = -0.5
	GapExtend     = -0.7
)

// SmithWaterman runs a local alignment over the binary cross-similarity
// matrix B. A path may advance one block in both songs, or two blocks in one
// song and one in the other. Matches score +1 and mismatches -1; leaving a
// run of matches costs GapOpen and staying off it costs GapExtend.
// It returns the best score and the (len(B)+1) x (len(B[0])+1) score matrix.
func SmithWaterman(B [][]float64) (float64, [][]float64) {
	n := len(B)
	m := 0
	if n > 0 {
		m = len(B[0])
	}
	D := make([][]float64, n+1)
	for i := range D {
		D[i] = make([]float64, m+1)
	}

	// cell reads B at one-based (i, j), zero outside the matrix
	cell := func(i, j int) float64 {
		if i < 1 || j < 1 {
			return 0
		}
		return B[i-1][j-1]
	}
	delta := func(prev, cur float64) float64 {
		switch {
		case cur > 0:
			return 0
		case prev > 0:
			return GapOpen
		}
		return GapExtend
	}

	best := 0.0
	for i := 3; i <= n; i++ {
		for j := 3; j <= m; j++ {
			cur := cell(i, j)
			ms := MismatchScore
			if cur > 0 {
				ms = MatchScore
			}
			d1 := D[i-1][j-1] + ms + delta(cell(i-1, j-1), cur)
			d2 := D[i-2][j-1] + ms + delta(cell(i-2, j-1), cur)
			d3 := D[i-1][j-2] + ms + delta(cell(i-1, j-2), cur)
			v := max(d1, d2, d3, 0)
			D[i][j] = v
			best = max(best, v)
		}
	}
	return best, D
}
