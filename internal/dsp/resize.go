package dsp

import "math"

// Resize rescales a row-major matrix to rows x cols with a separable
// triangle (bilinear) filter. When shrinking, the filter support grows with
// the scale factor so every input sample contributes, which keeps thin
// features from aliasing away.
func Resize(img [][]float64, rows, cols int) [][]float64 {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	out := make([][]float64, rows)
	for r := range out {
		out[r] = make([]float64, cols)
	}
	if len(img) == 0 || len(img[0]) == 0 {
		return out
	}

	inRows, inCols := len(img), len(img[0])

	// Horizontal pass
	tmp := make([][]float64, inRows)
	hw := triangleWeights(inCols, cols)
	for r, row := range img {
		tmp[r] = hw.apply(row, nil)
	}

	// Vertical pass
	vw := triangleWeights(inRows, rows)
	col := make([]float64, inRows)
	res := make([]float64, rows)
	for c := range cols {
		for r := range inRows {
			col[r] = tmp[r][c]
		}
		res = vw.apply(col, res)
		for r := range rows {
			out[r][c] = res[r]
		}
	}

	return out
}

// ResizeVector rescales a 1-D sequence to n samples with the same filter
// as Resize.
func ResizeVector(x []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(x) == 0 {
		return make([]float64, n)
	}
	return triangleWeights(len(x), n).apply(x, nil)
}

type resampleWeights struct {
	start   []int
	weights [][]float64
}

func triangleWeights(inLen, outLen int) *resampleWeights {
	scale := float64(inLen) / float64(outLen)
	filterScale := math.Max(scale, 1)
	support := filterScale

	rw := &resampleWeights{
		start:   make([]int, outLen),
		weights: make([][]float64, outLen),
	}
	for i := range outLen {
		center := (float64(i) + 0.5) * scale
		lo := max(int(center-support+0.5), 0)
		hi := min(int(center+support+0.5), inLen)
		if hi <= lo {
			hi = min(lo+1, inLen)
			lo = hi - 1
		}

		w := make([]float64, hi-lo)
		total := 0.0
		for k := lo; k < hi; k++ {
			v := 1 - math.Abs((float64(k)-center+0.5)/filterScale)
			if v < 0 {
				v = 0
			}
			w[k-lo] = v
			total += v
		}
		if total == 0 {
			// degenerate footprint: nearest sample
			for k := range w {
				w[k] = 0
			}
			w[min(max(int(center), lo), hi-1)-lo] = 1
			total = 1
		}
		for k := range w {
			w[k] /= total
		}
		rw.start[i] = lo
		rw.weights[i] = w
	}
	return rw
}

func (rw *resampleWeights) apply(in, out []float64) []float64 {
	if len(out) != len(rw.weights) {
		out = make([]float64, len(rw.weights))
	}
	for i, w := range rw.weights {
		s := 0.0
		lo := rw.start[i]
		for k, wk := range w {
			s += wk * in[lo+k]
		}
		out[i] = s
	}
	return out
}
