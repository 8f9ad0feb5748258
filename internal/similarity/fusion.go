package similarity

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// AffinityMu scales the adaptive kernel bandwidth of Affinity
const AffinityMu = 0.5

// Affinity converts a symmetric distance matrix into a similarity matrix
// with a per-pair bandwidth taken from the mean distance of each point to
// its K nearest neighbours.
func Affinity(D [][]float64, K int, mu float64) [][]float64 {
	n := len(D)
	sym := make([][]float64, n)
	for i := range sym {
		sym[i] = make([]float64, n)
		for j := range sym[i] {
			if i != j {
				sym[i][j] = 0.5 * (D[i][j] + D[j][i])
			}
		}
	}

	kk := min(K+1, n)
	meanDist := make([]float64, n)
	sorted := make([]float64, n)
	for i, row := range sym {
		copy(sorted, row)
		sort.Float64s(sorted)
		s := 0.0
		for _, v := range sorted[:kk] {
			s += v
		}
		// the zero self distance is among the neighbours
		meanDist[i] = s / float64(kk) * float64(K+1) / float64(K)
	}

	W := make([][]float64, n)
	for i := range W {
		W[i] = make([]float64, n)
		for j := range W[i] {
			eps := (meanDist[i] + meanDist[j] + sym[i][j]) / 3
			if eps == 0 {
				W[i][j] = 1
				continue
			}
			d := sym[i][j]
			W[i][j] = math.Exp(-d * d / (2 * mu * mu * eps * eps))
		}
	}
	return W
}

// transitionMatrix is half the identity plus half the row-normalized
// off-diagonal affinities
func transitionMatrix(W [][]float64) *mat.Dense {
	n := len(W)
	P := mat.NewDense(n, n, nil)
	for i, row := range W {
		s := 0.0
		for j, v := range row {
			if i != j {
				s += v
			}
		}
		if s == 0 {
			s = 1
		}
		for j, v := range row {
			if i != j {
				P.Set(i, j, 0.5*v/s)
			}
		}
		P.Set(i, i, 0.5)
	}
	return P
}

// sparseKernel keeps the K largest affinities of each row, normalized to
// sum to one
func sparseKernel(W [][]float64, K int) *mat.Dense {
	n := len(W)
	S := mat.NewDense(n, n, nil)
	k := min(K, n)
	idx := make([]int, n)
	for i, row := range W {
		for j := range idx {
			idx[j] = j
		}
		sort.SliceStable(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })
		s := 0.0
		for _, j := range idx[:k] {
			s += row[j]
		}
		if s == 0 {
			s = 1
		}
		for _, j := range idx[:k] {
			S.Set(i, j, row[j]/s)
		}
	}
	return S
}

// FuseNetworks performs similarity network fusion of affinity matrices of
// the same size: each network's transition matrix is repeatedly diffused
// through its own K-nearest-neighbour kernel using the mean of the other
// networks, with reg times the identity added after every step. The fused
// result is the mean of the final matrices.
func FuseNetworks(Ws [][][]float64, K, iters int, reg float64) ([][]float64, error) {
	if len(Ws) == 0 {
		return nil, fmt.Errorf("similarity: nothing to fuse")
	}
	n := len(Ws[0])
	for _, W := range Ws {
		if len(W) != n {
			return nil, fmt.Errorf("%w: affinity sizes %d and %d", ErrShapeMismatch, n, len(W))
		}
	}
	if n == 0 {
		return [][]float64{}, nil
	}

	Ps := make([]*mat.Dense, len(Ws))
	Ss := make([]*mat.Dense, len(Ws))
	for i, W := range Ws {
		Ps[i] = transitionMatrix(W)
		Ss[i] = sparseKernel(W, K)
	}

	if len(Ws) > 1 {
		next := make([]*mat.Dense, len(Ws))
		for i := range next {
			next[i] = mat.NewDense(n, n, nil)
		}
		mean := mat.NewDense(n, n, nil)
		var tmp mat.Dense
		for range iters {
			// next is written from the previous round only; no network sees
			// another network's update from the same round
			for i := range Ps {
				mean.Zero()
				for k, P := range Ps {
					if k != i {
						mean.Add(mean, P)
					}
				}
				mean.Scale(1/float64(len(Ps)-1), mean)

				tmp.Mul(Ss[i], mean)
				next[i].Mul(&tmp, Ss[i].T())
				if reg > 0 {
					for d := range n {
						next[i].Set(d, d, next[i].At(d, d)+reg)
					}
				}
			}
			Ps, next = next, Ps
		}
	}

	fused := mat.NewDense(n, n, nil)
	for _, P := range Ps {
		fused.Add(fused, P)
	}
	fused.Scale(1/float64(len(Ps)), fused)

	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, fused)
	}
	return out, nil
}

// jointDistance assembles [[SSM1, CSM], [CSMᵀ, SSM2]]
func jointDistance(ssm1, ssm2, csm [][]float64) [][]float64 {
	n, m := len(ssm1), len(ssm2)
	J := make([][]float64, n+m)
	for i := range J {
		J[i] = make([]float64, n+m)
	}
	for i := range n {
		copy(J[i][:n], ssm1[i])
		copy(J[i][n:], csm[i])
		for j := range m {
			J[n+j][i] = csm[i][j]
		}
	}
	for j := range m {
		copy(J[n+j][n:], ssm2[j])
	}
	return J
}
