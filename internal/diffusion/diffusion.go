// Package diffusion embeds a point set, given by its distance matrix, into
// diffusion-map coordinates.
package diffusion

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultThreshold zeroes kernel entries too small to matter
	DefaultThreshold = 5e-4
	// DefaultNumEigs caps the number of eigenpairs kept
	DefaultNumEigs = 51
)

// ErrEigen is returned when the eigendecomposition does not converge
var ErrEigen = errors.New("diffusion: eigendecomposition failed")

// Map computes diffusion coordinates of the N points described by the
// symmetric distance matrix D. The Gaussian kernel bandwidth is kappa times
// the largest distance. t is the diffusion time; t <= -1 autotunes it by
// weighting each eigenvector with lambda/(1-lambda), any larger t is used
// as the exponent of lambda. The result is
// [N][k] with k = min(N, DefaultNumEigs), eigenvalues ascending.
func Map(D [][]float64, kappa, t float64) ([][]float64, error) {
	n := len(D)
	if n == 0 {
		return nil, nil
	}
	if kappa <= 0 {
		return nil, fmt.Errorf("diffusion: kappa must be positive, got %g", kappa)
	}

	maxD := 0.0
	for _, row := range D {
		if len(row) != n {
			return nil, fmt.Errorf("diffusion: distance matrix is not square")
		}
		maxD = math.Max(maxD, floats.Max(row))
	}
	eps := kappa * maxD
	if eps == 0 {
		eps = 1
	}

	K, sqrtSum := normalizedKernel(D, eps)

	var es mat.EigenSym
	if ok := es.Factorize(K, true); !ok {
		return nil, ErrEigen
	}
	values := es.Values(nil)
	var vectors mat.Dense
	es.VectorsTo(&vectors)

	k := min(n, DefaultNumEigs)
	offset := n - k
	lam := make([]float64, k)
	copy(lam, values[offset:])
	top := lam[k-1]
	if top != 0 {
		floats.Scale(1/top, lam)
	}

	lamt := make([]float64, k)
	if t > -1 {
		for i, l := range lam {
			lamt[i] = math.Pow(l, t)
		}
	} else {
		copy(lamt, lam)
		for i := 0; i < k-1; i++ {
			// repeated top eigenvalues come from disconnected components
			if 1-lam[i] > 1e-12 {
				lamt[i] = lam[i] / (1 - lam[i])
			}
		}
	}

	out := make([][]float64, n)
	for i := range n {
		out[i] = make([]float64, k)
		for c := range k {
			// right eigenvector, scaled by lambda^t, back in Euclidean form
			out[i][c] = vectors.At(i, offset+c) / sqrtSum[i] * lamt[c] / sqrtSum[i]
		}
	}
	return out, nil
}

// normalizedKernel returns the symmetrically normalized Gaussian kernel
// K_ij / sqrt(r_i r_j) and sqrt(r). Row sums r are taken before entries
// below DefaultThreshold are zeroed in the normalized kernel.
func normalizedKernel(D [][]float64, eps float64) (*mat.SymDense, []float64) {
	n := len(D)
	K := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			K.SetSym(i, j, math.Exp(-D[i][j]*D[i][j]/(2*eps*eps)))
		}
	}
	sqrtSum := make([]float64, n)
	for i := range n {
		s := 0.0
		for j := range n {
			s += K.At(i, j)
		}
		sqrtSum[i] = math.Sqrt(s)
	}

	for i := range n {
		for j := i; j < n; j++ {
			v := K.At(i, j) / (sqrtSum[i] * sqrtSum[j])
			if v < DefaultThreshold {
				v = 0
			}
			K.SetSym(i, j, v)
		}
	}
	return K, sqrtSum
}
