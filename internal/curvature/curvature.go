// Package curvature computes multiscale derivative vectors of a time-ordered
// point cloud: velocity, curvature and torsion at each sample, and the
// scale-space images of their magnitudes.
package curvature

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/cover-benchmark/internal/dsp"
)

// Vectors returns maxOrder+1 matrices shaped like X ([frames][dims]):
// index 0 is X smoothed by a Gaussian of width sigma, index 1 the velocity,
// and index k >= 2 the k-th derivative with its projection onto orders
// 1..k-1 removed, divided by |velocity|^k. Zero velocity norms count as 1.
func Vectors(X [][]float64, maxOrder int, sigma float64) ([][][]float64, error) {
	if maxOrder < 1 || maxOrder > 3 {
		return nil, fmt.Errorf("curvature: max order must be in [1, 3], got %d", maxOrder)
	}

	smooth, err := dsp.GaussianFilter1D(X, sigma, 0)
	if err != nil {
		return nil, err
	}
	vel, err := dsp.GaussianFilter1D(X, sigma, 1)
	if err != nil {
		return nil, err
	}

	velNorm := make([]float64, len(vel))
	for i, v := range vel {
		velNorm[i] = floats.Norm(v, 2)
		if velNorm[i] == 0 {
			velNorm[i] = 1
		}
	}

	curvs := [][][]float64{smooth, vel}
	for order := 2; order <= maxOrder; order++ {
		d, err := dsp.GaussianFilter1D(X, sigma, order)
		if err != nil {
			return nil, err
		}
		for i, row := range d {
			for j := 1; j < order; j++ {
				basis := curvs[j][i]
				denom := floats.Dot(basis, basis)
				if denom == 0 {
					denom = 1
				}
				floats.AddScaled(row, -floats.Dot(row, basis)/denom, basis)
			}
			scale := 1.0
			for range order {
				scale *= velNorm[i]
			}
			floats.Scale(1/scale, row)
		}
		curvs = append(curvs, d)
	}
	return curvs, nil
}

// MultiresImages computes Vectors at every sigma and returns, for each order
// 0..maxOrder, an image [len(sigmas)][frames] of the per-frame vector norms.
func MultiresImages(X [][]float64, maxOrder int, sigmas []float64) ([][][]float64, error) {
	images := make([][][]float64, maxOrder+1)
	for order := range images {
		images[order] = make([][]float64, len(sigmas))
	}

	for s, sigma := range sigmas {
		curvs, err := Vectors(X, maxOrder, sigma)
		if err != nil {
			return nil, fmt.Errorf("sigma %g: %w", sigma, err)
		}
		for order, V := range curvs {
			images[order][s] = dsp.RowNorms(V)
		}
	}
	return images, nil
}
