package dsp

import (
	"fmt"
	"math"
)

// GaussianKernel returns the order-th derivative of a normalized Gaussian
// sampled on [-radius, radius].
func GaussianKernel(sigma float64, order, radius int) []float64 {
	sigma2 := sigma * sigma
	phi := make([]float64, 2*radius+1)
	total := 0.0
	for i := range phi {
		x := float64(i - radius)
		phi[i] = math.Exp(-0.5 * x * x / sigma2)
		total += phi[i]
	}
	for i := range phi {
		phi[i] /= total
	}
	if order == 0 {
		return phi
	}

	// q holds polynomial coefficients such that the kernel is q(x)*phi(x);
	// each derivative maps q to q' - x*q/sigma^2.
	q := make([]float64, order+1)
	q[0] = 1
	next := make([]float64, order+1)
	for range order {
		for e := range next {
			next[e] = 0
			if e+1 <= order {
				next[e] += float64(e+1) * q[e+1]
			}
			if e >= 1 {
				next[e] -= q[e-1] / sigma2
			}
		}
		q, next = next, q
	}

	kernel := make([]float64, len(phi))
	for i := range phi {
		x := float64(i - radius)
		poly, xp := 0.0, 1.0
		for e := 0; e <= order; e++ {
			poly += q[e] * xp
			xp *= x
		}
		kernel[i] = poly * phi[i]
	}
	return kernel
}

// GaussianFilter1D smooths (order 0) or differentiates (order >= 1) every
// column of X, a [frames][dims] matrix, along the frame axis. The kernel is
// truncated at 4 sigma and the signal is extended by repeating its edge
// samples.
func GaussianFilter1D(X [][]float64, sigma float64, order int) ([][]float64, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("dsp: gaussian sigma must be positive, got %g", sigma)
	}
	if order < 0 || order > 3 {
		return nil, fmt.Errorf("dsp: unsupported gaussian derivative order %d", order)
	}

	n := len(X)
	out := make([][]float64, n)
	if n == 0 {
		return out, nil
	}
	dims := len(X[0])
	for i := range out {
		out[i] = make([]float64, dims)
	}

	radius := int(4*sigma + 0.5)
	kernel := GaussianKernel(sigma, order, radius)

	// out[i] = sum_m kernel(m) * X[i-m]
	for i := range n {
		for k, w := range kernel {
			m := k - radius
			src := min(max(i-m, 0), n-1)
			row := X[src]
			for d := range dims {
				out[i][d] += w * row[d]
			}
		}
	}
	return out, nil
}
