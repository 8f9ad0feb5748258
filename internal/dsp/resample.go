package dsp

import (
	"github.com/mjibson/go-dsp/fft"
)

// Resample changes the length of x to num samples with the Fourier method:
// the spectrum is truncated or zero-padded (splitting or joining the Nyquist
// bin for even lengths) and transformed back. The signal is assumed
// periodic.
func Resample(x []float64, num int) []float64 {
	nx := len(x)
	if num <= 0 {
		return nil
	}
	if nx == 0 {
		return make([]float64, num)
	}
	if nx == num {
		out := make([]float64, num)
		copy(out, x)
		return out
	}

	X := fft.FFTReal(x)
	Y := make([]complex128, num)

	n := min(num, nx)
	nyq := n/2 + 1
	copy(Y[:nyq], X[:nyq])
	if n > 2 {
		neg := n - nyq
		copy(Y[num-neg:], X[nx-neg:])
	}

	if n%2 == 0 {
		if num < nx {
			Y[n/2] += X[nx-n/2]
		} else {
			Y[n/2] *= 0.5
			Y[num-n/2] = Y[n/2]
		}
	}

	y := fft.IFFT(Y)
	scale := float64(num) / float64(nx)
	out := make([]float64, num)
	for i, v := range y {
		out[i] = real(v) * scale
	}
	return out
}
