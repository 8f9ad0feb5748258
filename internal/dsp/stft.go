package dsp

import (
	"errors"
	"fmt"
	"math/cmplx"
	"runtime"

	"github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"github.com/RyanBlaney/sonido-sonar/algorithms/windowing"
)

var (
	// ErrEmptySignal is returned when a transform is asked to work on no samples
	ErrEmptySignal = errors.New("dsp: empty signal")
)

// STFT computes a centered short-time Fourier magnitude spectrogram.
//
// The signal is reflect-padded by winSize/2 on both sides so that frame t is
// centered on sample t*hopSize. The result is laid out [bins][frames] with
// winSize/2+1 bins.
func STFT(x []float64, winSize, hopSize int) ([][]float64, error) {
	frames, err := CenteredFrames(x, winSize, hopSize, windowing.NewHann(winSize, false))
	if err != nil {
		return nil, err
	}
	return Transpose(frames), nil
}

// CenteredFrames returns the magnitude spectra of reflect-padded, windowed
// frames laid out [frames][bins].
func CenteredFrames(x []float64, winSize, hopSize int, win spectral.Window) ([][]float64, error) {
	if len(x) == 0 {
		return nil, ErrEmptySignal
	}
	if winSize < 2 || hopSize < 1 {
		return nil, fmt.Errorf("dsp: invalid STFT geometry win=%d hop=%d", winSize, hopSize)
	}

	padded := reflectPad(x, winSize/2)

	// sonido's STFT starts numCPU/2 workers for short inputs, none on one CPU
	if runtime.NumCPU() < 2 {
		return serialFrames(padded, winSize, hopSize, win)
	}

	res, err := spectral.NewSTFT().ComputeWithWindow(padded, winSize, hopSize, 0, win)
	if err != nil {
		return nil, fmt.Errorf("failed to compute STFT: %w", err)
	}
	return res.Magnitude, nil
}

func serialFrames(x []float64, winSize, hopSize int, win spectral.Window) ([][]float64, error) {
	fft := spectral.NewFFT()
	numFrames := (len(x)-winSize)/hopSize + 1
	numBins := winSize/2 + 1

	frame := make([]float64, winSize)
	out := make([][]float64, numFrames)
	for t := range numFrames {
		copy(frame, x[t*hopSize:t*hopSize+winSize])
		if err := win.ApplyInPlace(frame); err != nil {
			return nil, err
		}
		coeffs := fft.Compute(frame)
		out[t] = make([]float64, numBins)
		for k := range numBins {
			out[t][k] = cmplx.Abs(coeffs[k])
		}
	}
	return out, nil
}

// NumFrames returns the number of centered frames STFT produces for n samples
func NumFrames(n, winSize, hopSize int) int {
	if n <= 0 || hopSize <= 0 || winSize <= 0 {
		return 0
	}
	return 1 + (n+2*(winSize/2)-winSize)/hopSize
}

// reflectPad extends x by pad samples on each side, mirroring about the end
// samples without repeating them (numpy "reflect" padding).
func reflectPad(x []float64, pad int) []float64 {
	out := make([]float64, len(x)+2*pad)
	for i := range out {
		out[i] = x[reflectIndex(i-pad, len(x))]
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
