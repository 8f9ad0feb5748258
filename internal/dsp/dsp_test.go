package dsp

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-sonar/algorithms/harmonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, fs, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(fs))
	}
	return x
}

func TestReflectIndex(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{0, 5, 0},
		{4, 5, 4},
		{-1, 5, 1},
		{-2, 5, 2},
		{5, 5, 3},
		{6, 5, 2},
		{-9, 5, 1},
		{3, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reflectIndex(tt.i, tt.n), "reflectIndex(%d, %d)", tt.i, tt.n)
	}
}

func TestSTFTPeakBin(t *testing.T) {
	fs := 8000
	winSize := 256
	binHz := float64(fs) / float64(winSize)
	x := sine(binHz*20, fs, fs/2)

	spec, err := STFT(x, winSize, 64)
	require.NoError(t, err)
	require.Len(t, spec, winSize/2+1)
	assert.Len(t, spec[0], NumFrames(len(x), winSize, 64))

	mid := len(spec[0]) / 2
	best := 0
	for k := range spec {
		if spec[k][mid] > spec[best][mid] {
			best = k
		}
	}
	assert.Equal(t, 20, best)
}

func TestSTFTRejectsEmpty(t *testing.T) {
	_, err := STFT(nil, 256, 64)
	assert.ErrorIs(t, err, ErrEmptySignal)
}

func TestMFCCShape(t *testing.T) {
	fs := 22050
	x := sine(440, fs, fs)
	p := DefaultMFCCParams()

	X, err := MFCC(x, fs, 2048, 512, p)
	require.NoError(t, err)
	require.Len(t, X, p.NMFCC)
	assert.Len(t, X[0], NumFrames(len(x), 2048, 512))
	for _, row := range X {
		for _, v := range row {
			assert.False(t, math.IsNaN(v))
		}
	}
}

func TestNumFramesCentered(t *testing.T) {
	assert.Equal(t, 5, NumFrames(1024, 256, 256))
	assert.Equal(t, 4, NumFrames(1024, 255, 256))
	assert.Equal(t, 0, NumFrames(0, 256, 64))
}

func TestSTFTOddWindowFrameCount(t *testing.T) {
	x := sine(440, 8000, 1024)
	spec, err := STFT(x, 255, 256)
	require.NoError(t, err)
	require.Len(t, spec, 128)
	assert.Len(t, spec[0], 4)
}

func TestReflectPad(t *testing.T) {
	assert.Equal(t, []float64{3, 2, 1, 2, 3, 4, 3, 2}, reflectPad([]float64{1, 2, 3, 4}, 2))
}

func TestMFCCPeriodicSignalIsStationary(t *testing.T) {
	// The hop is a whole number of periods, so interior frames are identical
	fs := 8000
	x := sine(1000, fs, fs)
	p := DefaultMFCCParams()
	p.NMFCC = 8

	X, err := MFCC(x, fs, 512, 128, p)
	require.NoError(t, err)
	mid := len(X[0]) / 2
	for c := range X {
		assert.InDelta(t, X[c][mid], X[c][mid+1], 1e-6, "coefficient %d", c)
	}
}

func TestLogAmplitudeClipsDynamicRange(t *testing.T) {
	S := [][]float64{{1, 1e-12}, {1e-3, 0}}
	LogAmplitude(S, 20)
	assert.InDelta(t, 0, S[0][0], 1e-9)
	assert.InDelta(t, -20, S[0][1], 1e-9)
	assert.InDelta(t, -20, S[1][0], 1e-9)
	assert.InDelta(t, -20, S[1][1], 1e-9)
}

func TestHPCPConcertA(t *testing.T) {
	fs := 22050
	x := sine(440, fs, fs)

	C, err := HPCP(x, fs, 2048, 512, DefaultHPCPParams(12))
	require.NoError(t, err)
	require.Len(t, C, 12)

	mid := len(C[0]) / 2
	assert.InDelta(t, 1.0, C[0][mid], 1e-12)
	for b := 1; b < 12; b++ {
		assert.Less(t, C[b][mid], 1.0)
	}
}

func TestSelectPeaksKeepsStrongestInRange(t *testing.T) {
	winSize := 64
	fs := 6400 // 100 Hz per bin
	mag := make([]float64, winSize/2+1)
	mag[0], mag[1] = 9, 8 // DC shoulder below MinFreq
	mag[5] = 3
	mag[10] = 5
	mag[20] = 4
	mag[31] = 7 // 3100 Hz, above MaxFreq

	p := DefaultHPCPParams(12)
	p.MinFreq, p.MaxFreq, p.MaxPeaks = 200, 3000, 2

	detector := harmonic.NewSpectralPeaks(fs, math.SmallestNonzeroFloat64, 0, len(mag))
	peaks := selectPeaks(detector, mag, winSize, p)
	require.Len(t, peaks, 2)
	assert.InDelta(t, 1000, peaks[0].Frequency, 1e-9)
	assert.InDelta(t, 2000, peaks[1].Frequency, 1e-9)
}

func TestAccumulateHPCPHarmonicDecay(t *testing.T) {
	p := DefaultHPCPParams(12)
	p.Harmonics = 2
	profile := make([]float64, 12)

	// 880 Hz votes for A as fundamental and for A an octave down as its
	// second harmonic; both land in bin 0
	accumulateHPCP(profile, []harmonic.SpectralPeak{{Frequency: 880, Magnitude: 1}}, p)
	assert.InDelta(t, 1.6, profile[0], 1e-12)
	for b := 1; b < 12; b++ {
		assert.InDelta(t, 0, profile[b], 1e-12)
	}
}

func TestResampleIdentity(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, x, Resample(x, 5))
}

func TestResampleBandlimited(t *testing.T) {
	n := 64
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Cos(2 * math.Pi * 3 * float64(i) / float64(n))
	}

	up := Resample(x, 2*n)
	require.Len(t, up, 2*n)
	for i, v := range up {
		assert.InDelta(t, math.Cos(2*math.Pi*3*float64(i)/float64(2*n)), v, 1e-9)
	}

	down := Resample(up, n)
	for i, v := range down {
		assert.InDelta(t, x[i], v, 1e-9)
	}
}

func TestResizeIdentityAndConstant(t *testing.T) {
	img := [][]float64{{1, 2, 3}, {4, 5, 6}}
	assert.Equal(t, img, Resize(img, 2, 3))

	flat := [][]float64{{2, 2, 2, 2}, {2, 2, 2, 2}, {2, 2, 2, 2}}
	out := Resize(flat, 7, 2)
	require.Len(t, out, 7)
	for _, row := range out {
		require.Len(t, row, 2)
		for _, v := range row {
			assert.InDelta(t, 2.0, v, 1e-12)
		}
	}
}

func TestResizeVectorPreservesMean(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	y := ResizeVector(x, 4)
	require.Len(t, y, 4)
	assert.InDelta(t, 3.5, (y[0]+y[1]+y[2]+y[3])/4, 1e-9)
	assert.Less(t, y[0], y[3])
}

func TestGaussianKernelNormalized(t *testing.T) {
	k := GaussianKernel(3, 0, 12)
	sum := 0.0
	for _, v := range k {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestGaussianFilterDerivativeOfRamp(t *testing.T) {
	n := 100
	X := make([][]float64, n)
	for i := range X {
		x := float64(i - n/2)
		X[i] = []float64{x, 2 * x}
	}

	d1, err := GaussianFilter1D(X, 2, 1)
	require.NoError(t, err)
	d2, err := GaussianFilter1D(X, 2, 2)
	require.NoError(t, err)

	// Away from the clamped edges the ramp has slope 1 and 2, no curvature
	for i := 20; i < 80; i++ {
		assert.InDelta(t, 1.0, d1[i][0], 1e-2)
		assert.InDelta(t, 2.0, d1[i][1], 2e-2)
		assert.InDelta(t, 0.0, d2[i][0], 1e-2)
	}
}

func TestGaussianFilterRejectsBadArgs(t *testing.T) {
	_, err := GaussianFilter1D([][]float64{{1}}, 0, 0)
	assert.Error(t, err)
	_, err = GaussianFilter1D([][]float64{{1}}, 1, 4)
	assert.Error(t, err)
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 3, 4}, Linspace(1, 4, 4))
	assert.Equal(t, []float64{7}, Linspace(7, 9, 1))
	assert.Nil(t, Linspace(0, 1, 0))
}
