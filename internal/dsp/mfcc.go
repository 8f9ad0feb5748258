package dsp

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"github.com/RyanBlaney/sonido-sonar/algorithms/windowing"
	"gonum.org/v1/gonum/floats"
)

// MFCCParams controls the mel-cepstral front end
type MFCCParams struct {
	NBands    int     // mel bands
	FMax      float64 // upper edge of the filterbank in Hz
	NMFCC     int     // cepstral coefficients kept
	LifterExp float64 // coefficient k is scaled by k^LifterExp
	TopDB     float64 // dynamic range kept below the loudest mel bin
}

// DefaultMFCCParams returns the front end used for block features
func DefaultMFCCParams() MFCCParams {
	return MFCCParams{
		NBands:    40,
		FMax:      8000,
		NMFCC:     20,
		LifterExp: 0.6,
		TopDB:     80,
	}
}

// MFCC computes liftered mel-frequency cepstral coefficients laid out
// [NMFCC][frames]. Frames follow the STFT centering convention so beat
// frame indices computed with the same hop line up with MFCC columns.
//
// The filterbank and DCT-II matrix come from sonido's MFCC front end. The
// mel bands are taken on magnitudes, converted to decibels with a global
// dynamic range floor, and liftered by k^LifterExp.
func MFCC(x []float64, fs, winSize, hopSize int, p MFCCParams) ([][]float64, error) {
	if p.NBands <= 0 || p.NMFCC <= 0 {
		return nil, fmt.Errorf("dsp: invalid MFCC params bands=%d coeffs=%d", p.NBands, p.NMFCC)
	}

	frames, err := CenteredFrames(x, winSize, hopSize, windowing.NewHann(winSize, false))
	if err != nil {
		return nil, fmt.Errorf("failed to compute STFT for MFCC: %w", err)
	}

	fmax := p.FMax
	if fmax <= 0 || fmax > float64(fs)/2 {
		fmax = float64(fs) / 2
	}
	front := spectral.NewMFCCWithParams(fs, spectral.MFCCParams{
		NumCoefficients: p.NMFCC,
		NumMelFilters:   p.NBands,
		LowFreq:         0,
		HighFreq:        fmax,
		UseLiftering:    false,
	})
	if err := front.Initialize(winSize); err != nil {
		return nil, fmt.Errorf("failed to initialize mel filterbank: %w", err)
	}
	bank := front.GetFilterBank()
	if len(bank) != p.NBands {
		return nil, fmt.Errorf("dsp: mel filterbank has %d bands, want %d", len(bank), p.NBands)
	}

	scale := spectral.NewMelScale()
	mel := make([][]float64, len(frames))
	for t, mag := range frames {
		mel[t] = scale.ApplyFilterBank(mag, bank)
	}
	LogAmplitude(mel, p.TopDB)

	basis := front.GetDCTMatrix()
	numFrames := len(frames)
	out := make([][]float64, p.NMFCC)
	for c := range p.NMFCC {
		out[c] = make([]float64, numFrames)
		for t := range numFrames {
			out[c][t] = floats.Dot(basis[c], mel[t])
		}
	}

	if p.LifterExp != 0 {
		for c := 1; c < p.NMFCC; c++ {
			floats.Scale(math.Pow(float64(c), p.LifterExp), out[c])
		}
	}

	return out, nil
}

// LogAmplitude converts S in place to decibels, 10*log10(max(1e-10, s)),
// and clips everything more than topDB below the maximum. topDB <= 0
// disables clipping.
func LogAmplitude(S [][]float64, topDB float64) {
	const amin = 1e-10
	peak := math.Inf(-1)
	for _, row := range S {
		for i, v := range row {
			row[i] = 10 * math.Log10(math.Max(amin, v))
			peak = math.Max(peak, row[i])
		}
	}
	if topDB <= 0 {
		return
	}
	floor := peak - topDB
	for _, row := range S {
		for i, v := range row {
			if v < floor {
				row[i] = floor
			}
		}
	}
}
