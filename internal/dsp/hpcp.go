package dsp

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sonar/algorithms/harmonic"
	"github.com/RyanBlaney/sonido-sonar/algorithms/windowing"
	"gonum.org/v1/gonum/floats"
)

// HPCPParams controls harmonic pitch class profile extraction
type HPCPParams struct {
	NChromaBins   int
	MinFreq       float64
	MaxFreq       float64
	MaxPeaks      int
	Harmonics     int
	HarmonicDecay float64 // weight of harmonic h is HarmonicDecay^(h-1)
	WindowSize    float64 // width of the cos^2 bin weighting in semitones
	ReferenceFreq float64 // frequency of bin 0
}

// DefaultHPCPParams returns the HPCP settings used for chroma block features
func DefaultHPCPParams(nChromaBins int) HPCPParams {
	return HPCPParams{
		NChromaBins:   nChromaBins,
		MinFreq:       40,
		MaxFreq:       5000,
		MaxPeaks:      100,
		Harmonics:     8,
		HarmonicDecay: 0.6,
		WindowSize:    4.0 / 3.0,
		ReferenceFreq: 440,
	}
}

// HPCP computes a chromagram laid out [NChromaBins][frames]. Frames are
// centered on multiples of hopSize, so they line up with STFT/MFCC frames of
// the same hop. Each frame is normalized to a maximum of 1.
//
// Peaks come from sonido's detector with parabolic refinement. The profile
// itself is accumulated here: every peak votes for the pitch classes of the
// fundamentals it can be harmonic h of, weighted HarmonicDecay^(h-1), with
// bin 0 at ReferenceFreq.
func HPCP(x []float64, fs, winSize, hopSize int, p HPCPParams) ([][]float64, error) {
	if len(x) == 0 {
		return nil, ErrEmptySignal
	}
	if p.NChromaBins <= 0 || winSize < 4 || hopSize < 1 {
		return nil, fmt.Errorf("dsp: invalid HPCP geometry bins=%d win=%d hop=%d", p.NChromaBins, winSize, hopSize)
	}

	frames, err := CenteredFrames(x, winSize, hopSize, windowing.NewBlackmanHarris(winSize, true))
	if err != nil {
		return nil, fmt.Errorf("failed to compute HPCP spectra: %w", err)
	}

	detector := harmonic.NewSpectralPeaks(fs, math.SmallestNonzeroFloat64, 0, winSize/2+1)
	chroma := make([][]float64, p.NChromaBins)
	for b := range chroma {
		chroma[b] = make([]float64, len(frames))
	}
	profile := make([]float64, p.NChromaBins)

	for t, mag := range frames {
		peaks := selectPeaks(detector, mag, winSize, p)
		for i := range profile {
			profile[i] = 0
		}
		accumulateHPCP(profile, peaks, p)

		peak := floats.Max(profile)
		for b, v := range profile {
			if peak > 0 {
				v /= peak
			}
			chroma[b][t] = v
		}
	}

	return chroma, nil
}

// selectPeaks keeps the MaxPeaks strongest refined peaks inside
// [MinFreq, MaxFreq].
func selectPeaks(detector *harmonic.SpectralPeaks, mag []float64, winSize int, p HPCPParams) []harmonic.SpectralPeak {
	raw := detector.DetectPeaks(mag, winSize)
	refined := detector.RefineWithInterpolation(mag, raw, winSize)

	peaks := refined[:0]
	for _, pk := range refined {
		if pk.Frequency < p.MinFreq || pk.Frequency > p.MaxFreq {
			continue
		}
		peaks = append(peaks, pk)
		if p.MaxPeaks > 0 && len(peaks) == p.MaxPeaks {
			break
		}
	}
	return peaks
}

func accumulateHPCP(profile []float64, peaks []harmonic.SpectralPeak, p HPCPParams) {
	n := float64(p.NChromaBins)
	semitonesPerBin := 12.0 / n
	halfWidth := p.WindowSize / 2

	for _, pk := range peaks {
		energy := pk.Magnitude * pk.Magnitude
		weight := 1.0
		for h := 1; h <= max(p.Harmonics, 1); h++ {
			f := pk.Frequency / float64(h)
			pos := math.Mod(n*math.Log2(f/p.ReferenceFreq), n)
			if pos < 0 {
				pos += n
			}
			for b := range p.NChromaBins {
				d := math.Abs(pos - float64(b))
				d = math.Min(d, n-d) * semitonesPerBin
				if d > halfWidth {
					continue
				}
				c := math.Cos(math.Pi * d / p.WindowSize)
				profile[b] += weight * c * c * energy
			}
			weight *= p.HarmonicDecay
		}
	}
}
