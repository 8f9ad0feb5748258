// Package beats estimates tempo and beat positions with a dynamic
// programming beat tracker driven by a spectral-flux onset envelope.
//
// Onsets use sonido's mel filterbank and spectral flux. Tempo is searched
// here because the estimate must follow a tempo bias.
package beats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/RyanBlaney/cover-benchmark/internal/dsp"
	"github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"github.com/RyanBlaney/sonido-sonar/algorithms/windowing"
)

var (
	// ErrEmptyAudio is returned when there is nothing to track
	ErrEmptyAudio = errors.New("beats: empty audio")
	// ErrNoBeats is returned when fewer than two beats survive tracking
	ErrNoBeats = errors.New("beats: fewer than two beats detected")
)

// Params controls onset detection, tempo estimation and beat selection
type Params struct {
	FFTSize   int
	MelBands  int
	MaxTempo  float64 // BPM ceiling for the tempo search
	TempoSpan float64 // width of the log-normal tempo prior in octaves
	ACSize    float64 // autocorrelation horizon in seconds
	Tightness float64 // how strictly beats follow the estimated period
	TrimBeats bool
}

// DefaultParams returns the tracker settings used for block features
func DefaultParams() Params {
	return Params{
		FFTSize:   2048,
		MelBands:  128,
		MaxTempo:  320,
		TempoSpan: 1,
		ACSize:    8,
		Tightness: 100,
		TrimBeats: true,
	}
}

// Result is the output of a tracking run
type Result struct {
	Tempo float64 // BPM
	Beats []int   // frame indices at the tracker hop size
	Onset []float64
}

// Tracker finds beats in mono audio
type Tracker struct {
	params Params
}

// NewTracker creates a tracker with the given params
func NewTracker(params Params) *Tracker {
	return &Tracker{params: params}
}

// Track is shorthand for NewTracker(DefaultParams()).Track
func Track(x []float64, fs int, tempoBias float64, hopSize int) (float64, []int, error) {
	res, err := NewTracker(DefaultParams()).Track(x, fs, tempoBias, hopSize)
	if err != nil {
		return 0, nil, err
	}
	return res.Tempo, res.Beats, nil
}

// Track estimates the tempo, biased towards tempoBias BPM, and the beat
// frames of x. Beat indices are frame numbers at hopSize, so they can index
// any feature computed with the same hop and centered frames.
func (t *Tracker) Track(x []float64, fs int, tempoBias float64, hopSize int) (*Result, error) {
	if len(x) == 0 {
		return nil, ErrEmptyAudio
	}
	if fs <= 0 || hopSize <= 0 || tempoBias <= 0 {
		return nil, fmt.Errorf("beats: invalid arguments fs=%d hop=%d bias=%g", fs, hopSize, tempoBias)
	}

	onset, err := t.OnsetStrength(x, fs, hopSize)
	if err != nil {
		return nil, err
	}

	frameRate := float64(fs) / float64(hopSize)
	tempo := t.EstimateTempo(onset, frameRate, tempoBias)
	if tempo <= 0 {
		return nil, ErrNoBeats
	}

	beats := t.trackBeats(onset, frameRate, tempo)
	if len(beats) < 2 {
		return nil, ErrNoBeats
	}

	return &Result{Tempo: tempo, Beats: beats, Onset: onset}, nil
}

// OnsetStrength computes the positive spectral flux of the log-mel
// spectrogram per frame. The first frame has strength zero.
func (t *Tracker) OnsetStrength(x []float64, fs, hopSize int) ([]float64, error) {
	frames, err := dsp.CenteredFrames(x, t.params.FFTSize, hopSize, windowing.NewHann(t.params.FFTSize, false))
	if err != nil {
		return nil, fmt.Errorf("failed to compute onset spectrogram: %w", err)
	}

	scale := spectral.NewMelScale()
	bank := scale.CreateMelFilterBank(t.params.MelBands, t.params.FFTSize, fs, 0, float64(fs)/2)

	mel := make([][]float64, len(frames))
	power := make([]float64, t.params.FFTSize/2+1)
	for f, mag := range frames {
		for k, v := range mag {
			power[k] = v * v
		}
		mel[f] = scale.ApplyFilterBank(power, bank)
	}
	dsp.LogAmplitude(mel, 80)

	flux := spectral.NewSpectralFlux().Compute(mel)
	return append([]float64{0}, flux...), nil
}

// EstimateTempo picks the autocorrelation lag of the onset envelope that
// maximizes log-autocorrelation plus a log-normal prior centered at
// tempoBias.
func (t *Tracker) EstimateTempo(onset []float64, frameRate, tempoBias float64) float64 {
	maxLag := min(int(math.Round(t.params.ACSize*frameRate)), len(onset)-1)
	if maxLag < 1 {
		return 0
	}

	ac := autocorrelate(onset, maxLag)
	if ac[0] <= 0 {
		return 0
	}

	best, bestScore := -1, math.Inf(-1)
	for lag := 1; lag <= maxLag; lag++ {
		bpm := 60 * frameRate / float64(lag)
		if bpm > t.params.MaxTempo {
			continue
		}
		r := math.Max(ac[lag]/ac[0], 0)
		prior := (math.Log2(bpm) - math.Log2(tempoBias)) / t.params.TempoSpan
		score := math.Log1p(1e6*r) - 0.5*prior*prior
		if score > bestScore {
			best, bestScore = lag, score
		}
	}
	if best < 0 {
		return 0
	}
	return 60 * frameRate / float64(best)
}

func autocorrelate(x []float64, maxLag int) []float64 {
	ac := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		s := 0.0
		for i := lag; i < len(x); i++ {
			s += x[i] * x[i-lag]
		}
		ac[lag] = s
	}
	return ac
}

func (t *Tracker) trackBeats(onset []float64, frameRate, tempo float64) []int {
	period := int(math.Round(60 * frameRate / tempo))
	if period < 1 || len(onset) == 0 {
		return nil
	}

	local := localScore(normalizeOnset(onset), period)
	backlink, cumscore := t.dynamicProgram(local, period)

	last := lastBeat(cumscore)
	if last < 0 {
		return nil
	}

	beats := []int{last}
	for backlink[beats[len(beats)-1]] >= 0 {
		beats = append(beats, backlink[beats[len(beats)-1]])
	}
	for i, j := 0, len(beats)-1; i < j; i, j = i+1, j-1 {
		beats[i], beats[j] = beats[j], beats[i]
	}

	if t.params.TrimBeats {
		beats = trimBeats(local, beats)
	}
	return beats
}

func normalizeOnset(onset []float64) []float64 {
	n := float64(len(onset))
	mean := 0.0
	for _, v := range onset {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range onset {
		variance += (v - mean) * (v - mean)
	}
	std := 1.0
	if len(onset) > 1 {
		std = math.Sqrt(variance / (n - 1))
	}
	out := make([]float64, len(onset))
	for i, v := range onset {
		if std > 0 {
			out[i] = v / std
		}
	}
	return out
}

// localScore smooths the onset envelope with a Gaussian whose width is tied
// to the beat period.
func localScore(onset []float64, period int) []float64 {
	win := make([]float64, 2*period+1)
	for i := range win {
		x := float64(i-period) * 32 / float64(period)
		win[i] = math.Exp(-0.5 * x * x)
	}
	out := make([]float64, len(onset))
	for i := range onset {
		s := 0.0
		for k, w := range win {
			j := i + k - period
			if j >= 0 && j < len(onset) {
				s += w * onset[j]
			}
		}
		out[i] = s
	}
	return out
}

func (t *Tracker) dynamicProgram(local []float64, period int) ([]int, []float64) {
	n := len(local)
	backlink := make([]int, n)
	cumscore := make([]float64, n)

	lo := -2 * period
	hi := -int(math.Round(float64(period) / 2))
	offsets := make([]int, 0, hi-lo+1)
	txwt := make([]float64, 0, hi-lo+1)
	for o := lo; o <= hi; o++ {
		offsets = append(offsets, o)
		r := math.Log(-float64(o) / float64(period))
		txwt = append(txwt, -t.params.Tightness*r*r)
	}

	peak := 0.0
	for _, v := range local {
		peak = math.Max(peak, v)
	}

	firstBeat := true
	for i, score := range local {
		bestK, best := -1, math.Inf(-1)
		for k, o := range offsets {
			j := i + o
			cand := txwt[k]
			if j >= 0 {
				cand += cumscore[j]
			}
			if cand > best {
				bestK, best = k, cand
			}
		}
		cumscore[i] = score + best

		if firstBeat && score < 0.01*peak {
			backlink[i] = -1
		} else {
			backlink[i] = i + offsets[bestK]
			firstBeat = false
		}
		if backlink[i] < 0 {
			backlink[i] = -1
		}
	}
	return backlink, cumscore
}

// lastBeat returns the last frame whose cumulative score is a strong local
// maximum relative to the median of all local maxima.
func lastBeat(cumscore []float64) int {
	n := len(cumscore)
	if n == 0 {
		return -1
	}
	isMax := make([]bool, n)
	var maxima []float64
	for i := range n {
		left := i == 0 || cumscore[i] > cumscore[i-1]
		right := i == n-1 || cumscore[i] >= cumscore[i+1]
		if left && right {
			isMax[i] = true
			maxima = append(maxima, cumscore[i])
		}
	}
	if len(maxima) == 0 {
		return n - 1
	}
	sort.Float64s(maxima)
	var med float64
	if m := len(maxima); m%2 == 1 {
		med = maxima[m/2]
	} else {
		med = 0.5 * (maxima[m/2-1] + maxima[m/2])
	}

	last := -1
	for i := range n {
		if isMax[i] && 2*cumscore[i] > med {
			last = i
		}
	}
	if last < 0 {
		return n - 1
	}
	return last
}

// trimBeats drops weak leading and trailing beats whose smoothed onset
// score falls below half the RMS.
func trimBeats(local []float64, beats []int) []int {
	if len(beats) == 0 {
		return beats
	}
	scores := make([]float64, len(beats))
	for i, b := range beats {
		scores[i] = local[b]
	}

	hann := []float64{0, 0.5, 1, 0.5, 0}
	smooth := make([]float64, len(scores))
	for i := range scores {
		s := 0.0
		for k, w := range hann {
			j := i + k - 2
			if j >= 0 && j < len(scores) {
				s += w * scores[j]
			}
		}
		smooth[i] = s
	}

	ms := 0.0
	for _, v := range smooth {
		ms += v * v
	}
	threshold := 0.5 * math.Sqrt(ms/float64(len(smooth)))

	first, last := -1, -1
	for i, v := range smooth {
		if v > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return beats[:0]
	}
	return beats[first : last+1]
}
