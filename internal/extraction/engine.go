// Package extraction turns song files into tempo-levelled block features.
package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/cover-benchmark/internal/audio"
	"github.com/RyanBlaney/cover-benchmark/internal/beats"
	"github.com/RyanBlaney/cover-benchmark/internal/features"
)

// DefaultHopSize is the beat tracker hop in samples
const DefaultHopSize = 512

// Engine loads songs, tracks their beats at every tempo bias and extracts
// block features
type Engine struct {
	logger      logging.Logger
	hopSize     int
	tempoBiases []float64
	loader      *audio.Loader
	tracker     *beats.Tracker
	extractor   *features.Extractor
}

// EngineConfig contains configuration for the extraction engine
type EngineConfig struct {
	HopSize     int
	TempoBiases []float64
	MaxDuration time.Duration
	Features    features.Params
	Beats       beats.Params
	Logger      logging.Logger
}

// NewEngine creates a new extraction engine
func NewEngine(config *EngineConfig) (*Engine, error) {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	hop := config.HopSize
	if hop <= 0 {
		hop = DefaultHopSize
	}
	if len(config.TempoBiases) == 0 {
		return nil, fmt.Errorf("at least one tempo bias is required")
	}
	for _, b := range config.TempoBiases {
		if b <= 0 {
			return nil, fmt.Errorf("tempo bias must be positive, got %g", b)
		}
	}

	beatParams := config.Beats
	if beatParams.FFTSize == 0 {
		beatParams = beats.DefaultParams()
	}

	extractor, err := features.NewExtractor(config.Features, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		logger:      logger.WithFields(logging.Fields{"component": "extraction_engine"}),
		hopSize:     hop,
		tempoBiases: append([]float64(nil), config.TempoBiases...),
		loader:      audio.NewLoader(config.MaxDuration, logger),
		tracker:     beats.NewTracker(beatParams),
		extractor:   extractor,
	}, nil
}

// HopSize returns the beat tracker hop in samples
func (e *Engine) HopSize() int { return e.hopSize }

// TempoBiases returns the tempo biases every song is tracked with
func (e *Engine) TempoBiases() []float64 { return e.tempoBiases }

// Params returns the feature parameters
func (e *Engine) Params() features.Params { return e.extractor.Params() }

// ExtractSong loads the song at path and extracts all tempo levels.
// Failures are recorded on the result rather than returned.
func (e *Engine) ExtractSong(ctx context.Context, path string) *SongFeatures {
	return e.extractFile(ctx, path, e.tempoBiases)
}

// ExtractSongWithBias loads the song at path and extracts a single tempo
// level tracked with tempoBias
func (e *Engine) ExtractSongWithBias(ctx context.Context, path string, tempoBias float64) *SongFeatures {
	return e.extractFile(ctx, path, []float64{tempoBias})
}

func (e *Engine) extractFile(ctx context.Context, path string, biases []float64) *SongFeatures {
	song := &SongFeatures{
		Path:      path,
		Timestamp: time.Now(),
	}

	totalStart := time.Now()

	loadStart := time.Now()
	a, err := e.loader.Load(ctx, path)
	if err != nil {
		song.Error = fmt.Errorf("failed to load audio: %w", err)
		song.TotalProcessingTime = time.Since(totalStart)
		return song
	}
	song.LoadTime = time.Since(loadStart)

	e.extractAudio(ctx, song, a, biases)
	song.TotalProcessingTime = time.Since(totalStart)
	return song
}

// ExtractAudio extracts all tempo levels of already decoded audio
func (e *Engine) ExtractAudio(ctx context.Context, a *audio.Audio) *SongFeatures {
	song := &SongFeatures{
		Path:      a.Path,
		Timestamp: time.Now(),
	}
	start := time.Now()
	e.extractAudio(ctx, song, a, e.tempoBiases)
	song.TotalProcessingTime = time.Since(start)
	return song
}

func (e *Engine) extractAudio(ctx context.Context, song *SongFeatures, a *audio.Audio, biases []float64) {
	song.SampleRate = a.SampleRate
	song.AudioDuration = a.Duration

	if len(a.Samples) == 0 {
		song.Error = audio.ErrEmptyAudio
		return
	}

	extractStart := time.Now()
	song.Levels = make([]*TempoLevel, len(biases))
	for k, bias := range biases {
		if err := ctx.Err(); err != nil {
			song.Error = err
			return
		}
		level := e.ExtractLevel(a.Samples, a.SampleRate, bias)
		song.Levels[k] = level
		if level.Error != nil && song.Error == nil {
			song.Error = fmt.Errorf("tempo bias %g: %w", bias, level.Error)
		}
	}
	song.ExtractionTime = time.Since(extractStart)

	if song.Error != nil {
		e.logger.Warn("Song extraction incomplete", logging.Fields{
			"path":  song.Path,
			"error": song.Error.Error(),
		})
		return
	}
	e.logger.Debug("Song extraction completed", logging.Fields{
		"path":             song.Path,
		"audio_duration_s": a.Duration.Seconds(),
		"extraction_ms":    song.ExtractionTime.Milliseconds(),
		"levels":           len(song.Levels),
	})
}

// ExtractLevel tracks beats with a single tempo bias and computes block
// features on that beat grid
func (e *Engine) ExtractLevel(x []float64, fs int, tempoBias float64) *TempoLevel {
	level := &TempoLevel{TempoBias: tempoBias}

	res, err := e.tracker.Track(x, fs, tempoBias, e.hopSize)
	if err != nil {
		level.Error = fmt.Errorf("failed to track beats: %w", err)
		return level
	}
	level.Tempo = res.Tempo
	level.Beats = res.Beats
	level.NumBeats = len(res.Beats)

	block, other, err := e.extractor.Extract(x, fs, res.Tempo, res.Beats, e.hopSize)
	if err != nil {
		level.Error = fmt.Errorf("failed to extract block features: %w", err)
		return level
	}
	level.Features = block
	level.Other = other
	return level
}
