package benchmark

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/cover-benchmark/internal/extraction"
	"github.com/RyanBlaney/cover-benchmark/internal/features"
	"github.com/RyanBlaney/cover-benchmark/internal/similarity"
)

// SongExtractor produces tempo-levelled block features for song files
type SongExtractor interface {
	ExtractSong(ctx context.Context, path string) *extraction.SongFeatures
	ExtractSongWithBias(ctx context.Context, path string, tempoBias float64) *extraction.SongFeatures
	HopSize() int
	TempoBiases() []float64
	Params() features.Params
}

// Config contains experiment execution settings
type Config struct {
	HopSize     int
	TempoBiases []float64
	MaxDuration time.Duration

	Kappa       float64
	CSMTypes    map[string]similarity.CSMType
	FusionK     int
	FusionIters int
	Tops        []int

	MaxConcurrent     int
	ShowProgress      bool
	ExperimentTimeout time.Duration

	OutputDir   string
	ResultsPage string
	MatFile     string
	Compress    bool
	PlotFormat  string
}

// DefaultConfig returns the settings of the covers80 experiment
func DefaultConfig() *Config {
	return &Config{
		HopSize:     extraction.DefaultHopSize,
		TempoBiases: []float64{60, 120, 180},
		Kappa:       0.1,
		CSMTypes:    similarity.DefaultCSMTypes(),
		FusionK:     20,
		FusionIters: 3,
		Tops:        DefaultTops,
		OutputDir:   ".",
		ResultsPage: "results.html",
		MatFile:     "Results.mat",
		Compress:    true,
		PlotFormat:  "svg",
	}
}

// Orchestrator coordinates feature extraction, scoring and reporting
type Orchestrator struct {
	config    *Config
	extractor SongExtractor
	logger    logging.Logger
	metrics   *MetricsCalculator
}

// NewOrchestrator creates a new experiment orchestrator
func NewOrchestrator(cfg *Config, params features.Params, logger logging.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	engine, err := extraction.NewEngine(&extraction.EngineConfig{
		HopSize:     cfg.HopSize,
		TempoBiases: cfg.TempoBiases,
		MaxDuration: cfg.MaxDuration,
		Features:    params,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction engine: %w", err)
	}
	return newOrchestrator(cfg, engine, logger), nil
}

func newOrchestrator(cfg *Config, extractor SongExtractor, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Orchestrator{
		config:    cfg,
		extractor: extractor,
		logger:    logger.WithFields(logging.Fields{"component": "orchestrator"}),
		metrics:   NewMetricsCalculator(logger),
	}
}

// Metrics returns the orchestrator's metrics calculator
func (o *Orchestrator) Metrics() *MetricsCalculator {
	return o.metrics
}

func (o *Orchestrator) workers() int {
	if o.config.MaxConcurrent > 0 {
		return o.config.MaxConcurrent
	}
	return max(runtime.NumCPU()-1, 1)
}

func (o *Orchestrator) newProgress() *mpb.Progress {
	if !o.config.ShowProgress {
		return mpb.New(mpb.WithOutput(io.Discard))
	}
	return mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
}

func addBar(p *mpb.Progress, total int, name string) *mpb.Bar {
	return p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.config.ExperimentTimeout > 0 {
		return context.WithTimeout(ctx, o.config.ExperimentTimeout)
	}
	return context.WithCancel(ctx)
}

// ExtractAll extracts the features of every file at every tempo bias.
// Songs that fail keep their error; the call fails only when every song
// fails or ctx ends.
func (o *Orchestrator) ExtractAll(ctx context.Context, files []string) ([]*extraction.SongFeatures, error) {
	startTime := time.Now()
	songs := make([]*extraction.SongFeatures, len(files))

	o.logger.Debug("Starting feature extraction", logging.Fields{
		"songs":        len(files),
		"tempo_biases": o.extractor.TempoBiases(),
		"workers":      o.workers(),
	})

	progress := o.newProgress()
	bar := addBar(progress, len(files), "Extracting: ")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())
	for i, file := range files {
		g.Go(func() error {
			start := time.Now()
			song := o.extractor.ExtractSong(gctx, file)
			song.Index = i
			songs[i] = song
			bar.EwmaIncrement(time.Since(start))
			return nil
		})
	}
	g.Wait()
	progress.Wait()

	if err := ctx.Err(); err != nil {
		return songs, fmt.Errorf("feature extraction interrupted: %w", err)
	}

	failed := extraction.CountFailed(songs)
	for _, song := range songs {
		if song.Error != nil {
			o.logger.Warn("Song failed", logging.Fields{
				"path":  song.Path,
				"error": song.Error.Error(),
			})
		}
	}
	if len(songs) > 0 && failed == len(songs) {
		return songs, fmt.Errorf("all %d songs failed feature extraction", failed)
	}

	o.logger.Info("Feature extraction completed", logging.Fields{
		"songs":      len(songs),
		"failed":     failed,
		"duration_s": time.Since(startTime).Seconds(),
	})
	return songs, nil
}

// FeatureScores is the all-pairs score matrix of one feature
type FeatureScores struct {
	Feature string             `json:"feature"`
	CSMType similarity.CSMType `json:"csm_type"`
	Scores  [][]float64        `json:"scores"`
	// BestTempos[i][j] holds the tempo levels of songs i and j that
	// produced Scores[i][j]
	BestTempos [][][2]int `json:"best_tempos"`
}

// Scores compares every pair of songs on one feature. Each entry is the
// best Smith-Waterman score over all pairs of tempo levels.
func (o *Orchestrator) Scores(ctx context.Context, songs []*extraction.SongFeatures, feature string) (*FeatureScores, error) {
	n := len(songs)
	csmType := similarity.CSMTypeFor(feature, o.config.CSMTypes)
	fs := &FeatureScores{
		Feature:    feature,
		CSMType:    csmType,
		Scores:     make([][]float64, n),
		BestTempos: make([][][2]int, n),
	}
	for i := range n {
		fs.Scores[i] = make([]float64, n)
		fs.BestTempos[i] = make([][2]int, n)
	}

	progress := o.newProgress()
	bar := addBar(progress, n, fmt.Sprintf("Scoring %s: ", feature))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())
	for i := range n {
		g.Go(func() error {
			start := time.Now()
			defer func() { bar.EwmaIncrement(time.Since(start)) }()
			for j := i + 1; j < n; j++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				score, tempos, err := o.bestScore(songs[i], songs[j], feature, csmType)
				if err != nil {
					return fmt.Errorf("songs %d and %d: %w", i, j, err)
				}
				// alignment scores are symmetric, so row i also fills column i
				fs.Scores[i][j], fs.Scores[j][i] = score, score
				fs.BestTempos[i][j] = tempos
				fs.BestTempos[j][i] = [2]int{tempos[1], tempos[0]}
			}
			return nil
		})
	}
	err := g.Wait()
	bar.Abort(false)
	progress.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to score %s: %w", feature, err)
	}
	return fs, nil
}

// bestScore maximizes the feature score over all tempo level pairs
func (o *Orchestrator) bestScore(s1, s2 *extraction.SongFeatures, feature string, t similarity.CSMType) (float64, [2]int, error) {
	best := 0.0
	tempos := [2]int{}
	if s1 == nil || s2 == nil {
		return best, tempos, nil
	}
	for k1, l1 := range s1.Levels {
		if !l1.OK() || l1.Features[feature] == nil {
			continue
		}
		for k2, l2 := range s2.Levels {
			if !l2.OK() || l2.Features[feature] == nil {
				continue
			}
			res, err := similarity.ScoreFeature(l1.Features[feature], l1.Other, l2.Features[feature], l2.Other, o.config.Kappa, t)
			if err != nil {
				return 0, tempos, err
			}
			if res.Score > best {
				best = res.Score
				tempos = [2]int{k1, k2}
			}
		}
	}
	return best, tempos, nil
}

// orderedFeatures lists the features any song produced, in parameter order
func orderedFeatures(params features.Params, songs []*extraction.SongFeatures) []string {
	present := map[string]bool{}
	for _, s := range songs {
		if s == nil {
			continue
		}
		for _, name := range s.FeatureNames() {
			present[name] = true
		}
	}
	var names []string
	for _, name := range params.Names() {
		if present[name] {
			names = append(names, name)
		}
	}
	return names
}
