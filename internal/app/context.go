package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/latency-benchmark-common/output"
	"github.com/tunein/go-logging/v7/pkg/logger"
	"github.com/tunein/go-logging/v7/pkg/logger/logtypes"
	"github.com/tunein/go-logging/v7/pkg/rootcollector"
	"github.com/tunein/go-logging/v7/pkg/rootlogger"

	"github.com/RyanBlaney/cover-benchmark/configs"
	"github.com/RyanBlaney/cover-benchmark/internal/audio"
	"github.com/RyanBlaney/cover-benchmark/internal/benchmark"
	"github.com/RyanBlaney/cover-benchmark/internal/extraction"
	"github.com/RyanBlaney/cover-benchmark/internal/features"
)

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	ConfigFile    string // Experiment parameter file (optional)
	Preset        string // Feature parameter preset
	OutputFile    string
	OutputFormat  string
	OutputDir     string
	Timeout       time.Duration
	MaxConcurrent int
	TempoBiases   []float64
	Kappa         float64
	Verbose       bool
	Quiet         bool

	// Runtime context
	Logger logging.Logger
	Base   *configs.Config
	Config *benchmark.Config
	Params features.Params
}

// CoverApp handles the cover song application lifecycle
type CoverApp struct {
	ctx    *Context
	base   *configs.Config
	config *benchmark.Config
	params features.Params
	logger logging.Logger
}

// NewCoverApp creates a new cover song application
func NewCoverApp(ctx *Context) (*CoverApp, error) {
	// Set up logging
	logger := setupLogging(ctx)
	ctx.Logger = logger

	// Load configuration
	base, config, params, err := loadAndMergeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Base = base
	ctx.Config = config
	ctx.Params = params

	logger.Debug("Cover application initialized", logging.Fields{
		"config_file":   ctx.ConfigFile,
		"preset":        ctx.Preset,
		"output_format": ctx.OutputFormat,
		"tempo_biases":  config.TempoBiases,
		"features":      params.Names(),
	})

	return &CoverApp{
		ctx:    ctx,
		base:   base,
		config: config,
		params: params,
		logger: logger,
	}, nil
}

// setupLogging configures logging based on context
func setupLogging(ctx *Context) logging.Logger {
	if ctx.Logger != nil {
		return ctx.Logger
	}
	return logging.NewDefaultLogger()
}

// loadAndMergeConfig loads configuration from files and merges with CLI flags
func loadAndMergeConfig(ctx *Context) (*configs.Config, *benchmark.Config, features.Params, error) {
	base := ctx.Base
	if base == nil {
		var err error
		base, err = configs.LoadConfig()
		if err != nil {
			return nil, nil, features.Params{}, fmt.Errorf("failed to load base configuration: %w", err)
		}
	}

	var file *ExperimentFile
	if ctx.ConfigFile != "" {
		var err error
		file, err = loadExperimentFile(ctx.ConfigFile)
		if err != nil {
			return nil, nil, features.Params{}, fmt.Errorf("failed to load experiment configuration: %w", err)
		}
	}

	config, params, err := mergeExperimentConfig(base, file, ctx)
	if err != nil {
		return nil, nil, params, err
	}
	return base, config, params, nil
}

// SongLists reads both covers80 song lists. Empty paths fall back to the
// configured dataset lists.
func (app *CoverApp) SongLists(list1, list2 string) ([]string, []string, error) {
	ds := app.base.Dataset
	if list1 == "" {
		list1 = ds.List1
	}
	if list2 == "" {
		list2 = ds.List2
	}
	files1, err := audio.ReadList(list1, ds.Prefix, ds.Extension)
	if err != nil {
		return nil, nil, err
	}
	files2, err := audio.ReadList(list2, ds.Prefix, ds.Extension)
	if err != nil {
		return nil, nil, err
	}
	if len(files1) != len(files2) {
		return nil, nil, fmt.Errorf("song lists differ in length: %d and %d", len(files1), len(files2))
	}
	return files1, files2, nil
}

// RunCovers80 runs the full experiment over the two song lists
func (app *CoverApp) RunCovers80(ctx context.Context, list1, list2 string) error {
	files1, files2, err := app.SongLists(list1, list2)
	if err != nil {
		return err
	}

	orchestrator, err := benchmark.NewOrchestrator(app.config, app.params, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	summary, err := orchestrator.RunCovers80(ctx, files1, files2)
	if err != nil {
		return fmt.Errorf("covers80 experiment failed: %w", err)
	}

	if err := app.outputResults(map[string]any{
		"covers80_summary": cleanCovers80Summary(summary, app.ctx.Verbose),
		"timestamp":        time.Now(),
		"configuration":    app.configurationSummary(),
	}); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}

	app.collectRunMetrics(summary)
	return nil
}

// RunCompare compares two songs
func (app *CoverApp) RunCompare(ctx context.Context, req benchmark.CompareRequest) error {
	orchestrator, err := benchmark.NewOrchestrator(app.config, app.params, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	summary, err := orchestrator.CompareTwoSongs(ctx, req)
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	return app.outputResults(map[string]any{
		"comparison":    summary,
		"timestamp":     time.Now(),
		"configuration": app.configurationSummary(),
	})
}

// RunFeatures extracts a single song and reports what was computed
func (app *CoverApp) RunFeatures(ctx context.Context, path string) error {
	engine, err := extraction.NewEngine(&extraction.EngineConfig{
		HopSize:     app.config.HopSize,
		TempoBiases: app.config.TempoBiases,
		MaxDuration: app.config.MaxDuration,
		Features:    app.params,
		Logger:      app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create extraction engine: %w", err)
	}

	song := engine.ExtractSong(ctx, path)
	if err := app.outputResults(map[string]any{
		"song":      cleanSongFeatures(song),
		"timestamp": time.Now(),
	}); err != nil {
		return err
	}
	if song.Error != nil {
		return fmt.Errorf("feature extraction failed: %w", song.Error)
	}
	return nil
}

// CoverPair returns song index of both lists, as used by the compare
// command's --index mode
func (app *CoverApp) CoverPair(list1, list2 string, index int) (string, string, error) {
	files1, files2, err := app.SongLists(list1, list2)
	if err != nil {
		return "", "", err
	}
	if index < 0 || index >= len(files1) {
		return "", "", fmt.Errorf("song index %d out of range [0, %d)", index, len(files1))
	}
	return files1[index], files2[index], nil
}

func (app *CoverApp) configurationSummary() map[string]any {
	return map[string]any{
		"hop_size":     app.config.HopSize,
		"tempo_biases": app.config.TempoBiases,
		"kappa":        app.config.Kappa,
		"csm_types":    app.config.CSMTypes,
		"features":     app.params,
		"output_dir":   app.config.OutputDir,
	}
}

// outputResults formats data and writes it to the output file or stdout
func (app *CoverApp) outputResults(data map[string]any) error {
	// Create formatter
	var formatter output.Formatter
	switch app.ctx.OutputFormat {
	case "json":
		formatter = &output.JSONFormatter{}
	case "yaml":
		formatter = &output.YAMLFormatter{}
	case "csv":
		formatter = &output.CSVFormatter{}
	case "table":
		formatter = &output.TableFormatter{}
	default:
		formatter = &output.JSONFormatter{}
	}

	// Format data
	formattedData, err := formatter.Format(data, true)
	if err != nil {
		// Scores can be infinite when a feature never aligned
		if strings.Contains(err.Error(), "unsupported value") {
			formattedData, err = formatter.Format(sanitizeForJSON(data), true)
		}
		if err != nil {
			return fmt.Errorf("failed to format output data: %w", err)
		}
	}

	// Write to file or stdout
	if app.ctx.OutputFile != "" {
		return app.writeToFile(formattedData)
	}

	_, err = os.Stdout.Write(formattedData)
	return err
}

// collectRunMetrics sends the retrieval quality of every feature to
// rootcollector
func (app *CoverApp) collectRunMetrics(summary *benchmark.Covers80Summary) {
	if summary == nil || !app.base.Metrics.Enabled {
		return
	}

	err := rootlogger.Configure(logger.LogOptions{
		Out:          app.base.Metrics.LogFile,
		ReopenSignal: syscall.SIGHUP,
		Level:        logtypes.InfoLevel,
	})
	if err != nil {
		logging.Error(err, "Failed configuring log writer")
	}

	for _, name := range summary.Features {
		stats := summary.Stats[name]
		if stats == nil {
			continue
		}
		tags := []string{"feature:" + name, "run:" + summary.RunID}

		// collector values are integral, so ratios go out in thousandths
		rootcollector.Metric("cover.benchmark.mean_rank.milli", int64(math.Round(stats.MR*1000)), tags)
		rootcollector.Metric("cover.benchmark.mrr.milli", int64(math.Round(stats.MRR*1000)), tags)
		rootcollector.Metric("cover.benchmark.median_rank.milli", int64(math.Round(stats.MDR*1000)), tags)
		rootcollector.Metric("cover.benchmark.covers80", int64(stats.Covers80), tags)
	}

	runTags := []string{"run:" + summary.RunID}
	rootcollector.Metric("cover.benchmark.duration.milliseconds", summary.TotalDuration.Milliseconds(), runTags)
	rootcollector.Metric("cover.benchmark.failed_songs", int64(summary.FailedSongs), runTags)
}

// cleanCovers80Summary drops the per-song ranks unless verbose
func cleanCovers80Summary(summary *benchmark.Covers80Summary, verbose bool) map[string]any {
	stats := make(map[string]any, len(summary.Stats))
	for name, s := range summary.Stats {
		entry := map[string]any{
			"mean_rank":            s.MR,
			"mean_reciprocal_rank": s.MRR,
			"median_rank":          s.MDR,
			"top_k":                s.TopIdx,
			"top_k_counts":         s.Tops,
			"covers80_score":       fmt.Sprintf("%d/%d", s.Covers80, s.NSongs),
		}
		if verbose {
			entry["ranks"] = s.Ranks
		}
		stats[name] = entry
	}

	clean := map[string]any{
		"run_id":         summary.RunID,
		"num_songs":      summary.NSongs,
		"features":       summary.Features,
		"stats":          stats,
		"failed_songs":   summary.FailedSongs,
		"mat_file":       summary.MatFile,
		"index_page":     summary.IndexPage,
		"start_time":     summary.StartTime,
		"end_time":       summary.EndTime,
		"total_duration": summary.TotalDuration.Seconds(),
	}
	if verbose {
		clean["extraction"] = summary.Extraction
	}
	return clean
}

// cleanSongFeatures describes a song's levels without the feature data
func cleanSongFeatures(song *extraction.SongFeatures) map[string]any {
	levels := make([]map[string]any, 0, len(song.Levels))
	for _, level := range song.Levels {
		if level == nil {
			continue
		}
		entry := map[string]any{
			"tempo_bias": level.TempoBias,
			"tempo":      level.Tempo,
			"num_beats":  level.NumBeats,
		}
		if level.OK() {
			blocks := make(map[string]any, len(level.Features))
			for name, X := range level.Features {
				dim := 0
				if len(X) > 0 {
					dim = len(X[0])
				}
				blocks[name] = map[string]int{"blocks": len(X), "dim": dim}
			}
			entry["features"] = blocks
		}
		if level.Error != nil {
			entry["error"] = level.Error.Error()
		}
		levels = append(levels, entry)
	}

	clean := map[string]any{
		"path":                     song.Path,
		"sample_rate":              song.SampleRate,
		"audio_duration_seconds":   song.AudioDuration.Seconds(),
		"load_time_ms":             song.LoadTime.Milliseconds(),
		"extraction_time_ms":       song.ExtractionTime.Milliseconds(),
		"total_processing_time_ms": song.TotalProcessingTime.Milliseconds(),
		"levels":                   levels,
	}
	if song.Error != nil {
		clean["error"] = song.Error.Error()
	}
	return clean
}

// writeToFile writes data to the specified output file
func (app *CoverApp) writeToFile(data []byte) error {
	// Ensure directory exists
	dir := filepath.Dir(app.ctx.OutputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(app.ctx.OutputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	app.logger.Debug("Results written to file", logging.Fields{
		"output_file": app.ctx.OutputFile,
		"size_bytes":  len(data),
	})

	return nil
}

// sanitizeForJSON recursively replaces infinite and NaN floats with zero.
// Structs become maps keyed by their JSON names.
func sanitizeForJSON(data any) any {
	if data == nil {
		return nil
	}
	return sanitizeValue(reflect.ValueOf(data))
}

func sanitizeValue(val reflect.Value) any {
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface:
		if val.IsNil() {
			return nil
		}
		return sanitizeValue(val.Elem())
	case reflect.Float32, reflect.Float64:
		f := val.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			f = 0
		}
		if val.Kind() == reflect.Float32 {
			return float32(f)
		}
		return f
	case reflect.Struct:
		// time.Time and friends format themselves
		if _, ok := val.Interface().(fmt.Stringer); ok {
			return val.Interface()
		}
		result := make(map[string]any)
		typ := val.Type()
		for i := range val.NumField() {
			field := val.Field(i)
			if !field.CanInterface() {
				continue
			}
			name := typ.Field(i).Name
			if tag := typ.Field(i).Tag.Get("json"); tag != "" {
				if tag == "-" {
					continue
				}
				if parts := strings.Split(tag, ","); parts[0] != "" {
					name = parts[0]
				}
			}
			result[name] = sanitizeValue(field)
		}
		return result
	case reflect.Slice, reflect.Array:
		if val.Kind() == reflect.Slice && val.IsNil() {
			return nil
		}
		result := make([]any, val.Len())
		for i := range val.Len() {
			result[i] = sanitizeValue(val.Index(i))
		}
		return result
	case reflect.Map:
		result := make(map[string]any, val.Len())
		for _, key := range val.MapKeys() {
			result[fmt.Sprintf("%v", key.Interface())] = sanitizeValue(val.MapIndex(key))
		}
		return result
	default:
		if !val.CanInterface() {
			return nil
		}
		return val.Interface()
	}
}
