package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/cover-benchmark/configs"
	"github.com/RyanBlaney/cover-benchmark/internal/benchmark"
	"github.com/RyanBlaney/cover-benchmark/internal/features"
	"github.com/RyanBlaney/cover-benchmark/internal/similarity"
)

// Parameter presets
const (
	PresetCovers80 = "covers80"
	PresetCompare  = "compare"
)

// ExperimentFile is an experiment parameter file. Fields left out keep the
// preset and global configuration values.
type ExperimentFile struct {
	Features    *features.Params  `yaml:"features" json:"features"`
	HopSize     int               `yaml:"hop_size" json:"hop_size"`
	TempoBiases []float64         `yaml:"tempo_biases" json:"tempo_biases"`
	Kappa       float64           `yaml:"kappa" json:"kappa"`
	CSMTypes    map[string]string `yaml:"csm_types" json:"csm_types"`
	FusionK     int               `yaml:"fusion_k" json:"fusion_k"`
	FusionIters int               `yaml:"fusion_iters" json:"fusion_iters"`
	Tops        []int             `yaml:"tops" json:"tops"`
}

// PresetParams returns the feature parameters of a named preset
func PresetParams(preset string) (features.Params, error) {
	switch preset {
	case "", PresetCovers80:
		return features.Covers80Params(), nil
	case PresetCompare:
		return features.CompareParams(), nil
	}
	return features.Params{}, fmt.Errorf("unknown parameter preset %q", preset)
}

// loadExperimentFile loads an experiment parameter file
func loadExperimentFile(filePath string) (*ExperimentFile, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("experiment file does not exist: %s", filePath)
	}

	data, err := readFile(filePath)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		return parseExperimentYAML(data)
	case ".json":
		return parseExperimentJSON(data)
	default:
		// Try YAML first, then JSON
		if cfg, err := parseExperimentYAML(data); err == nil {
			return cfg, nil
		}
		return parseExperimentJSON(data)
	}
}

func readFile(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open experiment file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment file: %w", err)
	}
	return data, nil
}

func parseExperimentYAML(data []byte) (*ExperimentFile, error) {
	var cfg ExperimentFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML experiment file: %w", err)
	}
	return &cfg, nil
}

func parseExperimentJSON(data []byte) (*ExperimentFile, error) {
	var cfg ExperimentFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON experiment file: %w", err)
	}
	return &cfg, nil
}

// mergeExperimentConfig layers the global configuration, the experiment
// file and CLI flags, in that order, over the preset
func mergeExperimentConfig(base *configs.Config, file *ExperimentFile, ctx *Context) (*benchmark.Config, features.Params, error) {
	params, err := PresetParams(ctx.Preset)
	if err != nil {
		return nil, params, err
	}

	cfg := benchmark.DefaultConfig()
	if base != nil {
		exp := base.Experiment
		if exp.HopSize > 0 {
			cfg.HopSize = exp.HopSize
		}
		if len(exp.TempoBiases) > 0 {
			cfg.TempoBiases = exp.TempoBiases
		}
		if exp.Kappa > 0 {
			cfg.Kappa = exp.Kappa
		}
		if exp.FusionK > 0 {
			cfg.FusionK = exp.FusionK
		}
		if exp.FusionIters > 0 {
			cfg.FusionIters = exp.FusionIters
		}
		cfg.MaxDuration = exp.MaxDuration
		cfg.MaxConcurrent = exp.MaxConcurrent
		cfg.ExperimentTimeout = exp.Timeout
		cfg.ShowProgress = exp.ShowProgress

		out := base.Output
		if out.Dir != "" {
			cfg.OutputDir = out.Dir
		}
		if out.ResultsPage != "" {
			cfg.ResultsPage = out.ResultsPage
		}
		if out.MatFile != "" {
			cfg.MatFile = out.MatFile
		}
		if out.PlotFormat != "" {
			cfg.PlotFormat = out.PlotFormat
		}
		cfg.Compress = out.Compress
	}

	if file != nil {
		if file.Features != nil {
			params = *file.Features
		}
		if file.HopSize > 0 {
			cfg.HopSize = file.HopSize
		}
		if len(file.TempoBiases) > 0 {
			cfg.TempoBiases = file.TempoBiases
		}
		if file.Kappa > 0 {
			cfg.Kappa = file.Kappa
		}
		if file.FusionK > 0 {
			cfg.FusionK = file.FusionK
		}
		if file.FusionIters > 0 {
			cfg.FusionIters = file.FusionIters
		}
		if len(file.Tops) > 0 {
			cfg.Tops = file.Tops
		}
		for name, t := range file.CSMTypes {
			csmType, err := similarity.ParseCSMType(t)
			if err != nil {
				return nil, params, fmt.Errorf("feature %s: %w", name, err)
			}
			cfg.CSMTypes[name] = csmType
		}
	}

	// Override with CLI flags
	if ctx.Timeout > 0 {
		cfg.ExperimentTimeout = ctx.Timeout
	}
	if ctx.MaxConcurrent > 0 {
		cfg.MaxConcurrent = ctx.MaxConcurrent
	}
	if len(ctx.TempoBiases) > 0 {
		cfg.TempoBiases = ctx.TempoBiases
	}
	if ctx.Kappa > 0 {
		cfg.Kappa = ctx.Kappa
	}
	if ctx.OutputDir != "" {
		cfg.OutputDir = ctx.OutputDir
	}
	if ctx.Quiet {
		cfg.ShowProgress = false
	}

	if err := params.Validate(); err != nil {
		return nil, params, fmt.Errorf("invalid feature parameters: %w", err)
	}
	return cfg, params, nil
}

// GenerateExampleConfig writes an experiment file holding the covers80
// settings
func GenerateExampleConfig(outputFile string) error {
	params := features.Covers80Params()
	csmTypes := map[string]string{}
	for name, t := range similarity.DefaultCSMTypes() {
		csmTypes[name] = string(t)
	}
	example := &ExperimentFile{
		Features:    &params,
		HopSize:     512,
		TempoBiases: []float64{60, 120, 180},
		Kappa:       0.1,
		CSMTypes:    csmTypes,
		FusionK:     20,
		FusionIters: 3,
		Tops:        benchmark.DefaultTops,
	}

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("✅ Example experiment configuration written to: %s\n", outputFile)
	return nil
}

// ValidateConfig validates an experiment file against the defaults
func ValidateConfig(configFile string) error {
	file, err := loadExperimentFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg, params, err := mergeExperimentConfig(configs.GetDefaultConfig(), file, &Context{})
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Printf("✅ Experiment configuration is valid: %s\n", configFile)
	fmt.Printf("   - Features: %v\n", params.Names())
	fmt.Printf("   - Tempo biases: %v\n", cfg.TempoBiases)
	fmt.Printf("   - Kappa: %g\n", cfg.Kappa)

	return nil
}
