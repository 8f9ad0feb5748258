package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults sets default configuration values for all components
func SetDefaults(v *viper.Viper) {
	// Application defaults
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("output_format", "json")

	home, _ := os.UserHomeDir()
	v.SetDefault("config_dir", filepath.Join(home, ".config", "cover-benchmark"))
	v.SetDefault("data_dir", filepath.Join(home, ".local", "share", "cover-benchmark"))

	setExperimentDefaults(v)
	setDatasetDefaults(v)
	setOutputDefaults(v)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.log_file", "/tmp/cover-benchmark.log")
}

func setExperimentDefaults(v *viper.Viper) {
	v.SetDefault("experiment.hop_size", 512)
	v.SetDefault("experiment.tempo_biases", []float64{60, 120, 180})
	v.SetDefault("experiment.kappa", 0.1)
	v.SetDefault("experiment.fusion_k", 20)
	v.SetDefault("experiment.fusion_iters", 3)
	v.SetDefault("experiment.max_duration", time.Duration(0))
	v.SetDefault("experiment.max_concurrent", 0)
	v.SetDefault("experiment.timeout", 12*time.Hour)
	v.SetDefault("experiment.show_progress", true)
}

// setDatasetDefaults points at the covers80 32 kHz collection layout
func setDatasetDefaults(v *viper.Viper) {
	v.SetDefault("dataset.prefix", "covers32k")
	v.SetDefault("dataset.extension", ".ogg")
	v.SetDefault("dataset.list1", filepath.Join("covers32k", "list1.list"))
	v.SetDefault("dataset.list2", filepath.Join("covers32k", "list2.list"))
}

func setOutputDefaults(v *viper.Viper) {
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.results_page", "results.html")
	v.SetDefault("output.mat_file", "Results.mat")
	v.SetDefault("output.compress", true)
	v.SetDefault("output.plot_format", "svg")
}

// GetDefaultConfig returns a configuration with all default values
func GetDefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Verbose:      false,
		LogLevel:     "info",
		OutputFormat: "json",
		ConfigDir:    filepath.Join(home, ".config", "cover-benchmark"),
		DataDir:      filepath.Join(home, ".local", "share", "cover-benchmark"),
		Experiment:   GetDefaultExperimentConfig(),
		Dataset: DatasetConfig{
			Prefix:    "covers32k",
			Extension: ".ogg",
			List1:     filepath.Join("covers32k", "list1.list"),
			List2:     filepath.Join("covers32k", "list2.list"),
		},
		Output: OutputConfig{
			Dir:         ".",
			ResultsPage: "results.html",
			MatFile:     "Results.mat",
			Compress:    true,
			PlotFormat:  "svg",
		},
		Metrics: MetricsConfig{
			LogFile: "/tmp/cover-benchmark.log",
		},
	}
}

// GetDefaultExperimentConfig returns the covers80 experiment settings
func GetDefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		HopSize:      512,
		TempoBiases:  []float64{60, 120, 180},
		Kappa:        0.1,
		FusionK:      20,
		FusionIters:  3,
		Timeout:      12 * time.Hour,
		ShowProgress: true,
	}
}
