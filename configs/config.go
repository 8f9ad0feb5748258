package configs

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose"`
	LogLevel     string `mapstructure:"log_level"`
	OutputFormat string `mapstructure:"output_format"`
	ConfigDir    string `mapstructure:"config_dir"`
	DataDir      string `mapstructure:"data_dir"`

	// Experiment execution
	Experiment ExperimentConfig `mapstructure:"experiment"`

	// Song collection
	Dataset DatasetConfig `mapstructure:"dataset"`

	// Report output
	Output OutputConfig `mapstructure:"output"`

	// Run metrics
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ExperimentConfig contains beat tracking, scoring and execution settings
type ExperimentConfig struct {
	HopSize       int           `mapstructure:"hop_size"`
	TempoBiases   []float64     `mapstructure:"tempo_biases"`
	Kappa         float64       `mapstructure:"kappa"`
	FusionK       int           `mapstructure:"fusion_k"`
	FusionIters   int           `mapstructure:"fusion_iters"`
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ShowProgress  bool          `mapstructure:"show_progress"`
}

// DatasetConfig locates the song lists of a covers80 style collection
type DatasetConfig struct {
	Prefix    string `mapstructure:"prefix"`
	Extension string `mapstructure:"extension"`
	List1     string `mapstructure:"list1"`
	List2     string `mapstructure:"list2"`
}

// OutputConfig contains report settings
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	ResultsPage string `mapstructure:"results_page"`
	MatFile     string `mapstructure:"mat_file"`
	Compress    bool   `mapstructure:"compress"`
	PlotFormat  string `mapstructure:"plot_format"`
}

// MetricsConfig controls where run metrics are written
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	LogFile string `mapstructure:"log_file"`
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(viper.GetViper())
}

// LoadConfigFrom decodes the configuration held by v
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	config := &Config{}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return config, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if len(config.Experiment.TempoBiases) == 0 {
		return fmt.Errorf("at least one tempo bias is required")
	}

	for _, b := range config.Experiment.TempoBiases {
		if b <= 0 {
			return fmt.Errorf("tempo bias must be positive, got %g", b)
		}
	}

	if config.Experiment.HopSize <= 0 {
		return fmt.Errorf("hop size must be positive")
	}

	if config.Experiment.Kappa < 0 {
		return fmt.Errorf("kappa cannot be negative")
	}

	if config.Experiment.MaxConcurrent < 0 {
		return fmt.Errorf("max concurrent cannot be negative")
	}

	switch config.Output.PlotFormat {
	case "svg", "png":
	default:
		return fmt.Errorf("plot format must be svg or png, got %q", config.Output.PlotFormat)
	}

	return nil
}
