package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/cover-benchmark/configs"
	"github.com/RyanBlaney/cover-benchmark/internal/app"
)

var (
	configFile   string
	envFile      string
	verbose      bool
	logLevel     string
	outputFormat string
	configDir    string
	dataDir      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cover-benchmark",
	Short: "Cover song identification benchmark",
	Long: `Extracts block-windowed, beat-synchronous audio features and scores
pairwise song similarity for cover song identification.

Key features:
- Beat tracking at several tempo biases
- MFCC, chroma, self-similarity, D2, geodesic and curvature block features
- Cross-similarity matrices with Smith-Waterman scoring
- OR merging and similarity network fusion of features
- covers80 evaluation with HTML reports, SVG plots and .mat dumps`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"config directory (default is $HOME/.config/cover-benchmark)")

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is $HOME/.config/cover-benchmark/cover-benchmark.yaml)")

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded before the environment is read")

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"data directory (default is $HOME/.local/share/cover-benchmark)")

	// Output and logging flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json",
		"output format (json, table, csv, yaml)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("output_format", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("config_dir", rootCmd.PersistentFlags().Lookup("config-dir"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	// A missing dotenv file is fine, a broken one is not
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", envFile, err)
		os.Exit(1)
	}

	if configFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(configFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory and /etc
		viper.AddConfigPath(home)
		viper.AddConfigPath(filepath.Join(home, ".config", "cover-benchmark"))
		viper.AddConfigPath("/etc/cover-benchmark")
		viper.AddConfigPath("./configs")
		viper.SetConfigName("cover-benchmark")
		viper.SetConfigType("yaml")
	}

	// Environment variable support
	viper.SetEnvPrefix("COVER_BENCHMARK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// Set default values
	configs.SetDefaults(viper.GetViper())

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// initializeConfig initializes configuration after flags are parsed
func initializeConfig(cmd *cobra.Command) error {
	// Bind all flags to viper
	return bindFlags(cmd, viper.GetViper())
}

// bindFlags binds each cobra flag to its associated viper configuration
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variable name
		envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				lastErr = err
			}
		}

		// Bind to environment variable
		if err := v.BindEnv(f.Name, "COVER_BENCHMARK_"+envVarSuffix); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

// experimentFlags are the flags shared by the experiment commands
type experimentFlags struct {
	paramsFile    string
	preset        string
	outputFile    string
	outputDir     string
	timeout       time.Duration
	maxConcurrent int
	tempoBiases   []float64
	kappa         float64
	quiet         bool
}

func (f *experimentFlags) register(cmd *cobra.Command, preset string) {
	cmd.Flags().StringVarP(&f.paramsFile, "params", "p", "",
		"experiment parameter file (yaml or json)")
	cmd.Flags().StringVar(&f.preset, "preset", preset,
		"feature parameter preset (covers80, compare)")
	cmd.Flags().StringVarP(&f.outputFile, "output-file", "f", "",
		"write the summary to this file instead of stdout")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "",
		"directory for plots, pages and .mat files")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0,
		"abort the run after this long (0 uses the configured timeout)")
	cmd.Flags().IntVar(&f.maxConcurrent, "max-concurrent", 0,
		"songs processed in parallel (0 uses all but one CPU)")
	cmd.Flags().Float64SliceVar(&f.tempoBiases, "tempo-biases", nil,
		"beat tracker tempo biases in BPM")
	cmd.Flags().Float64Var(&f.kappa, "kappa", 0,
		"mutual nearest neighbour fraction")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false,
		"hide progress bars")
}

// newApp builds the application from the global and command flags
func (f *experimentFlags) newApp() (*app.CoverApp, error) {
	return app.NewCoverApp(&app.Context{
		ConfigFile:    f.paramsFile,
		Preset:        f.preset,
		OutputFile:    f.outputFile,
		OutputFormat:  viper.GetString("output_format"),
		OutputDir:     f.outputDir,
		Timeout:       f.timeout,
		MaxConcurrent: f.maxConcurrent,
		TempoBiases:   f.tempoBiases,
		Kappa:         f.kappa,
		Verbose:       viper.GetBool("verbose"),
		Quiet:         f.quiet,
	})
}

// signalContext is cancelled on interrupt
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// GetConfig returns the current viper instance
func GetConfig() *viper.Viper {
	return viper.GetViper()
}
