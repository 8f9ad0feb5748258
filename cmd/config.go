package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/cover-benchmark/configs"
	"github.com/RyanBlaney/cover-benchmark/internal/app"
)

// configCmd groups the configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect, generate and validate configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display all configuration values",
	Long: `Load the configuration and display all values to verify that the
config file, environment and flags are being parsed correctly.

Examples:
  # Show with default config file
  cover-benchmark config show

  # Show with specific config file
  cover-benchmark --config /path/to/config.yaml config show`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate [file]",
	Short: "Write an example experiment parameter file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.GenerateExampleConfig(args[0])
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate an experiment parameter file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.ValidateConfig(args[0])
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configGenerateCmd, configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fmt.Println("COVER BENCHMARK CONFIGURATION")
	fmt.Println(strings.Repeat("=", 80))

	config, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	printSection("APPLICATION SETTINGS")
	printKeyValue("Config File", getConfigFilePath())
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)
	printKeyValue("Output Format", config.OutputFormat)
	printKeyValue("Config Directory", config.ConfigDir)
	printKeyValue("Data Directory", config.DataDir)

	printSection("EXPERIMENT")
	exp := config.Experiment
	printKeyValue("Hop Size", fmt.Sprintf("%d samples", exp.HopSize))
	printKeyValue("Tempo Biases", fmt.Sprintf("%v BPM", exp.TempoBiases))
	printKeyValue("Kappa", fmt.Sprintf("%g", exp.Kappa))
	printKeyValue("Fusion K", fmt.Sprintf("%d", exp.FusionK))
	printKeyValue("Fusion Iterations", fmt.Sprintf("%d", exp.FusionIters))
	printKeyValue("Max Duration", exp.MaxDuration.String())
	printKeyValue("Max Concurrent", fmt.Sprintf("%d", exp.MaxConcurrent))
	printKeyValue("Timeout", exp.Timeout.String())
	printKeyValue("Show Progress", fmt.Sprintf("%t", exp.ShowProgress))

	printSection("DATASET")
	printKeyValue("Prefix", config.Dataset.Prefix)
	printKeyValue("Extension", config.Dataset.Extension)
	printKeyValue("List 1", config.Dataset.List1)
	printKeyValue("List 2", config.Dataset.List2)

	printSection("OUTPUT")
	printKeyValue("Directory", config.Output.Dir)
	printKeyValue("Results Page", config.Output.ResultsPage)
	printKeyValue("Mat File", config.Output.MatFile)
	printKeyValue("Compress", fmt.Sprintf("%t", config.Output.Compress))
	printKeyValue("Plot Format", config.Output.PlotFormat)

	printSection("METRICS")
	printKeyValue("Enabled", fmt.Sprintf("%t", config.Metrics.Enabled))
	printKeyValue("Log File", config.Metrics.LogFile)

	if err := configs.ValidateConfig(config); err != nil {
		printSection("VALIDATION")
		printKeyValue("Error", err.Error())
		return err
	}
	return nil
}

func printSection(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printKeyValue(key, value string) {
	if value == "" {
		fmt.Printf("%-35s\n", key)
	} else {
		fmt.Printf("%-35s %s\n", key+":", value)
	}
}

func getConfigFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return "(none, using defaults)"
}
