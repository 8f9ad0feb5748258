package cmd

import (
	"github.com/spf13/cobra"
)

var featuresFlags experimentFlags

var featuresCmd = &cobra.Command{
	Use:   "features [file]",
	Short: "Extract the block features of one song",
	Long: `Track the beats of a song at every tempo bias and report the tempo,
beat count and block feature shapes of each level.

Examples:
  cover-benchmark features song.ogg
  cover-benchmark features song.ogg --tempo-biases 60,120 --output table`,
	Args: cobra.ExactArgs(1),
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresFlags.register(featuresCmd, "covers80")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	coverApp, err := featuresFlags.newApp()
	if err != nil {
		return err
	}
	return coverApp.RunFeatures(ctx, args[0])
}
