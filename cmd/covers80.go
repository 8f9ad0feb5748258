package cmd

import (
	"github.com/spf13/cobra"
)

var (
	covers80Flags experimentFlags
	covers80List1 string
	covers80List2 string
)

// covers80Cmd represents the covers80 command
var covers80Cmd = &cobra.Command{
	Use:   "covers80",
	Short: "Run the covers80 cover song identification experiment",
	Long: `Extract every song of two parallel song lists, score all pairs on each
feature and report how well every feature finds each song's cover.

Song i of the first list and song i of the second list are covers of each
other. Lists hold one path per line, relative to the dataset prefix and
without extension.

Outputs, in the output directory:
  results.html     one table row of rank statistics per feature
  Results.mat      score matrices and best tempo levels per feature
  CSMResults/      per-song cross-similarity pages and an index page

Examples:
  # Run with the configured covers32k lists
  cover-benchmark covers80

  # Run with explicit lists and a single tempo bias
  cover-benchmark covers80 --list1 a.list --list2 b.list --tempo-biases 120

  # Chroma only, from a parameter file
  cover-benchmark covers80 --params chroma.yaml --output-dir runs/chroma`,
	Args: cobra.NoArgs,
	RunE: runCovers80,
}

func init() {
	rootCmd.AddCommand(covers80Cmd)

	covers80Flags.register(covers80Cmd, "covers80")
	covers80Cmd.Flags().StringVar(&covers80List1, "list1", "",
		"first song list (default from dataset.list1)")
	covers80Cmd.Flags().StringVar(&covers80List2, "list2", "",
		"second song list (default from dataset.list2)")
}

func runCovers80(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	coverApp, err := covers80Flags.newApp()
	if err != nil {
		return err
	}
	return coverApp.RunCovers80(ctx, covers80List1, covers80List2)
}
