package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/cover-benchmark/internal/benchmark"
)

var (
	compareFlags  experimentFlags
	compareTempo1 float64
	compareTempo2 float64
	comparePrefix string
	compareIndex  int
	compareList1  string
	compareList2  string
)

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare [file1 file2]",
	Short: "Compare two songs feature by feature",
	Long: `Track the beats of two songs, extract block features and plot their
cross-similarity, mutual nearest neighbour and Smith-Waterman matrices for
every feature, for the OR of all features and for the fused features.

Either pass two audio files, or --index to pick a cover pair from the
dataset lists.

Examples:
  # Compare two files
  cover-benchmark compare original.mp3 cover.mp3 --prefix pair

  # Compare the 17th covers80 pair at 180 BPM
  cover-benchmark compare --index 16 --tempo1 180 --tempo2 180`,
	Args: func(cmd *cobra.Command, args []string) error {
		if compareIndex < 0 && len(args) != 2 {
			return fmt.Errorf("requires two audio files or --index")
		}
		if compareIndex >= 0 && len(args) != 0 {
			return fmt.Errorf("--index takes no audio files")
		}
		return nil
	},
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareFlags.register(compareCmd, "compare")
	compareCmd.Flags().Float64Var(&compareTempo1, "tempo1", 180,
		"tempo bias of the first song in BPM")
	compareCmd.Flags().Float64Var(&compareTempo2, "tempo2", 180,
		"tempo bias of the second song in BPM")
	compareCmd.Flags().StringVar(&comparePrefix, "prefix", "",
		"output file prefix (default derived from the song names)")
	compareCmd.Flags().IntVar(&compareIndex, "index", -1,
		"compare pair index of the dataset lists")
	compareCmd.Flags().StringVar(&compareList1, "list1", "",
		"first song list for --index")
	compareCmd.Flags().StringVar(&compareList2, "list2", "",
		"second song list for --index")
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	coverApp, err := compareFlags.newApp()
	if err != nil {
		return err
	}

	req := benchmark.CompareRequest{
		TempoBias1: compareTempo1,
		TempoBias2: compareTempo2,
		Prefix:     comparePrefix,
	}
	if compareIndex >= 0 {
		req.File1, req.File2, err = coverApp.CoverPair(compareList1, compareList2, compareIndex)
		if err != nil {
			return err
		}
		if req.Prefix == "" {
			req.Prefix = fmt.Sprintf("Covers80%d", compareIndex)
		}
	} else {
		req.File1, req.File2 = args[0], args[1]
	}
	if req.Prefix == "" {
		req.Prefix = songStem(req.File1) + "_" + songStem(req.File2)
	}

	return coverApp.RunCompare(ctx, req)
}

func songStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
