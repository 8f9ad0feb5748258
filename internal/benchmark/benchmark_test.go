package benchmark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/cover-benchmark/internal/audio"
	"github.com/RyanBlaney/cover-benchmark/internal/beats"
	"github.com/RyanBlaney/cover-benchmark/internal/extraction"
	"github.com/RyanBlaney/cover-benchmark/internal/features"
	"github.com/RyanBlaney/cover-benchmark/internal/matfile"
	"github.com/RyanBlaney/cover-benchmark/internal/similarity"
)

const testBlocks = 30

// ramp is a trajectory of testBlocks evenly spaced blocks
func ramp(reverse bool) [][]float64 {
	X := make([][]float64, testBlocks)
	for t := range X {
		v := float64(t)
		if reverse {
			v = float64(testBlocks - 1 - t)
		}
		X[t] = []float64{v, 0}
	}
	return X
}

func level(bias float64, reverse bool) *extraction.TempoLevel {
	return &extraction.TempoLevel{
		TempoBias: bias,
		Tempo:     bias,
		NumBeats:  testBlocks,
		Features: features.Block{
			features.NameMFCCs: ramp(reverse),
			features.NameSSMs:  ramp(!reverse),
		},
	}
}

// fakeExtractor serves ramps: paths starting with "r" play backwards
type fakeExtractor struct {
	fail   map[string]bool
	params features.Params
}

func newFakeExtractor() *fakeExtractor {
	p := features.DefaultParams()
	p.MFCCSamplesPerBlock = 2
	p.DPixels = 2
	return &fakeExtractor{fail: map[string]bool{}, params: p}
}

func (f *fakeExtractor) ExtractSong(ctx context.Context, path string) *extraction.SongFeatures {
	return f.ExtractSongWithBias(ctx, path, 120)
}

func (f *fakeExtractor) ExtractSongWithBias(_ context.Context, path string, bias float64) *extraction.SongFeatures {
	song := &extraction.SongFeatures{Path: path, Timestamp: time.Now(), TotalProcessingTime: time.Millisecond}
	if f.fail[path] {
		song.Error = fmt.Errorf("failed to load audio: %w", audio.ErrEmptyAudio)
		return song
	}
	song.Levels = []*extraction.TempoLevel{level(bias, path[0] == 'r')}
	return song
}

func (f *fakeExtractor) HopSize() int { return 512 }
func (f *fakeExtractor) TempoBiases() []float64 { return []float64{120} }
func (f *fakeExtractor) Params() features.Params { return f.params }

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.TempoBiases = []float64{120}
	cfg.MaxConcurrent = 2
	cfg.FusionK = 5
	cfg.OutputDir = t.TempDir()
	return cfg
}

func TestEvalStatistics(t *testing.T) {
	scores := [][]float64{
		{0, 1, 5, 2},
		{1, 0, 3, 4},
		{5, 3, 0, 6},
		{2, 4, 6, 0},
	}
	stats, err := EvalStatistics(scores, 4, 2, []int{1, 2})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 2, 2}, stats.Ranks)
	assert.InDelta(t, 1.5, stats.MR, 1e-12)
	assert.InDelta(t, 0.75, stats.MRR, 1e-12)
	assert.InDelta(t, 1.5, stats.MDR, 1e-12)
	assert.Equal(t, []int{2, 4}, stats.Tops)
	assert.Equal(t, 2, stats.Covers80)
	assert.Equal(t, 2, stats.NSongs)

	row := stats.ResultsRow()
	assert.Equal(t, stats.Tops, row.Tops)
	assert.Equal(t, 2, row.Covers80)

	fields := stats.Fields()
	assert.Equal(t, "2/2", fields["covers80_score"])
	assert.Equal(t, 4, fields["top_2"])
}

func TestEvalStatisticsTiesRankByIndex(t *testing.T) {
	scores := [][]float64{
		{9, 3, 3, 3},
		{3, 0, 3, 3},
		{3, 3, 0, 3},
		{3, 3, 3, 0},
	}
	stats, err := EvalStatistics(scores, 4, 2, DefaultTops)
	require.NoError(t, err)

	// row 0 orders 1, 2, 3 so its cover, song 2, comes second
	assert.Equal(t, 2, stats.Ranks[0])
	// row 2 orders 0, 1, 3 so its cover, song 0, comes first
	assert.Equal(t, 1, stats.Ranks[2])
	assert.Equal(t, 1, stats.Covers80)
}

func TestEvalStatisticsValidation(t *testing.T) {
	_, err := EvalStatistics([][]float64{{0}}, 2, 1, DefaultTops)
	assert.Error(t, err)

	_, err = EvalStatistics([][]float64{{0, 1}, {1}}, 2, 1, DefaultTops)
	assert.Error(t, err)

	_, err = EvalStatistics([][]float64{{0, 1}, {1, 0}}, 2, 2, DefaultTops)
	assert.Error(t, err)
}

func TestCalculateStats(t *testing.T) {
	mc := NewMetricsCalculator(nil)

	stats := mc.calculateStats([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 4.0, stats.Max)
	assert.InDelta(t, 2.5, stats.Mean, 1e-12)
	assert.InDelta(t, 2.5, stats.Median, 1e-12)
	assert.InDelta(t, 3.85, stats.P95, 1e-12)
	assert.InDelta(t, 1.118033988749895, stats.StdDev, 1e-12)

	empty := mc.calculateStats(nil)
	assert.Equal(t, 0, empty.Count)
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 95))
	assert.Equal(t, 2.0, percentile([]float64{1, 2, 3}, 50))
	assert.InDelta(t, 1.5, percentile([]float64{1, 2}, 50), 1e-12)
}

func TestCategorizeError(t *testing.T) {
	mc := NewMetricsCalculator(nil)

	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("wrapped: %w", context.Canceled), "cancelled"},
		{fmt.Errorf("failed to load audio: %w", audio.ErrEmptyAudio), "empty_audio"},
		{fmt.Errorf("failed to track beats: %w", beats.ErrNoBeats), "no_beats"},
		{fmt.Errorf("failed to extract block features: %w", features.ErrBlockTooShort), "block_too_short"},
		{errors.New("failed to decode mp3"), "decode"},
		{errors.New("tempo estimate diverged"), "beats"},
		{errors.New("feature shape mismatch"), "features"},
		{errors.New("something else"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, mc.categorizeError(tt.err))
		})
	}
}

func TestCalculateExtractionMetrics(t *testing.T) {
	mc := NewMetricsCalculator(nil)
	fake := newFakeExtractor()
	fake.fail["bad"] = true

	songs := []*extraction.SongFeatures{
		fake.ExtractSong(context.Background(), "a"),
		fake.ExtractSong(context.Background(), "bad"),
	}
	m := mc.CalculateExtractionMetrics(songs)

	assert.InDelta(t, 0.5, m.SuccessRate, 1e-12)
	assert.Equal(t, map[string]int{"empty_audio": 1}, m.ErrorDistribution)
	assert.Equal(t, 1, m.Tempo.Count)
	assert.Equal(t, 120.0, m.Tempo.Mean)
	assert.Equal(t, 2, m.TotalTime.Count)
}

func TestExtractAll(t *testing.T) {
	o := newOrchestrator(testConfig(t), newFakeExtractor(), nil)

	songs, err := o.ExtractAll(context.Background(), []string{"a", "rb", "c"})
	require.NoError(t, err)
	require.Len(t, songs, 3)
	for i, song := range songs {
		assert.Equal(t, i, song.Index)
		assert.NoError(t, song.Error)
	}
	assert.Equal(t, "rb", songs[1].Path)
}

func TestExtractAllFailures(t *testing.T) {
	fake := newFakeExtractor()
	fake.fail["x"] = true
	fake.fail["y"] = true
	o := newOrchestrator(testConfig(t), fake, nil)

	songs, err := o.ExtractAll(context.Background(), []string{"x", "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, extraction.CountFailed(songs))

	_, err = o.ExtractAll(context.Background(), []string{"x", "y"})
	assert.ErrorContains(t, err, "all 2 songs failed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.ExtractAll(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScores(t *testing.T) {
	o := newOrchestrator(testConfig(t), newFakeExtractor(), nil)
	songs, err := o.ExtractAll(context.Background(), []string{"a", "rb", "c", "rd"})
	require.NoError(t, err)

	fs, err := o.Scores(context.Background(), songs, features.NameMFCCs)
	require.NoError(t, err)
	assert.Equal(t, similarity.Euclidean, fs.CSMType)

	for i := range 4 {
		assert.Equal(t, 0.0, fs.Scores[i][i])
		for j := range 4 {
			assert.Equal(t, fs.Scores[i][j], fs.Scores[j][i])
		}
	}
	// same direction aligns along the whole trajectory
	assert.Greater(t, fs.Scores[0][2], fs.Scores[0][1])
	assert.Greater(t, fs.Scores[1][3], fs.Scores[1][2])
	assert.Greater(t, fs.Scores[0][2], 20.0)
}

func TestBestScorePicksTempoLevels(t *testing.T) {
	o := newOrchestrator(testConfig(t), newFakeExtractor(), nil)

	failed := level(60, false)
	failed.Error = beats.ErrNoBeats
	s1 := &extraction.SongFeatures{Levels: []*extraction.TempoLevel{level(60, true), failed, level(180, false)}}
	s2 := &extraction.SongFeatures{Levels: []*extraction.TempoLevel{level(120, false)}}

	score, tempos, err := o.bestScore(s1, s2, features.NameMFCCs, similarity.Euclidean)
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 0}, tempos)
	assert.Greater(t, score, 20.0)

	score, tempos, err = o.bestScore(s1, nil, features.NameMFCCs, similarity.Euclidean)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, [2]int{}, tempos)

	fs, err := o.Scores(context.Background(), []*extraction.SongFeatures{s1, s2}, features.NameMFCCs)
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 0}, fs.BestTempos[0][1])
	assert.Equal(t, [2]int{0, 2}, fs.BestTempos[1][0])
}

func TestOrderedFeatures(t *testing.T) {
	fake := newFakeExtractor()
	p := fake.params
	p.D2Samples = 10
	song := fake.ExtractSong(context.Background(), "a")

	// D2s is requested but no song has it
	assert.Equal(t, []string{features.NameMFCCs, features.NameSSMs}, orderedFeatures(p, []*extraction.SongFeatures{song, nil}))
}

func TestRunCovers80(t *testing.T) {
	cfg := testConfig(t)
	o := newOrchestrator(cfg, newFakeExtractor(), nil)

	summary, err := o.RunCovers80(context.Background(), []string{"a", "rb"}, []string{"c", "rd"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NSongs)
	assert.Equal(t, []string{features.NameMFCCs, features.NameSSMs}, summary.Features)
	assert.Equal(t, 0, summary.FailedSongs)
	assert.Len(t, summary.RunID, 16)
	for _, name := range summary.Features {
		stats := summary.Stats[name]
		require.NotNil(t, stats, name)
		assert.Equal(t, 2, stats.Covers80)
		assert.InDelta(t, 1.0, stats.MR, 1e-12)
	}

	csmDir := filepath.Join(cfg.OutputDir, CSMResultsDir)
	for _, name := range []string{
		filepath.Join(cfg.OutputDir, "results.html"),
		filepath.Join(cfg.OutputDir, "Results.mat"),
		filepath.Join(csmDir, "index.html"),
		filepath.Join(csmDir, "0.html"),
		filepath.Join(csmDir, "1.html"),
		filepath.Join(csmDir, "0MFCCs.svg"),
		filepath.Join(csmDir, "1SSMs.svg"),
	} {
		assert.FileExists(t, name)
	}
	assert.NoFileExists(t, filepath.Join(csmDir, "2.html"))

	index, err := os.ReadFile(summary.IndexPage)
	require.NoError(t, err)
	assert.Contains(t, string(index), "4 of 4 song and feature pairs identified")
	assert.NotContains(t, string(index), "Incorrect")

	page, err := os.ReadFile(filepath.Join(csmDir, "0.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), `<a name="MFCCs">MFCCs: Euclidean (Tempo Level 0, 0)</a>`)
}

func TestRunCovers80Validation(t *testing.T) {
	o := newOrchestrator(testConfig(t), newFakeExtractor(), nil)

	_, err := o.RunCovers80(context.Background(), []string{"a"}, []string{"b", "c"})
	assert.Error(t, err)

	_, err = o.RunCovers80(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestCompareTwoSongs(t *testing.T) {
	cfg := testConfig(t)
	cfg.PlotFormat = "png"
	o := newOrchestrator(cfg, newFakeExtractor(), nil)

	summary, err := o.CompareTwoSongs(context.Background(), CompareRequest{
		File1: "a", TempoBias1: 120,
		File2: "c", TempoBias2: 60,
		Prefix: "pair",
	})
	require.NoError(t, err)

	assert.Equal(t, 120.0, summary.Tempo1)
	assert.Equal(t, 60.0, summary.Tempo2)
	assert.Greater(t, summary.Scores[features.NameMFCCs], 20.0)
	assert.Greater(t, summary.ORMergeScore, 20.0)
	assert.Len(t, summary.Figures, 4)
	for _, fig := range []string{"pair_CSMs_MFCCs.png", "pair_CSMs_SSMs.png", "pair_CSMs_ORMerged.png", "pair_CSMs_Fused.png"} {
		assert.FileExists(t, filepath.Join(cfg.OutputDir, fig))
	}
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "pair.mat"))
}

func TestCompareTwoSongsErrors(t *testing.T) {
	fake := newFakeExtractor()
	fake.fail["bad"] = true
	o := newOrchestrator(testConfig(t), fake, nil)

	_, err := o.CompareTwoSongs(context.Background(), CompareRequest{File1: "a", File2: "c"})
	assert.Error(t, err)

	_, err = o.CompareTwoSongs(context.Background(), CompareRequest{File1: "a", File2: "bad", Prefix: "p"})
	assert.ErrorIs(t, err, audio.ErrEmptyAudio)
}

func TestRunID(t *testing.T) {
	cfg := DefaultConfig()
	p := features.Covers80Params()

	id := RunID(p, cfg, []string{"a", "b"})
	assert.Equal(t, id, RunID(p, cfg, []string{"a", "b"}))
	assert.NotEqual(t, id, RunID(p, cfg, []string{"a", "c"}))
}

func TestParamsStruct(t *testing.T) {
	s := ParamsStruct(features.DefaultParams())

	names := map[string]bool{}
	for _, v := range s {
		names[v.Name] = true
	}
	assert.True(t, names["NMFCC"])
	assert.True(t, names["CurvSigmas"])
	assert.False(t, names["DPixels"])

	var buf matfileBuffer
	f := &matfile.File{}
	f.Set("Params", s)
	require.NoError(t, f.Encode(&buf, false))
	assert.NotZero(t, buf.n)
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 0, argmax([]float64{3, 1, 3}))
	assert.Equal(t, 2, argmax([]float64{1, 2, 5}))
}

type matfileBuffer struct{ n int }

func (b *matfileBuffer) Write(p []byte) (int, error) {
	b.n += len(p)
	return len(p), nil
}
