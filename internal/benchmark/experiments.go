package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/cover-benchmark/internal/extraction"
	"github.com/RyanBlaney/cover-benchmark/internal/features"
	"github.com/RyanBlaney/cover-benchmark/internal/matfile"
	"github.com/RyanBlaney/cover-benchmark/internal/report"
	"github.com/RyanBlaney/cover-benchmark/internal/similarity"
)

// CSMResultsDir holds the per-song pages and figures of an experiment
const CSMResultsDir = "CSMResults"

// Covers80Summary is the outcome of a covers80 style experiment
type Covers80Summary struct {
	RunID         string                `json:"run_id"`
	NSongs        int                   `json:"num_songs"`
	Features      []string              `json:"features"`
	Stats         map[string]*EvalStats `json:"stats"`
	Extraction    *ExtractionMetrics    `json:"extraction"`
	FailedSongs   int                   `json:"failed_songs"`
	MatFile       string                `json:"mat_file"`
	IndexPage     string                `json:"index_page"`
	StartTime     time.Time             `json:"start_time"`
	EndTime       time.Time             `json:"end_time"`
	TotalDuration time.Duration         `json:"total_duration"`
}

// RunID hashes the parameters and song list of an experiment
func RunID(params features.Params, cfg *Config, files []string) string {
	b, _ := json.Marshal(struct {
		Params      features.Params
		TempoBiases []float64
		HopSize     int
		Kappa       float64
		Files       []string
	}{params, cfg.TempoBiases, cfg.HopSize, cfg.Kappa, files})
	return fmt.Sprintf("%016x", xxhash.Checksum64(b))
}

// RunCovers80 runs the full experiment: songs files1[i] and files2[i] are
// covers of each other. Every feature is scored over all pairs, evaluated,
// appended to the results page and dumped to the mat file; every song of
// the first list gets a page of cross-similarity figures against its cover.
func (o *Orchestrator) RunCovers80(ctx context.Context, files1, files2 []string) (*Covers80Summary, error) {
	if len(files1) == 0 || len(files1) != len(files2) {
		return nil, fmt.Errorf("song lists must be non-empty and of equal length, got %d and %d", len(files1), len(files2))
	}
	startTime := time.Now()

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	nSongs := len(files1)
	files := append(append([]string(nil), files1...), files2...)
	n := len(files)
	params := o.extractor.Params()

	summary := &Covers80Summary{
		RunID:     RunID(params, o.config, files),
		NSongs:    nSongs,
		Stats:     make(map[string]*EvalStats),
		StartTime: startTime,
	}

	o.logger.Info("Starting covers80 experiment", logging.Fields{
		"run_id":       summary.RunID,
		"songs":        n,
		"tempo_biases": o.config.TempoBiases,
		"kappa":        o.config.Kappa,
	})

	songs, err := o.ExtractAll(ctx, files)
	if err != nil {
		return nil, err
	}
	summary.Extraction = o.metrics.CalculateExtractionMetrics(songs)
	summary.FailedSongs = extraction.CountFailed(songs)

	csmDir := filepath.Join(o.config.OutputDir, CSMResultsDir)
	if err := report.EnsureDir(csmDir); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", csmDir, err)
	}
	pages := make([]*report.SongPage, nSongs)
	for i := range nSongs {
		if pages[i], err = report.NewSongPage(csmDir, i, files[i]); err != nil {
			return nil, err
		}
	}

	mat := &matfile.File{}
	mat.Set("Params", ParamsStruct(params))
	mat.Set("hopSize", o.extractor.HopSize())
	mat.Set("TempoBiases", o.config.TempoBiases)
	mat.Set("Kappa", o.config.Kappa)
	mat.Set("CSMTypes", csmTypesStruct(o.config.CSMTypes))
	mat.Set("files", files)
	summary.MatFile = filepath.Join(o.config.OutputDir, o.config.MatFile)
	resultsPage := filepath.Join(o.config.OutputDir, o.config.ResultsPage)

	summary.Features = orderedFeatures(params, songs)
	correct := make([][]bool, nSongs)
	for i := range correct {
		correct[i] = make([]bool, len(summary.Features))
	}

	for f, feature := range summary.Features {
		scores, err := o.Scores(ctx, songs, feature)
		if err != nil {
			return nil, err
		}

		stats, err := EvalStatistics(scores.Scores, n, nSongs, o.config.Tops)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate %s: %w", feature, err)
		}
		stats.Name = feature
		summary.Stats[feature] = stats
		o.logger.Info("Feature evaluated", stats.Fields())

		if err := report.AppendResultsRow(resultsPage, stats.ResultsRow()); err != nil {
			return nil, err
		}

		mat.Set(feature, scores.Scores)
		mat.Set(feature+"Tempos", temposArray(scores.BestTempos))
		if err := mat.Save(summary.MatFile, o.config.Compress); err != nil {
			return nil, fmt.Errorf("failed to save results: %w", err)
		}

		for i := range nSongs {
			correct[i][f] = argmax(scores.Scores[i][nSongs:]) == i
			if err := o.plotCoverPair(pages[i], songs[i], songs[i+nSongs], scores, i+nSongs); err != nil {
				return nil, err
			}
		}
	}

	entries := make([]report.IndexEntry, nSongs)
	for i := range entries {
		entries[i] = report.IndexEntry{Index: i, Title: report.SongTitle(files[i]), Correct: correct[i]}
	}
	summary.IndexPage = filepath.Join(csmDir, "index.html")
	if err := report.WriteIndex(summary.IndexPage, summary.Features, entries); err != nil {
		return nil, err
	}

	summary.EndTime = time.Now()
	summary.TotalDuration = summary.EndTime.Sub(startTime)

	o.logger.Info("Covers80 experiment completed", logging.Fields{
		"run_id":           summary.RunID,
		"features":         len(summary.Features),
		"failed_songs":     summary.FailedSongs,
		"total_duration_s": summary.TotalDuration.Seconds(),
	})
	return summary, nil
}

// plotCoverPair draws the cross-similarity of song i and its cover at the
// tempo levels that scored best and adds it to the song's page
func (o *Orchestrator) plotCoverPair(page *report.SongPage, s1, s2 *extraction.SongFeatures, scores *FeatureScores, j int) error {
	i := s1.Index
	bt := scores.BestTempos[i][j]
	l1, l2 := s1.Level(bt[0]), s2.Level(bt[1])
	if !l1.OK() || !l2.OK() {
		return nil
	}

	res, err := similarity.ScoreFeature(l1.Features[scores.Feature], l1.Other, l2.Features[scores.Feature], l2.Other, o.config.Kappa, scores.CSMType)
	if err != nil {
		return fmt.Errorf("failed to plot %s for song %d: %w", scores.Feature, i, err)
	}

	image := page.ImageName(scores.Feature, o.plotExt())
	path := filepath.Join(filepath.Dir(page.Path()), image)
	if err := o.writeFigure(path, csmPanels(scores.Feature, res, o.config.Kappa)); err != nil {
		return err
	}
	return page.AddSection(scores.Feature, string(scores.CSMType), bt[0], bt[1], res.Score, image)
}

func csmPanels(feature string, res *similarity.Result, kappa float64) []report.Panel {
	return []report.Panel{
		{Title: "CSM " + feature, Data: res.CSM, Colormap: report.Afmhot},
		{Title: fmt.Sprintf("CSM Binary, kappa=%g", kappa), Data: res.Binary, Colormap: report.Gray, Invert: true},
		{Title: fmt.Sprintf("Smith Waterman Score = %g", res.Score), Data: res.Alignment, Colormap: report.Afmhot},
	}
}

func (o *Orchestrator) plotExt() string {
	if o.config.PlotFormat == "png" {
		return "png"
	}
	return "svg"
}

func (o *Orchestrator) writeFigure(path string, panels []report.Panel) error {
	if o.plotExt() == "png" {
		return report.HeatmapPNG(path, panels, report.DefaultOptions())
	}
	return report.HeatmapSVG(path, panels, report.DefaultOptions())
}

// argmax returns the first index of the largest value
func argmax(x []float64) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

func temposArray(bt [][][2]int) [][][]float64 {
	out := make([][][]float64, len(bt))
	for i, row := range bt {
		out[i] = make([][]float64, len(row))
		for j, p := range row {
			out[i][j] = []float64{float64(p[0]), float64(p[1])}
		}
	}
	return out
}

func csmTypesStruct(types map[string]similarity.CSMType) matfile.Struct {
	m := make(map[string]string, len(types))
	for k, v := range types {
		m[k] = string(v)
	}
	return matfile.StructFromMap(m)
}

// ParamsStruct lists the requested feature parameters as a mat struct
func ParamsStruct(p features.Params) matfile.Struct {
	s := matfile.Struct{}
	add := func(name string, v float64) {
		if v != 0 {
			s = append(s, matfile.Var{Name: name, Value: v})
		}
	}
	add("NMFCC", float64(p.NMFCC))
	add("lifterexp", p.LifterExp)
	add("MFCCBeatsPerBlock", float64(p.MFCCBeatsPerBlock))
	add("MFCCSamplesPerBlock", float64(p.MFCCSamplesPerBlock))
	add("DPixels", float64(p.DPixels))
	add("DiffusionKappa", p.DiffusionKappa)
	add("tDiffusion", p.TDiffusion)
	add("D2Samples", float64(p.D2Samples))
	add("GeodesicDelta", float64(p.GeodesicDelta))
	add("NGeodesic", float64(p.NGeodesic))
	add("NJump", float64(p.NJump))
	add("NCurv", float64(p.NCurv))
	add("NTors", float64(p.NTors))
	if len(p.CurvSigmas) > 0 {
		s = append(s, matfile.Var{Name: "CurvSigmas", Value: p.CurvSigmas})
	}
	add("NJumpSS", float64(p.NJumpSS))
	add("NCurvSS", float64(p.NCurvSS))
	add("NTorsSS", float64(p.NTorsSS))
	if len(p.SigmasSS) > 0 {
		s = append(s, matfile.Var{Name: "SigmasSS", Value: p.SigmasSS})
	}
	add("ChromaBeatsPerBlock", float64(p.ChromaBeatsPerBlock))
	add("ChromasPerBlock", float64(p.ChromasPerBlock))
	add("NChromaBins", float64(p.NChromaBins))
	return s
}

// CompareRequest names two songs and the tempo bias to track each with
type CompareRequest struct {
	File1      string
	TempoBias1 float64
	File2      string
	TempoBias2 float64
	// Prefix is prepended to every output file
	Prefix string
}

// CompareSummary is the outcome of a two-song comparison
type CompareSummary struct {
	File1         string             `json:"file1"`
	File2         string             `json:"file2"`
	Tempo1        float64            `json:"tempo1"`
	Tempo2        float64            `json:"tempo2"`
	Features      []string           `json:"features"`
	Scores        map[string]float64 `json:"scores"`
	ORMergeScore  float64            `json:"or_merge_score"`
	FusedScore    float64            `json:"fused_score"`
	Figures       []string           `json:"figures"`
	MatFile       string             `json:"mat_file"`
	TotalDuration time.Duration      `json:"total_duration"`
}

// CompareTwoSongs scores two songs on every feature on its own, on the OR
// of all binary matrices and on the fused cross-similarity, plotting each.
// Parameters and the fused CSM are saved to <prefix>.mat.
func (o *Orchestrator) CompareTwoSongs(ctx context.Context, req CompareRequest) (*CompareSummary, error) {
	startTime := time.Now()
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	if req.Prefix == "" {
		return nil, fmt.Errorf("an output prefix is required")
	}

	s1 := o.extractor.ExtractSongWithBias(ctx, req.File1, req.TempoBias1)
	if s1.Error != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", req.File1, s1.Error)
	}
	s2 := o.extractor.ExtractSongWithBias(ctx, req.File2, req.TempoBias2)
	if s2.Error != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", req.File2, s2.Error)
	}
	l1, l2 := s1.Level(0), s2.Level(0)
	song1, song2 := l1.Song(), l2.Song()

	summary := &CompareSummary{
		File1:    req.File1,
		File2:    req.File2,
		Tempo1:   l1.Tempo,
		Tempo2:   l2.Tempo,
		Features: orderedFeatures(o.extractor.Params(), []*extraction.SongFeatures{s1}),
		Scores:   make(map[string]float64),
	}

	o.logger.Info("Comparing songs", logging.Fields{
		"file1":    req.File1,
		"file2":    req.File2,
		"tempo1":   l1.Tempo,
		"tempo2":   l2.Tempo,
		"features": summary.Features,
	})

	outPath := func(suffix string) string {
		return filepath.Join(o.config.OutputDir, fmt.Sprintf("%s_CSMs_%s.%s", req.Prefix, suffix, o.plotExt()))
	}

	for _, feature := range summary.Features {
		t := similarity.CSMTypeFor(feature, o.config.CSMTypes)
		res, err := similarity.ScoreFeature(song1.Features[feature], song1.Other, song2.Features[feature], song2.Other, o.config.Kappa, t)
		if err != nil {
			return nil, fmt.Errorf("failed to score %s: %w", feature, err)
		}
		summary.Scores[feature] = res.Score
		path := outPath(feature)
		if err := o.writeFigure(path, csmPanels(feature, res, o.config.Kappa)); err != nil {
			return nil, err
		}
		summary.Figures = append(summary.Figures, path)
	}

	merged, err := similarity.ScoreORMerge(song1, song2, o.config.Kappa, o.config.CSMTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to merge features: %w", err)
	}
	summary.ORMergeScore = merged.Score
	path := outPath("ORMerged")
	if err := o.writeFigure(path, []report.Panel{
		{Title: fmt.Sprintf("CSM Binary OR Fused, kappa=%g", o.config.Kappa), Data: merged.Binary, Colormap: report.Gray, Invert: true},
		{Title: fmt.Sprintf("Smith Waterman Score = %g", merged.Score), Data: merged.Alignment, Colormap: report.Afmhot},
	}); err != nil {
		return nil, err
	}
	summary.Figures = append(summary.Figures, path)

	fused, err := similarity.ScoreEarlyFusion(song1, song2, o.config.Kappa, o.config.FusionK, o.config.FusionIters, o.config.CSMTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to fuse features: %w", err)
	}
	summary.FusedScore = fused.Score
	path = outPath("Fused")
	if err := o.writeFigure(path, []report.Panel{
		{Title: "W Similarity Network Fusion", Data: fused.CSM, Colormap: report.Afmhot},
		{Title: fmt.Sprintf("CSM Binary, kappa=%g", o.config.Kappa), Data: fused.Binary, Colormap: report.Gray, Invert: true},
		{Title: fmt.Sprintf("Smith Waterman Score = %g", fused.Score), Data: fused.Alignment, Colormap: report.Afmhot},
	}); err != nil {
		return nil, err
	}
	summary.Figures = append(summary.Figures, path)

	mat := &matfile.File{}
	mat.Set("filename1", req.File1)
	mat.Set("filename2", req.File2)
	mat.Set("TempoBias1", req.TempoBias1)
	mat.Set("TempoBias2", req.TempoBias2)
	mat.Set("hopSize", o.extractor.HopSize())
	mat.Set("FeatureParams", ParamsStruct(o.extractor.Params()))
	mat.Set("CSMTypes", csmTypesStruct(o.config.CSMTypes))
	mat.Set("Kappa", o.config.Kappa)
	mat.Set("CSMFused", fused.CSM)
	summary.MatFile = filepath.Join(o.config.OutputDir, req.Prefix+".mat")
	if err := mat.Save(summary.MatFile, o.config.Compress); err != nil {
		return nil, fmt.Errorf("failed to save comparison: %w", err)
	}

	summary.TotalDuration = time.Since(startTime)
	o.logger.Info("Comparison completed", logging.Fields{
		"or_merge_score":   summary.ORMergeScore,
		"fused_score":      summary.FusedScore,
		"total_duration_s": summary.TotalDuration.Seconds(),
	})
	return summary, nil
}
