package benchmark

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/cover-benchmark/internal/audio"
	"github.com/RyanBlaney/cover-benchmark/internal/beats"
	"github.com/RyanBlaney/cover-benchmark/internal/extraction"
	"github.com/RyanBlaney/cover-benchmark/internal/features"
	"github.com/RyanBlaney/cover-benchmark/internal/report"
)

// DefaultTops are the rank cut-offs reported by EvalStatistics
var DefaultTops = []int{1, 25, 50, 100}

// EvalStats is the retrieval quality of one score matrix
type EvalStats struct {
	Name   string  `json:"name"`
	Ranks  []int   `json:"ranks"`
	MR     float64 `json:"mean_rank"`
	MRR    float64 `json:"mean_reciprocal_rank"`
	MDR    float64 `json:"median_rank"`
	TopIdx []int   `json:"top_k"`
	Tops   []int   `json:"top_k_counts"`
	// Covers80 counts the songs of the first list whose best match in the
	// second list is their own cover
	Covers80 int `json:"covers80_score"`
	NSongs   int `json:"num_songs"`
}

// EvalStatistics ranks every song's true cover, song (i+nSongs) mod n,
// against all other songs by descending score. The diagonal is excluded and
// ties are ranked by song index.
func EvalStatistics(scores [][]float64, n, nSongs int, tops []int) (*EvalStats, error) {
	if len(scores) != n {
		return nil, fmt.Errorf("score matrix has %d rows, want %d", len(scores), n)
	}
	if nSongs <= 0 || nSongs >= n {
		return nil, fmt.Errorf("invalid song split %d of %d", nSongs, n)
	}
	for i, row := range scores {
		if len(row) != n {
			return nil, fmt.Errorf("score matrix row %d has %d columns, want %d", i, len(row), n)
		}
	}

	stats := &EvalStats{
		Ranks:  make([]int, n),
		TopIdx: append([]int(nil), tops...),
		Tops:   make([]int, len(tops)),
		NSongs: nSongs,
	}

	order := make([]int, n)
	for i, row := range scores {
		for k := range order {
			order[k] = k
		}
		key := func(k int) float64 {
			if k == i {
				return math.Inf(-1)
			}
			return row[k]
		}
		sort.SliceStable(order, func(a, b int) bool { return key(order[a]) > key(order[b]) })

		cover := (i + nSongs) % n
		for k, idx := range order {
			if idx == cover {
				stats.Ranks[i] = k + 1
				break
			}
		}
	}

	ranks := make([]float64, n)
	recip := 0.0
	for i, r := range stats.Ranks {
		ranks[i] = float64(r)
		recip += 1 / float64(r)
	}
	stats.MR = mean(ranks)
	stats.MRR = recip / float64(n)
	sort.Float64s(ranks)
	stats.MDR = percentile(ranks, 50)

	for t, top := range tops {
		for _, r := range stats.Ranks {
			if r <= top {
				stats.Tops[t]++
			}
		}
	}

	for i := range nSongs {
		best := nSongs
		for j := nSongs + 1; j < n; j++ {
			if scores[i][j] > scores[i][best] {
				best = j
			}
		}
		if best-nSongs == i {
			stats.Covers80++
		}
	}

	return stats, nil
}

// ResultsRow converts the statistics into a results table row
func (s *EvalStats) ResultsRow() report.ResultsRow {
	return report.ResultsRow{
		Name:     s.Name,
		MR:       s.MR,
		MRR:      s.MRR,
		MDR:      s.MDR,
		Tops:     s.Tops,
		Covers80: s.Covers80,
		NSongs:   s.NSongs,
	}
}

// Fields returns the statistics as log fields
func (s *EvalStats) Fields() logging.Fields {
	f := logging.Fields{
		"feature":        s.Name,
		"mr":             s.MR,
		"mrr":            s.MRR,
		"mdr":            s.MDR,
		"covers80_score": fmt.Sprintf("%d/%d", s.Covers80, s.NSongs),
	}
	for t, top := range s.TopIdx {
		f[fmt.Sprintf("top_%d", top)] = s.Tops[t]
	}
	return f
}

// MetricsCalculator summarizes extraction runs
type MetricsCalculator struct {
	logger logging.Logger
}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator(logger logging.Logger) *MetricsCalculator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &MetricsCalculator{
		logger: logger,
	}
}

// TimingStats represents statistical measures of a duration in milliseconds
type TimingStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// ExtractionMetrics represents the cost and reliability of an extraction run
type ExtractionMetrics struct {
	LoadTime          *TimingStats   `json:"load_time_ms"`
	ExtractionTime    *TimingStats   `json:"extraction_time_ms"`
	TotalTime         *TimingStats   `json:"total_time_ms"`
	Tempo             *TimingStats   `json:"tempo_bpm"`
	SuccessRate       float64        `json:"success_rate"`
	ErrorDistribution map[string]int `json:"error_distribution"`
}

// CalculateExtractionMetrics calculates timing and error metrics of songs
func (mc *MetricsCalculator) CalculateExtractionMetrics(songs []*extraction.SongFeatures) *ExtractionMetrics {
	var loadTimes, extractTimes, totalTimes, tempos []float64
	errorDist := make(map[string]int)
	ok := 0

	for _, song := range songs {
		if song == nil {
			continue
		}
		if song.Error != nil {
			errorDist[mc.categorizeError(song.Error)]++
		} else {
			ok++
		}
		if song.LoadTime > 0 {
			loadTimes = append(loadTimes, float64(song.LoadTime.Milliseconds()))
		}
		if song.ExtractionTime > 0 {
			extractTimes = append(extractTimes, float64(song.ExtractionTime.Milliseconds()))
		}
		totalTimes = append(totalTimes, float64(song.TotalProcessingTime.Milliseconds()))
		for _, level := range song.Levels {
			if level != nil && level.Tempo > 0 {
				tempos = append(tempos, level.Tempo)
			}
		}
	}

	metrics := &ExtractionMetrics{
		LoadTime:          mc.calculateStats(loadTimes),
		ExtractionTime:    mc.calculateStats(extractTimes),
		TotalTime:         mc.calculateStats(totalTimes),
		Tempo:             mc.calculateStats(tempos),
		ErrorDistribution: errorDist,
	}
	if len(songs) > 0 {
		metrics.SuccessRate = float64(ok) / float64(len(songs))
	}

	mc.logger.Debug("Extraction metrics calculated", logging.Fields{
		"songs":        len(songs),
		"success_rate": metrics.SuccessRate,
		"errors":       len(errorDist),
	})
	return metrics
}

// calculateStats calculates statistical measures for a dataset
func (mc *MetricsCalculator) calculateStats(data []float64) *TimingStats {
	if len(data) == 0 {
		return &TimingStats{Count: 0}
	}

	sortedData := make([]float64, len(data))
	copy(sortedData, data)
	sort.Float64s(sortedData)

	stats := &TimingStats{
		Count:  len(data),
		Min:    sortedData[0],
		Max:    sortedData[len(sortedData)-1],
		Median: percentile(sortedData, 50),
		P95:    percentile(sortedData, 95),
		Mean:   mean(data),
	}

	sumSquaredDiffs := 0.0
	for _, value := range data {
		diff := value - stats.Mean
		sumSquaredDiffs += diff * diff
	}
	stats.StdDev = math.Sqrt(sumSquaredDiffs / float64(len(data)))

	return sanitizeStats(stats)
}

// sanitizeStats replaces infinite and NaN values so the stats serialize
func sanitizeStats(stats *TimingStats) *TimingStats {
	for _, v := range []*float64{&stats.Mean, &stats.Median, &stats.P95, &stats.Min, &stats.Max, &stats.StdDev} {
		if math.IsInf(*v, 0) || math.IsNaN(*v) {
			*v = 0
		}
	}
	return stats
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// percentile interpolates the p-th percentile of sorted data
func percentile(sortedData []float64, p float64) float64 {
	if len(sortedData) == 0 {
		return 0
	}

	if len(sortedData) == 1 {
		return sortedData[0]
	}

	index := (p / 100.0) * float64(len(sortedData)-1)

	if index != float64(int(index)) {
		lower := int(math.Floor(index))
		upper := int(math.Ceil(index))

		if upper >= len(sortedData) {
			return sortedData[len(sortedData)-1]
		}

		weight := index - float64(lower)
		return sortedData[lower]*(1-weight) + sortedData[upper]*weight
	}

	return sortedData[int(index)]
}

// categorizeError categorizes extraction errors
func (mc *MetricsCalculator) categorizeError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, audio.ErrEmptyAudio), errors.Is(err, beats.ErrEmptyAudio):
		return "empty_audio"
	case errors.Is(err, beats.ErrNoBeats):
		return "no_beats"
	case errors.Is(err, features.ErrBlockTooShort):
		return "block_too_short"
	}

	errStr := err.Error()
	if containsAny(errStr, []string{"decode", "format", "codec", "open"}) {
		return "decode"
	}
	if containsAny(errStr, []string{"beat", "tempo"}) {
		return "beats"
	}
	if containsAny(errStr, []string{"feature", "block"}) {
		return "features"
	}
	return "other"
}

func containsAny(str string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(str, substr) {
			return true
		}
	}
	return false
}
