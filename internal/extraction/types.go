package extraction

import (
	"sort"
	"time"

	"github.com/RyanBlaney/cover-benchmark/internal/features"
	"github.com/RyanBlaney/cover-benchmark/internal/similarity"
)

// TempoLevel is the beat grid and block features of one song tracked with
// one tempo bias
type TempoLevel struct {
	TempoBias float64         `json:"tempo_bias"`
	Tempo     float64         `json:"tempo"`
	NumBeats  int             `json:"num_beats"`
	Beats     []int           `json:"-"`
	Features  features.Block  `json:"-"`
	Other     *features.Other `json:"other,omitempty"`
	Error     error           `json:"error,omitempty"`
}

// Song returns the level as a comparable song
func (l *TempoLevel) Song() similarity.Song {
	return similarity.Song{Features: l.Features, Other: l.Other}
}

// OK reports whether the level produced features
func (l *TempoLevel) OK() bool {
	return l != nil && l.Error == nil && l.Features != nil
}

// SongFeatures holds every tempo level of a single song
type SongFeatures struct {
	Path                string        `json:"path"`
	Index               int           `json:"index"`
	SampleRate          int           `json:"sample_rate"`
	AudioDuration       time.Duration `json:"audio_duration"`
	Levels              []*TempoLevel `json:"levels"`
	LoadTime            time.Duration `json:"load_time"`
	ExtractionTime      time.Duration `json:"extraction_time"`
	TotalProcessingTime time.Duration `json:"total_processing_time"`
	Error               error         `json:"error,omitempty"`
	Timestamp           time.Time     `json:"timestamp"`
}

// Level returns tempo level k, or nil when it does not exist
func (s *SongFeatures) Level(k int) *TempoLevel {
	if s == nil || k < 0 || k >= len(s.Levels) {
		return nil
	}
	return s.Levels[k]
}

// FeatureNames returns the sorted union of feature names over all levels
func (s *SongFeatures) FeatureNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, l := range s.Levels {
		if !l.OK() {
			continue
		}
		for name := range l.Features {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// CountFailed returns how many songs carry an error
func CountFailed(songs []*SongFeatures) int {
	n := 0
	for _, s := range songs {
		if s == nil || s.Error != nil {
			n++
		}
	}
	return n
}
