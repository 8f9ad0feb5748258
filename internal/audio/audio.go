// Package audio loads songs from disk as mono PCM.
package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/latency-benchmark-common/stream/common"
	"github.com/RyanBlaney/sonido-sonar/transcode"
)

// ErrEmptyAudio is returned when a file decodes to no samples
var ErrEmptyAudio = errors.New("audio: no samples decoded")

// Audio is a mono signal
type Audio struct {
	Path       string        `json:"path"`
	Samples    []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`
}

// Loader decodes audio files
type Loader struct {
	logger      logging.Logger
	maxDuration time.Duration
}

// NewLoader creates a loader. Songs longer than maxDuration are truncated;
// zero keeps everything.
func NewLoader(maxDuration time.Duration, logger logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Loader{
		logger:      logger.WithFields(logging.Fields{"component": "audio_loader"}),
		maxDuration: maxDuration,
	}
}

// Load decodes the file at path and mixes it down to mono
func (l *Loader) Load(ctx context.Context, path string) (*Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanPath := strings.TrimPrefix(path, "file://")
	if _, err := os.Stat(cleanPath); err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	start := time.Now()
	decoder := transcode.NewNormalizingDecoder(ContentType(cleanPath))
	anyData, err := decoder.DecodeFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio file %s: %w", cleanPath, err)
	}

	data := common.ConvertToAudioData(anyData)
	if data == nil {
		return nil, fmt.Errorf("decoder returned unexpected type: %T", anyData)
	}

	a, err := FromAudioData(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	a.Path = cleanPath

	if l.maxDuration > 0 {
		maxSamples := int(l.maxDuration.Seconds() * float64(a.SampleRate))
		if len(a.Samples) > maxSamples {
			a.Samples = a.Samples[:maxSamples]
			a.Duration = durationOf(len(a.Samples), a.SampleRate)
		}
	}

	l.logger.Debug("Audio loaded", logging.Fields{
		"path":        cleanPath,
		"sample_rate": a.SampleRate,
		"duration":    a.Duration.Seconds(),
		"decode_ms":   time.Since(start).Milliseconds(),
	})
	return a, nil
}

// FromAudioData converts decoded PCM to a mono Audio, averaging
// interleaved channels.
func FromAudioData(data *common.AudioData) (*Audio, error) {
	if data == nil || len(data.PCM) == 0 {
		return nil, ErrEmptyAudio
	}
	if data.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", data.SampleRate)
	}

	samples := data.PCM
	if ch := data.Channels; ch > 1 {
		frames := len(data.PCM) / ch
		samples = make([]float64, frames)
		for f := range frames {
			s := 0.0
			for c := range ch {
				s += data.PCM[f*ch+c]
			}
			samples[f] = s / float64(ch)
		}
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	return &Audio{
		Samples:    samples,
		SampleRate: data.SampleRate,
		Duration:   durationOf(len(samples), data.SampleRate),
	}, nil
}

func durationOf(n, sampleRate int) time.Duration {
	return time.Duration(float64(n) / float64(sampleRate) * float64(time.Second))
}

// ContentType guesses the MIME type of an audio file from its extension
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	case ".m4a", ".mp4":
		return "audio/mp4"
	}
	return ""
}

// ReadList reads a song list file. Each non-empty line names a song
// relative to prefix, without extension.
func ReadList(path, prefix, ext string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open song list: %w", err)
	}
	defer f.Close()

	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		files = append(files, filepath.Join(prefix, name+ext))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read song list %s: %w", path, err)
	}
	return files, nil
}
