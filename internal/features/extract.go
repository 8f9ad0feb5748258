// Package features turns beat-tracked audio into block-windowed feature
// matrices. Every block spans a fixed number of beats, so blocks of two
// songs are comparable regardless of tempo.
package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/cover-benchmark/internal/curvature"
	"github.com/RyanBlaney/cover-benchmark/internal/diffusion"
	"github.com/RyanBlaney/cover-benchmark/internal/dsp"
)

// ErrBlockTooShort is returned when a block has too few frames for a
// requested feature
var ErrBlockTooShort = errors.New("features: block too short")

// Block maps a feature name to its [blocks][dims] matrix
type Block map[string][][]float64

// NumBlocks returns the block count of the named feature
func (b Block) NumBlocks(name string) int {
	return len(b[name])
}

// Other holds song-level side information used by some comparisons
type Other struct {
	ChromaMean []float64 `json:"chroma_mean,omitempty" yaml:"chroma_mean,omitempty"`
}

// Extractor computes block features with a fixed parameter set
type Extractor struct {
	params Params
	logger logging.Logger
}

// NewExtractor validates params and returns an extractor
func NewExtractor(params Params, logger logging.Logger) (*Extractor, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature params: %w", err)
	}
	return &Extractor{
		params: params,
		logger: logger.WithFields(logging.Fields{"component": "block_features"}),
	}, nil
}

// Params returns the extractor's parameter set
func (e *Extractor) Params() Params {
	return e.params
}

// Extract computes every requested block feature of the mono signal x.
// beats are frame indices at hopSize; tempo (BPM) sets the MFCC window to
// one beat.
func (e *Extractor) Extract(x []float64, fs int, tempo float64, beats []int, hopSize int) (Block, *Other, error) {
	if len(x) == 0 {
		return nil, nil, dsp.ErrEmptySignal
	}
	if tempo <= 0 {
		return nil, nil, fmt.Errorf("features: tempo must be positive, got %g", tempo)
	}
	for i := 1; i < len(beats); i++ {
		if beats[i] <= beats[i-1] {
			return nil, nil, fmt.Errorf("features: beats must be strictly increasing")
		}
	}

	block := Block{}
	other := &Other{}

	if e.params.UsesMFCC() {
		if err := e.mfccFeatures(block, x, fs, tempo, beats, hopSize); err != nil {
			return nil, nil, err
		}
	}
	if e.params.UsesChroma() {
		if err := e.chromaFeatures(block, other, x, fs, beats, hopSize); err != nil {
			return nil, nil, err
		}
	}

	e.logger.Debug("Block features extracted", logging.Fields{
		"tempo":    tempo,
		"beats":    len(beats),
		"features": len(block),
	})
	return block, other, nil
}

func (e *Extractor) mfccFeatures(block Block, x []float64, fs int, tempo float64, beats []int, hopSize int) error {
	p := e.params
	winSize := int(math.Round(60 / tempo * float64(fs)))

	mp := dsp.DefaultMFCCParams()
	mp.NMFCC = p.NMFCC
	mp.LifterExp = p.LifterExp
	X, err := dsp.MFCC(x, fs, winSize, hopSize, mp)
	if err != nil {
		return fmt.Errorf("failed to compute MFCCs: %w", err)
	}

	nBlocks := max(len(beats)-1-p.MFCCBeatsPerBlock, 0)
	for _, name := range p.Names() {
		if name != NameChromas {
			block[name] = make([][]float64, nBlocks)
		}
	}

	numFrames := len(X[0])
	for i := range nBlocks {
		i1, i2 := beats[i], min(beats[i+p.MFCCBeatsPerBlock], numFrames)
		if i2-i1 < 2 {
			return fmt.Errorf("%w: block %d has %d frames", ErrBlockTooShort, i, i2-i1)
		}
		xn := normalizeBlock(dsp.Columns(X, i1, i2))
		if err := e.mfccBlock(block, i, xn); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

func (e *Extractor) mfccBlock(block Block, i int, xn [][]float64) error {
	p := e.params

	if p.MFCCSamplesPerBlock > 0 {
		block[NameMFCCs][i] = dsp.Flatten(dsp.Resize(xn, p.MFCCSamplesPerBlock, len(xn[0])))
	}

	if p.DPixels > 0 || p.D2Samples > 0 {
		D := SSM(xn)
		if p.DPixels > 0 {
			block[NameSSMs][i] = LowerTriangle(dsp.Resize(D, p.DPixels, p.DPixels))
			if p.DiffusionKappa > 0 {
				coords, err := diffusion.Map(D, p.DiffusionKappa, p.TDiffusion)
				if err != nil {
					return err
				}
				DD := SSM(coords)
				block[NameSSMsDiffusion][i] = LowerTriangle(dsp.Resize(DD, p.DPixels, p.DPixels))
			}
		}
		if p.D2Samples > 0 {
			block[NameD2s][i] = D2Histogram(D, p.D2Samples)
		}
	}

	if p.NGeodesic > 0 {
		g, err := Geodesic(xn, p.GeodesicDelta)
		if err != nil {
			return err
		}
		block[NameGeodesics][i] = dsp.Resample(g, p.NGeodesic)
	}

	if order := maxOrder(p.NJump, p.NCurv, p.NTors); order > 0 {
		for _, sigma := range p.CurvSigmas {
			curvs, err := curvature.Vectors(xn, order, sigma)
			if err != nil {
				return err
			}
			if p.NJump > 0 {
				block[JumpsName(sigma)][i] = dsp.Resample(dsp.RowNorms(curvs[1]), p.NJump)
			}
			if p.NCurv > 0 {
				block[CurvsName(sigma)][i] = dsp.Resample(dsp.RowNorms(curvs[2]), p.NCurv)
			}
			if p.NTors > 0 {
				block[TorsName(sigma)][i] = dsp.Resample(dsp.RowNorms(curvs[3]), p.NTors)
			}
		}
	}

	if order := maxOrder(p.NJumpSS, p.NCurvSS, p.NTorsSS); order > 0 {
		images, err := curvature.MultiresImages(xn, order, p.SigmasSS)
		if err != nil {
			return err
		}
		rows := len(p.SigmasSS)
		if p.NJumpSS > 0 {
			block[NameJumpsSS][i] = dsp.Flatten(dsp.Resize(images[1], rows, p.NJumpSS))
		}
		if p.NCurvSS > 0 {
			block[NameCurvsSS][i] = dsp.Flatten(dsp.Resize(images[2], rows, p.NCurvSS))
		}
		if p.NTorsSS > 0 {
			block[NameTorsSS][i] = dsp.Flatten(dsp.Resize(images[3], rows, p.NTorsSS))
		}
	}
	return nil
}

func (e *Extractor) chromaFeatures(block Block, other *Other, x []float64, fs int, beats []int, hopSize int) error {
	p := e.params
	C, err := dsp.HPCP(x, fs, 4*hopSize, hopSize, dsp.DefaultHPCPParams(p.NChromaBins))
	if err != nil {
		return fmt.Errorf("failed to compute HPCP: %w", err)
	}
	other.ChromaMean = dsp.RowMeans(C)

	nBlocks := max(len(beats)-1-p.ChromaBeatsPerBlock, 0)
	numFrames := len(C[0])
	chromas := make([][]float64, nBlocks)
	for i := range nBlocks {
		i1, i2 := beats[i], min(beats[i+p.ChromaBeatsPerBlock], numFrames)
		if i2 <= i1 {
			return fmt.Errorf("%w: chroma block %d is empty", ErrBlockTooShort, i)
		}
		xc := dsp.Resize(dsp.Columns(C, i1, i2), p.ChromasPerBlock, p.NChromaBins)
		normalizeRows(xc)
		chromas[i] = dsp.Flatten(xc)
	}
	block[NameChromas] = chromas
	return nil
}

func maxOrder(nJump, nCurv, nTors int) int {
	switch {
	case nTors > 0:
		return 3
	case nCurv > 0:
		return 2
	case nJump > 0:
		return 1
	}
	return 0
}
