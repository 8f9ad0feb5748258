package features

import (
	"fmt"

	"github.com/RyanBlaney/cover-benchmark/internal/dsp"
)

// Params selects and sizes the block features. Output sizes (MFCCSamplesPerBlock,
// DPixels, NGeodesic, NJump, NCurv, NTors, the scale-space sizes, D2Samples
// and ChromasPerBlock) are switches: zero means the feature is not computed.
// DiffusionKappa likewise enables SSMsDiffusion on top of SSMs.
type Params struct {
	// MFCC block settings
	NMFCC               int     `json:"nmfcc" yaml:"nmfcc"`
	LifterExp           float64 `json:"lifter_exp" yaml:"lifter_exp"`
	MFCCBeatsPerBlock   int     `json:"mfcc_beats_per_block" yaml:"mfcc_beats_per_block"`
	MFCCSamplesPerBlock int     `json:"mfcc_samples_per_block" yaml:"mfcc_samples_per_block"`

	// Self-similarity
	DPixels        int     `json:"dpixels" yaml:"dpixels"`
	DiffusionKappa float64 `json:"diffusion_kappa" yaml:"diffusion_kappa"`
	TDiffusion     float64 `json:"t_diffusion" yaml:"t_diffusion"`
	D2Samples      int     `json:"d2_samples" yaml:"d2_samples"`

	// Trajectory shape
	GeodesicDelta int       `json:"geodesic_delta" yaml:"geodesic_delta"`
	NGeodesic     int       `json:"ngeodesic" yaml:"ngeodesic"`
	CurvSigmas    []float64 `json:"curv_sigmas" yaml:"curv_sigmas"`
	NJump         int       `json:"njump" yaml:"njump"`
	NCurv         int       `json:"ncurv" yaml:"ncurv"`
	NTors         int       `json:"ntors" yaml:"ntors"`

	// Scale space
	SigmasSS []float64 `json:"sigmas_ss" yaml:"sigmas_ss"`
	NJumpSS  int       `json:"njump_ss" yaml:"njump_ss"`
	NCurvSS  int       `json:"ncurv_ss" yaml:"ncurv_ss"`
	NTorsSS  int       `json:"ntors_ss" yaml:"ntors_ss"`

	// Chroma block settings
	ChromaBeatsPerBlock int `json:"chroma_beats_per_block" yaml:"chroma_beats_per_block"`
	ChromasPerBlock     int `json:"chromas_per_block" yaml:"chromas_per_block"`
	NChromaBins         int `json:"nchroma_bins" yaml:"nchroma_bins"`
}

// DefaultParams returns the tuning defaults with every feature switched off
func DefaultParams() Params {
	return Params{
		NMFCC:               20,
		LifterExp:           0.6,
		MFCCBeatsPerBlock:   20,
		TDiffusion:          -1,
		GeodesicDelta:       10,
		CurvSigmas:          []float64{40},
		SigmasSS:            dsp.Linspace(1, 40, 10),
		ChromaBeatsPerBlock: 20,
		NChromaBins:         12,
	}
}

// Covers80Params returns the feature set of the covers80 benchmark run
func Covers80Params() Params {
	p := DefaultParams()
	p.DPixels = 50
	p.NCurv = 400
	p.NJump = 400
	p.NTors = 400
	p.D2Samples = 40
	p.MFCCSamplesPerBlock = 50
	p.NGeodesic = 400
	p.ChromasPerBlock = 40
	return p
}

// CompareParams returns the higher resolution feature set used when
// comparing a single pair of songs
func CompareParams() Params {
	p := Covers80Params()
	p.DPixels = 200
	p.MFCCSamplesPerBlock = 200
	p.MFCCBeatsPerBlock = 12
	p.CurvSigmas = []float64{20}
	return p
}

// UsesMFCC reports whether any MFCC-derived feature is requested
func (p Params) UsesMFCC() bool {
	return p.MFCCSamplesPerBlock > 0 || p.DPixels > 0 || p.D2Samples > 0 ||
		p.NGeodesic > 0 || p.NJump > 0 || p.NCurv > 0 || p.NTors > 0 ||
		p.NJumpSS > 0 || p.NCurvSS > 0 || p.NTorsSS > 0
}

// UsesChroma reports whether the chroma block feature is requested
func (p Params) UsesChroma() bool {
	return p.ChromasPerBlock > 0
}

// Validate checks the tuning values of every requested feature
func (p Params) Validate() error {
	if p.UsesMFCC() {
		if p.NMFCC <= 0 {
			return fmt.Errorf("nmfcc must be positive")
		}
		if p.MFCCBeatsPerBlock <= 0 {
			return fmt.Errorf("mfcc beats per block must be positive")
		}
	}
	if p.NGeodesic > 0 && p.GeodesicDelta <= 0 {
		return fmt.Errorf("geodesic delta must be positive")
	}
	if (p.NJump > 0 || p.NCurv > 0 || p.NTors > 0) && len(p.CurvSigmas) == 0 {
		return fmt.Errorf("at least one curvature sigma is required")
	}
	for _, s := range p.CurvSigmas {
		if s <= 0 {
			return fmt.Errorf("curvature sigma must be positive, got %g", s)
		}
	}
	if p.NJumpSS > 0 || p.NCurvSS > 0 || p.NTorsSS > 0 {
		if len(p.SigmasSS) == 0 {
			return fmt.Errorf("scale space features need at least one sigma")
		}
		for _, s := range p.SigmasSS {
			if s <= 0 {
				return fmt.Errorf("scale space sigma must be positive, got %g", s)
			}
		}
	}
	if p.DiffusionKappa < 0 {
		return fmt.Errorf("diffusion kappa must not be negative")
	}
	if p.UsesChroma() {
		if p.ChromaBeatsPerBlock <= 0 {
			return fmt.Errorf("chroma beats per block must be positive")
		}
		if p.NChromaBins <= 0 {
			return fmt.Errorf("number of chroma bins must be positive")
		}
	}
	return nil
}

// Names lists the block features p produces, in a stable order
func (p Params) Names() []string {
	var names []string
	if p.MFCCSamplesPerBlock > 0 {
		names = append(names, NameMFCCs)
	}
	if p.DPixels > 0 {
		names = append(names, NameSSMs)
		if p.DiffusionKappa > 0 {
			names = append(names, NameSSMsDiffusion)
		}
	}
	if p.D2Samples > 0 {
		names = append(names, NameD2s)
	}
	if p.NGeodesic > 0 {
		names = append(names, NameGeodesics)
	}
	for _, sigma := range p.CurvSigmas {
		if p.NJump > 0 {
			names = append(names, JumpsName(sigma))
		}
		if p.NCurv > 0 {
			names = append(names, CurvsName(sigma))
		}
		if p.NTors > 0 {
			names = append(names, TorsName(sigma))
		}
	}
	if p.NJumpSS > 0 {
		names = append(names, NameJumpsSS)
	}
	if p.NCurvSS > 0 {
		names = append(names, NameCurvsSS)
	}
	if p.NTorsSS > 0 {
		names = append(names, NameTorsSS)
	}
	if p.UsesChroma() {
		names = append(names, NameChromas)
	}
	return names
}
