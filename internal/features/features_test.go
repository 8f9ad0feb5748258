package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	testFs  = 22050
	testHop = 512
)

// toneSequence changes pitch on every beat so consecutive blocks differ
func toneSequence(beats []int) []float64 {
	freqs := []float64{220, 277.18, 329.63, 440, 392, 261.63}
	n := (beats[len(beats)-1] + 40) * testHop
	x := make([]float64, n)
	for b := 0; b+1 < len(beats); b++ {
		f := freqs[b%len(freqs)]
		start, end := beats[b]*testHop, beats[b+1]*testHop
		for i := start; i < end; i++ {
			t := float64(i) / testFs
			x[i] = 0.6*math.Sin(2*math.Pi*f*t) + 0.3*math.Sin(2*math.Pi*1.5*f*t)
		}
	}
	return x
}

func smallParams() Params {
	p := DefaultParams()
	p.MFCCBeatsPerBlock = 4
	p.MFCCSamplesPerBlock = 10
	p.DPixels = 10
	p.DiffusionKappa = 0.5
	p.D2Samples = 8
	p.GeodesicDelta = 5
	p.NGeodesic = 16
	p.CurvSigmas = []float64{3}
	p.NJump = 16
	p.NCurv = 16
	p.NTors = 16
	p.SigmasSS = []float64{1, 2, 3}
	p.NJumpSS = 8
	p.NCurvSS = 8
	p.NTorsSS = 8
	p.ChromaBeatsPerBlock = 4
	p.ChromasPerBlock = 8
	return p
}

type ExtractSuite struct {
	suite.Suite
	beats []int
	x     []float64
}

func (s *ExtractSuite) SetupSuite() {
	for b := range 10 {
		s.beats = append(s.beats, 10+20*b)
	}
	s.x = toneSequence(s.beats)
}

func (s *ExtractSuite) TestAllFeatureShapes() {
	p := smallParams()
	e, err := NewExtractor(p, nil)
	s.Require().NoError(err)

	block, other, err := e.Extract(s.x, testFs, 129.2, s.beats, testHop)
	s.Require().NoError(err)

	nBlocks := len(s.beats) - 1 - p.MFCCBeatsPerBlock
	want := map[string]int{
		NameMFCCs:         p.MFCCSamplesPerBlock * p.NMFCC,
		NameSSMs:          p.DPixels * (p.DPixels - 1) / 2,
		NameSSMsDiffusion: p.DPixels * (p.DPixels - 1) / 2,
		NameD2s:           p.D2Samples,
		NameGeodesics:     p.NGeodesic,
		"Jumps3":          p.NJump,
		"Curvs3":          p.NCurv,
		"Tors3":           p.NTors,
		NameJumpsSS:       len(p.SigmasSS) * p.NJumpSS,
		NameCurvsSS:       len(p.SigmasSS) * p.NCurvSS,
		NameTorsSS:        len(p.SigmasSS) * p.NTorsSS,
		NameChromas:       p.ChromasPerBlock * p.NChromaBins,
	}
	s.Len(block, len(want))
	s.ElementsMatch(p.Names(), keys(want))

	for name, dims := range want {
		s.Require().Len(block[name], nBlocks, name)
		for i, row := range block[name] {
			s.Len(row, dims, "%s block %d", name, i)
			for _, v := range row {
				s.False(math.IsNaN(v), "%s block %d has NaN", name, i)
			}
		}
	}

	for _, row := range block[NameD2s] {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		s.InDelta(1.0, sum, 1e-9)
	}

	// every resized chroma frame is unit length
	for _, row := range block[NameChromas] {
		sq := 0.0
		for _, v := range row {
			sq += v * v
		}
		s.InDelta(float64(p.ChromasPerBlock), sq, 1e-9)
	}

	s.Require().NotNil(other)
	s.Len(other.ChromaMean, p.NChromaBins)
}

func (s *ExtractSuite) TestChromaOnlySkipsMFCC() {
	p := DefaultParams()
	p.ChromaBeatsPerBlock = 4
	p.ChromasPerBlock = 8
	e, err := NewExtractor(p, nil)
	s.Require().NoError(err)

	block, other, err := e.Extract(s.x, testFs, 120, s.beats, testHop)
	s.Require().NoError(err)
	s.Equal([]string{NameChromas}, keys(block))
	s.Len(other.ChromaMean, 12)
}

func (s *ExtractSuite) TestNothingRequested() {
	e, err := NewExtractor(DefaultParams(), nil)
	s.Require().NoError(err)

	block, other, err := e.Extract(s.x, testFs, 120, s.beats, testHop)
	s.Require().NoError(err)
	s.Empty(block)
	s.Nil(other.ChromaMean)
}

func (s *ExtractSuite) TestTooFewBeatsGivesNoBlocks() {
	p := smallParams()
	e, err := NewExtractor(p, nil)
	s.Require().NoError(err)

	block, _, err := e.Extract(s.x, testFs, 120, s.beats[:3], testHop)
	s.Require().NoError(err)
	s.Empty(block[NameSSMs])
	s.Empty(block[NameChromas])
}

func (s *ExtractSuite) TestGeodesicDeltaTooLarge() {
	p := DefaultParams()
	p.MFCCBeatsPerBlock = 4
	p.NGeodesic = 8
	p.GeodesicDelta = 100
	e, err := NewExtractor(p, nil)
	s.Require().NoError(err)

	_, _, err = e.Extract(s.x, testFs, 120, s.beats, testHop)
	s.ErrorIs(err, ErrBlockTooShort)
}

func (s *ExtractSuite) TestRejectsBadInput() {
	e, err := NewExtractor(smallParams(), nil)
	s.Require().NoError(err)

	_, _, err = e.Extract(nil, testFs, 120, s.beats, testHop)
	s.Error(err)
	_, _, err = e.Extract(s.x, testFs, 0, s.beats, testHop)
	s.Error(err)
	_, _, err = e.Extract(s.x, testFs, 120, []int{10, 5}, testHop)
	s.Error(err)
}

func TestExtractSuite(t *testing.T) {
	suite.Run(t, new(ExtractSuite))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.NoError(t, Covers80Params().Validate())
	assert.NoError(t, CompareParams().Validate())

	p := Covers80Params()
	p.NMFCC = 0
	assert.Error(t, p.Validate())

	p = Covers80Params()
	p.CurvSigmas = nil
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.NCurvSS = 4
	p.SigmasSS = []float64{1, -1}
	assert.Error(t, p.Validate())

	_, err := NewExtractor(p, nil)
	assert.Error(t, err)
}

func TestCovers80Names(t *testing.T) {
	assert.Equal(t, []string{
		NameMFCCs, NameSSMs, NameD2s, NameGeodesics,
		"Jumps40", "Curvs40", "Tors40", NameChromas,
	}, Covers80Params().Names())
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"Curvs40":   "Curvs",
		"Jumps2.5":  "Jumps",
		"Tors1e+06": "Tors",
		"D2s":       "D2s",
		"SSMs":      "SSMs",
		"CurvsSS":   "CurvsSS",
		"Chromas":   "Chromas",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), in)
	}
}

func TestSSMAndLowerTriangle(t *testing.T) {
	x := [][]float64{{0, 0}, {3, 4}, {0, 1}}
	D := SSM(x)
	want := [][]float64{{0, 5, 1}, {5, 0, math.Sqrt(18)}, {1, math.Sqrt(18), 0}}
	require.Len(t, D, 3)
	for i := range want {
		assert.InDeltaSlice(t, want[i], D[i], 1e-12)
	}
	assert.Equal(t, []float64{D[1][0], D[2][0], D[2][1]}, LowerTriangle(D))
}

func TestD2Histogram(t *testing.T) {
	D := [][]float64{
		{0, 0.1, 1.9},
		{0.1, 0, 1.1},
		{1.9, 1.1, 0},
	}
	assert.InDeltaSlice(t, []float64{1.0 / 3, 0, 1.0 / 3, 1.0 / 3}, D2Histogram(D, 4), 1e-12)
}

func TestGeodesicStraightLine(t *testing.T) {
	x := make([][]float64, 10)
	for i := range x {
		x[i] = []float64{float64(i), 0}
	}
	g, err := Geodesic(x, 2)
	require.NoError(t, err)
	require.Len(t, g, 6)
	for _, v := range g {
		assert.InDelta(t, 4.0, v, 1e-12)
	}

	_, err = Geodesic(x, 5)
	assert.ErrorIs(t, err, ErrBlockTooShort)
}

func TestNormalizeBlock(t *testing.T) {
	x := [][]float64{{1, 2}, {3, 2}, {2, 2}}
	xn := normalizeBlock(x)
	assert.InDeltaSlice(t, []float64{-1, 0}, xn[0], 1e-12)
	assert.InDeltaSlice(t, []float64{1, 0}, xn[1], 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0}, xn[2], 1e-12)
	assert.Equal(t, []float64{1, 2}, x[0])
}
