package report

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColormaps(t *testing.T) {
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, Afmhot(0))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, Afmhot(1))
	assert.Equal(t, color.RGBA{255, 127, 0, 255}, Afmhot(0.5))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, Gray(2))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, Gray(-1))
}

func TestSize(t *testing.T) {
	panels := []Panel{
		{Data: [][]float64{{0, 1, 2}, {3, 4, 5}}},
		{Data: [][]float64{{1}, {2}, {3}, {4}}},
	}
	w, h := Size(panels, Options{CellSize: 2, Gap: 10})
	assert.Equal(t, 3*2+10+1*2.0, w)
	assert.Equal(t, 8.0, h)

	w, h = Size(nil, DefaultOptions())
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestSizeSVG(t *testing.T) {
	doc := `<?xml version="1.0"?>` + "\n" + `<svg xmlns="http://www.w3.org/2000/svg"><g></g></svg>`
	out := sizeSVG(doc, 40, 20, "CSM <MFCCs>")
	assert.Contains(t, out, `<svg width="40" height="20" viewBox="0 0 40 20" xmlns=`)
	assert.Contains(t, out, `<title>CSM &lt;MFCCs&gt;</title><g>`)

	assert.Equal(t, "no root", sizeSVG("no root", 1, 1, ""))
}

func TestHeatmapSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fig.svg")
	panels := []Panel{
		{Title: "CSM", Data: [][]float64{{0, 1}, {1, 0}}, Colormap: Afmhot},
		{Title: "Binary", Data: [][]float64{{1, 0}, {0, 1}}, Colormap: Gray, Invert: true},
	}
	require.NoError(t, HeatmapSVG(path, panels, DefaultOptions()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(b)
	assert.True(t, strings.HasPrefix(s, "<?xml"))
	assert.Contains(t, s, `width="28"`)
	assert.Contains(t, s, "<title>CSM | Binary</title>")
	assert.Contains(t, s, "<path")
}

func TestHeatmapPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fig.png")
	panels := []Panel{{Data: [][]float64{{0, 0, 1}, {0, 1, 0}}, Colormap: Gray}}
	require.NoError(t, HeatmapPNG(path, panels, Options{CellSize: 4}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
	r, g, b, _ := img.At(10, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, r, g)
	assert.Equal(t, r, b)
}

func nan() float64 { return math.NaN() }
func inf() float64 { return math.Inf(1) }

func TestValueRangeSkipsNonFinite(t *testing.T) {
	lo, hi := valueRange([][]float64{{2, nan()}, {inf(), -1}})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 2.0, hi)
	lo, hi = valueRange(nil)
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestSongTitle(t *testing.T) {
	assert.Equal(t, "A Whiter Shade Of Pale", SongTitle("covers32k/x/A_Whiter_Shade_Of_Pale.ogg"))
	assert.Equal(t, "Annie Lennox - Medusa", SongTitle("annie_lennox+medusa.mp3"))
}

func TestWriteResultsRow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultsRow(&buf, ResultsRow{
		Name: "MFCCs", MR: 2.5, MRR: 0.75, MDR: 1, Tops: []int{3, 4}, Covers80: 5, NSongs: 80,
	}))
	assert.Equal(t, "<tr><td>MFCCs</td><td>2.5</td><td>0.75</td><td>1</td><td>3</td><td>4</td><td>5/80</td></tr>\n\n", buf.String())

	path := filepath.Join(t.TempDir(), "results.html")
	require.NoError(t, AppendResultsRow(path, ResultsRow{Name: "a"}))
	require.NoError(t, AppendResultsRow(path, ResultsRow{Name: "b"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(b), "<tr>"))
}

func TestSongPageAndIndex(t *testing.T) {
	dir := t.TempDir()
	page, err := NewSongPage(dir, 3, "covers32k/Yesterday/yesterday.ogg")
	require.NoError(t, err)
	assert.Equal(t, "3MFCCs.svg", page.ImageName("MFCCs", "svg"))
	require.NoError(t, page.AddSection("MFCCs", "Euclidean", 0, 2, 1234, page.ImageName("MFCCs", "svg")))

	b, err := os.ReadFile(page.Path())
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, "<h1>Yesterday</h1>")
	assert.Contains(t, s, `<a name="MFCCs">MFCCs: Euclidean (Tempo Level 0, 2)</a>`)
	assert.Contains(t, s, "1,234")
	assert.Contains(t, s, `<img src="3MFCCs.svg">`)

	index := filepath.Join(dir, "index.html")
	require.NoError(t, WriteIndex(index, []string{"MFCCs", "Chromas"}, []IndexEntry{
		{Index: 0, Title: "Song A", Correct: []bool{true, false}},
	}))
	b, err = os.ReadFile(index)
	require.NoError(t, err)
	s = string(b)
	assert.Contains(t, s, `<a href="0.html#MFCCs"><font color="green">Correct</font></a>`)
	assert.Contains(t, s, `<a href="0.html#Chromas"><font color="red">Incorrect</font></a>`)
	assert.Contains(t, s, "1 of 2 song and feature pairs identified")

	err = WriteIndex(index, []string{"MFCCs"}, []IndexEntry{{Correct: []bool{true, true}}})
	assert.Error(t, err)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
