// Package report renders similarity matrices as heatmaps and writes the
// HTML pages of an experiment.
package report

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"image"
	"image/color"
	"math"
	"os"
	"strings"

	"github.com/llgcode/draw2d"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	"github.com/llgcode/draw2d/draw2dsvg"
)

// Colormap maps a value in [0, 1] to a colour
type Colormap func(v float64) color.RGBA

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Afmhot is black through red and orange to white
func Afmhot(v float64) color.RGBA {
	return color.RGBA{
		R: uint8(255 * clamp01(2*v)),
		G: uint8(255 * clamp01(2*v-0.5)),
		B: uint8(255 * clamp01(2*v-1)),
		A: 255,
	}
}

// Gray is black to white
func Gray(v float64) color.RGBA {
	g := uint8(255 * clamp01(v))
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

// Panel is one matrix of a figure
type Panel struct {
	Title    string
	Data     [][]float64
	Colormap Colormap
	// Invert draws 1 - v, so binary matches show dark on light
	Invert bool
}

// Options controls figure geometry
type Options struct {
	CellSize float64
	Gap      float64
}

// DefaultOptions returns the geometry used by the experiment pages
func DefaultOptions() Options {
	return Options{CellSize: 2, Gap: 20}
}

func (o Options) withDefaults() Options {
	if o.CellSize <= 0 {
		o.CellSize = 2
	}
	if o.Gap < 0 {
		o.Gap = 0
	}
	return o
}

// Size returns the figure width and height in cells scaled by CellSize
func Size(panels []Panel, opts Options) (float64, float64) {
	opts = opts.withDefaults()
	w, h := 0.0, 0.0
	for i, p := range panels {
		rows, cols := dims(p.Data)
		if i > 0 {
			w += opts.Gap
		}
		w += float64(cols) * opts.CellSize
		h = math.Max(h, float64(rows)*opts.CellSize)
	}
	return w, h
}

func dims(M [][]float64) (int, int) {
	if len(M) == 0 {
		return 0, 0
	}
	return len(M), len(M[0])
}

// valueRange returns the finite min and max of M
func valueRange(M [][]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range M {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// Draw paints the panels left to right on gc. Each panel is scaled to its
// own value range; runs of equal colour in a row become one rectangle.
func Draw(gc draw2d.GraphicContext, panels []Panel, opts Options) {
	opts = opts.withDefaults()
	x0 := 0.0
	for _, p := range panels {
		cmap := p.Colormap
		if cmap == nil {
			cmap = Afmhot
		}
		lo, hi := valueRange(p.Data)
		scale := 0.0
		if hi > lo {
			scale = 1 / (hi - lo)
		}
		colourAt := func(v float64) color.RGBA {
			if math.IsNaN(v) {
				v = lo
			}
			n := (v - lo) * scale
			if p.Invert {
				n = 1 - n
			}
			return cmap(n)
		}

		_, cols := dims(p.Data)
		for r, row := range p.Data {
			y := float64(r) * opts.CellSize
			for c := 0; c < len(row); {
				clr := colourAt(row[c])
				end := c + 1
				for end < len(row) && colourAt(row[end]) == clr {
					end++
				}
				gc.SetFillColor(clr)
				gc.BeginPath()
				draw2dkit.Rectangle(gc, x0+float64(c)*opts.CellSize, y, x0+float64(end)*opts.CellSize, y+opts.CellSize)
				gc.Fill()
				c = end
			}
		}
		x0 += float64(cols)*opts.CellSize + opts.Gap
	}
}

// HeatmapSVG writes the panels as an SVG figure
func HeatmapSVG(path string, panels []Panel, opts Options) error {
	svg := draw2dsvg.NewSvg()
	gc := draw2dsvg.NewGraphicContext(svg)
	Draw(gc, panels, opts)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(svg); err != nil {
		return fmt.Errorf("failed to encode svg: %w", err)
	}

	w, h := Size(panels, opts)
	titles := make([]string, 0, len(panels))
	for _, p := range panels {
		if p.Title != "" {
			titles = append(titles, p.Title)
		}
	}
	out := sizeSVG(buf.String(), w, h, strings.Join(titles, " | "))

	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write svg: %w", err)
	}
	return nil
}

// sizeSVG adds width, height and viewBox to the root element and an
// optional title as its first child
func sizeSVG(doc string, w, h float64, title string) string {
	i := strings.Index(doc, "<svg")
	if i < 0 {
		return doc
	}
	attrs := fmt.Sprintf(` width="%g" height="%g" viewBox="0 0 %g %g"`, w, h, w, h)
	doc = doc[:i+4] + attrs + doc[i+4:]
	if title == "" {
		return doc
	}
	if j := strings.Index(doc[i:], ">"); j >= 0 {
		at := i + j + 1
		doc = doc[:at] + "<title>" + html.EscapeString(title) + "</title>" + doc[at:]
	}
	return doc
}

// HeatmapPNG writes the panels as a PNG image
func HeatmapPNG(path string, panels []Panel, opts Options) error {
	w, h := Size(panels, opts)
	img := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(w)), int(math.Ceil(h))))
	gc := draw2dimg.NewGraphicContext(img)
	Draw(gc, panels, opts)
	if err := draw2dimg.SaveToPngFile(path, img); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
