package report

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	titleCaser = cases.Title(language.English)
	printer    = message.NewPrinter(language.English)
)

// SongTitle turns a song path such as
// "covers32k/Yesterday/beatles+Help+07-Yesterday.ogg" into a readable title
func SongTitle(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.NewReplacer("_", " ", "+", " - ").Replace(base)
	return titleCaser.String(base)
}

// ResultsRow is one line of the results table
type ResultsRow struct {
	Name     string
	MR       float64
	MRR      float64
	MDR      float64
	Tops     []int
	Covers80 int
	NSongs   int
}

var resultsRowTmpl = template.Must(template.New("row").Parse(
	`<tr><td>{{.Name}}</td><td>{{printf "%g" .MR}}</td><td>{{printf "%g" .MRR}}</td><td>{{printf "%g" .MDR}}</td>` +
		`{{range .Tops}}<td>{{.}}</td>{{end}}<td>{{.Covers80}}/{{.NSongs}}</td></tr>` + "\n\n"))

// WriteResultsRow renders row as a table row
func WriteResultsRow(w io.Writer, row ResultsRow) error {
	return resultsRowTmpl.Execute(w, row)
}

// AppendResultsRow appends row to the results page at path, creating it
// when missing
func AppendResultsRow(path string, row ResultsRow) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open results page: %w", err)
	}
	defer f.Close()
	if err := WriteResultsRow(f, row); err != nil {
		return fmt.Errorf("failed to write results row: %w", err)
	}
	return nil
}

// SongPage is the per-song page of cross-similarity figures, one section
// per feature
type SongPage struct {
	dir   string
	index int
}

// NewSongPage starts the page of song index in dir
func NewSongPage(dir string, index int, songPath string) (*SongPage, error) {
	p := &SongPage{dir: dir, index: index}
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h1>%s</h1><p>%s</p><HR><BR>\n",
		template.HTMLEscapeString(SongTitle(songPath)), template.HTMLEscapeString(songPath))
	if err := os.WriteFile(p.Path(), []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to create song page: %w", err)
	}
	return p, nil
}

// Path returns the page location
func (p *SongPage) Path() string {
	return filepath.Join(p.dir, fmt.Sprintf("%d.html", p.index))
}

// ImageName is the figure file name of a feature on this page
func (p *SongPage) ImageName(feature, ext string) string {
	return fmt.Sprintf("%d%s.%s", p.index, feature, ext)
}

var sectionTmpl = template.Must(template.New("section").Parse(
	`<h2><a name="{{.Feature}}">{{.Feature}}: {{.CSMType}} (Tempo Level {{.Level1}}, {{.Level2}})</a></h2>` +
		`<p>Smith Waterman score {{.Score}}</p><img src="{{.Image}}"><BR>` + "\n"))

// AddSection appends a feature section that shows image
func (p *SongPage) AddSection(feature, csmType string, level1, level2 int, score float64, image string) error {
	f, err := os.OpenFile(p.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open song page: %w", err)
	}
	defer f.Close()
	return sectionTmpl.Execute(f, map[string]any{
		"Feature": feature,
		"CSMType": csmType,
		"Level1":  level1,
		"Level2":  level2,
		"Score":   printer.Sprintf("%d", int(math.Round(score))),
		"Image":   image,
	})
}

// IndexEntry is one song row of the index page
type IndexEntry struct {
	Index   int
	Title   string
	Correct []bool // per feature, in the order of the page's features
}

var indexTmpl = template.Must(template.New("index").Parse(`<html><body>
<h1>Cover song results</h1>
<p>{{.Summary}}</p>
<table>
<tr><td>Cover Song</td>{{range .Features}}<td>{{.}}</td>{{end}}</tr>
{{$features := .Features}}{{range .Entries}}{{$i := .Index}}<tr><td>{{.Title}}</td>{{range $k, $ok := .Correct}}<td><a href="{{$i}}.html#{{index $features $k}}">{{if $ok}}<font color="green">Correct</font>{{else}}<font color="red">Incorrect</font>{{end}}</a></td>{{end}}</tr>
{{end}}</table>
</body></html>
`))

// WriteIndex writes the table of which features identified each song
func WriteIndex(path string, features []string, entries []IndexEntry) error {
	for _, e := range entries {
		if len(e.Correct) != len(features) {
			return fmt.Errorf("index entry %d has %d results for %d features", e.Index, len(e.Correct), len(features))
		}
	}
	correct := 0
	for _, e := range entries {
		for _, ok := range e.Correct {
			if ok {
				correct++
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index page: %w", err)
	}
	defer f.Close()
	return indexTmpl.Execute(f, map[string]any{
		"Features": features,
		"Entries":  entries,
		"Summary":  printer.Sprintf("%d of %d song and feature pairs identified", correct, len(entries)*len(features)),
	})
}

// EnsureDir creates dir when it does not exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
