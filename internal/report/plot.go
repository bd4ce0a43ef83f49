package report

import (
	"image/color"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/sells-group/anomaly-cli/internal/model"
)

var (
	seriesColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	anomalyColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotOptions configures RenderPlot.
type PlotOptions struct {
	Title  string
	Width  vg.Length // default 10in
	Height vg.Length // default 6in
}

// RenderPlot draws value over time with anomalies marked as red crosses and
// saves it to path. The format follows the extension: .png, .svg or .pdf.
func RenderPlot(path string, scored []model.ScoredObservation, opts PlotOptions) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf":
	default:
		return eris.Errorf("report: unsupported plot format %q (use .png, .svg or .pdf)", filepath.Ext(path))
	}
	if len(scored) == 0 {
		return eris.New("report: nothing to plot")
	}
	if opts.Width == 0 {
		opts.Width = 10 * vg.Inch
	}
	if opts.Height == 0 {
		opts.Height = 6 * vg.Inch
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = "Anomaly detection (local outlier factor)"
	}
	p.X.Label.Text = "Timestamp"
	p.Y.Label.Text = "Value"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04"}
	p.Add(plotter.NewGrid())

	points := make(plotter.XYs, len(scored))
	var flagged plotter.XYs
	for i, s := range scored {
		x := float64(s.Timestamp.Unix())
		points[i] = plotter.XY{X: x, Y: s.Value}
		if s.Anomaly {
			flagged = append(flagged, plotter.XY{X: x, Y: s.Value})
		}
	}

	line, err := plotter.NewLine(points)
	if err != nil {
		return eris.Wrap(err, "report: build series line")
	}
	line.Color = seriesColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("value", line)

	if len(flagged) > 0 {
		marks, err := plotter.NewScatter(flagged)
		if err != nil {
			return eris.Wrap(err, "report: build anomaly markers")
		}
		marks.GlyphStyle = draw.GlyphStyle{
			Color:  anomalyColor,
			Radius: vg.Points(4),
			Shape:  draw.CrossGlyph{},
		}
		p.Add(marks)
		p.Legend.Add("anomaly", marks)
	}
	p.Legend.Top = true

	if err := p.Save(opts.Width, opts.Height, path); err != nil {
		return eris.Wrapf(err, "report: save plot %s", path)
	}
	return nil
}
