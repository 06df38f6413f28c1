package results

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/cwbudde/algo-fxnet/model"
)

// Axis selects the quantity plotted against the parameter count.
type Axis string

const (
	AxisError   Axis = "error"
	AxisRuntime Axis = "runtime"
)

func (a Axis) label() string {
	if a == AxisRuntime {
		return "RT"
	}
	return "Error (MSE)"
}

func (a Axis) value(r Record) float64 {
	if a == AxisRuntime {
		return r.Runtime
	}
	return r.Error
}

type seriesStyle struct {
	color color.Color
	glyph draw.GlyphDrawer
}

var styles = []seriesStyle{
	{color.Black, draw.CircleGlyph{}},
	{color.RGBA{B: 0xff, A: 0xff}, draw.TriangleGlyph{}},
	{color.RGBA{R: 0xff, A: 0xff}, draw.CrossGlyph{}},
	{color.RGBA{G: 0x80, A: 0xff}, draw.SquareGlyph{}},
}

// Plot renders the records of arch as one line per method, parameter count
// against axis.
func Plot(path string, arch model.Arch, recs []Record, axis Axis) error {
	if axis != AxisError && axis != AxisRuntime {
		return fmt.Errorf("unknown axis %q (use error|runtime)", axis)
	}
	groups := Group(Filter(recs, arch))
	if len(groups) == 0 {
		return fmt.Errorf("no records for %s", arch)
	}

	p := plot.New()
	p.Title.Text = arch.Title() + " Pruning Results"
	p.X.Label.Text = "Parameters"
	p.Y.Label.Text = axis.label()
	p.Add(plotter.NewGrid())

	for i, g := range groups {
		xys := make(plotter.XYs, len(g.Records))
		for j, r := range g.Records {
			xys[j].X = float64(r.ParameterCount)
			xys[j].Y = axis.value(r)
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return err
		}
		st := styles[i%len(styles)]
		line.LineStyle.Color = st.color
		points.GlyphStyle.Color = st.color
		points.GlyphStyle.Shape = st.glyph
		points.GlyphStyle.Radius = vg.Points(3)
		p.Add(line, points)
		p.Legend.Add(g.Method, line, points)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// PlotName returns the default file name, e.g. "dense_pruning_error.png".
func PlotName(arch model.Arch, axis Axis) string {
	return fmt.Sprintf("%s_pruning_%s.png", arch, axis)
}
