package evaluate

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	targetColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	modelColor  = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

// PlotOverlay draws target and prediction over [start, end) as two lines
// and saves the figure. The format follows the file extension.
func PlotOverlay(path, title string, target, prediction []float32, start, end int) error {
	end = min(end, len(target), len(prediction))
	if start < 0 || start >= end {
		return fmt.Errorf("plot window [%d,%d) is empty for %d samples", start, end, min(len(target), len(prediction)))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time [samples]"
	p.Y.Label.Text = "Amplitude"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	tl, err := plotter.NewLine(series(target, start, end))
	if err != nil {
		return err
	}
	tl.LineStyle.Color = targetColor
	tl.LineStyle.Width = vg.Points(1)

	ml, err := plotter.NewLine(series(prediction, start, end))
	if err != nil {
		return err
	}
	ml.LineStyle.Color = modelColor
	ml.LineStyle.Width = vg.Points(1)

	p.Add(tl, ml)
	p.Legend.Add("Target", tl)
	p.Legend.Add("Model", ml)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}

func series(x []float32, start, end int) plotter.XYs {
	pts := make(plotter.XYs, end-start)
	for i := range pts {
		pts[i].X = float64(start + i)
		pts[i].Y = float64(x[start+i])
	}
	return pts
}
