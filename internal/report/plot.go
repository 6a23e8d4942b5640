package report

import (
	"errors"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/onefifth/internal/driver"
)

// Plot dimensions used for every saved or served image.
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// Series is one named curve, indexed by generation starting at 1.
type Series struct {
	Name   string
	Values []float64
}

// CurvePlot draws the series as lines over the generation axis. With logY
// the y-axis is logarithmic, which is only applied when every value is
// positive.
func CurvePlot(title, ylabel string, logY bool, series ...Series) (*plot.Plot, error) {
	if len(series) == 0 {
		return nil, errors.New("at least one series is required")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	positive := true
	for i, s := range series {
		pts := make(plotter.XYs, len(s.Values))
		for g, v := range s.Values {
			pts[g].X = float64(g + 1)
			pts[g].Y = v
			if !(v > 0) {
				positive = false
			}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		if s.Name != "" {
			p.Legend.Add(s.Name, line)
		}
	}

	if logY && positive {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Legend.Top = true
	return p, nil
}

// FitnessPlot draws the best-so-far fitness of a run on a log scale.
func FitnessPlot(title string, lb driver.Logbook) (*plot.Plot, error) {
	return CurvePlot(title, "Best fitness", true, Series{Name: "best", Values: lb.BestCurve()})
}

// SigmaPlot draws the step size of a run on a log scale.
func SigmaPlot(title string, lb driver.Logbook) (*plot.Plot, error) {
	return CurvePlot(title, "Sigma", true, Series{Name: "sigma", Values: lb.SigmaCurve()})
}

// SavePNG saves p to path.
func SavePNG(p *plot.Plot, path string) error {
	return p.Save(Width, Height, path)
}

// WritePNG encodes p as PNG to w.
func WritePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
