package report

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// waterfall is a custom plotter walking from the baseline probability to
// the predicted one, a signed bar per feature. Row 0 draws at the top.
type waterfall struct {
	baseline float64
	phi      []float64
	barHalf  vg.Length
}

func (w *waterfall) y(i int) float64 { return float64(len(w.phi) - 1 - i) }

// Plot implements plot.Plotter.
func (w *waterfall) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)

	cum := w.baseline
	for i, v := range w.phi {
		x0, x1 := cum, cum+v
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		fill := infectedLine
		if v < 0 {
			fill = healthyLine
		}

		yc := trY(w.y(i))
		c.FillPolygon(fill, []vg.Point{
			{X: trX(x0), Y: yc - w.barHalf},
			{X: trX(x1), Y: yc - w.barHalf},
			{X: trX(x1), Y: yc + w.barHalf},
			{X: trX(x0), Y: yc + w.barHalf},
		})
		cum += v
	}
}

// DataRange implements plot.DataRanger.
func (w *waterfall) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, xmax = w.baseline, w.baseline
	cum := w.baseline
	for _, v := range w.phi {
		cum += v
		if cum < xmin {
			xmin = cum
		}
		if cum > xmax {
			xmax = cum
		}
	}
	// Breathing room so the first and last bars stay visible.
	pad := (xmax - xmin) * 0.1
	if pad == 0 {
		pad = 0.05
	}
	return xmin - pad, xmax + pad, -0.5, float64(len(w.phi)) - 0.5
}

// Waterfall renders one row's attribution walk for the infected class
// and returns the written path. Feature order follows the explanation.
func Waterfall(names []string, phi []float64, baseline, predicted float64, fileStem, dir string) (string, error) {
	if len(names) != len(phi) {
		return "", fmt.Errorf("waterfall: %d names for %d attributions: %w",
			len(names), len(phi), cohort.ErrShapeMismatch)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("P(infected): %.3f from baseline %.3f", predicted, baseline)
	p.X.Label.Text = "P(infected)"

	p.Add(&waterfall{baseline: baseline, phi: phi, barHalf: vg.Points(6)})

	// Baseline marker spanning the full feature axis.
	marker, err := plotter.NewLine(plotter.XYs{
		{X: baseline, Y: -0.5},
		{X: baseline, Y: float64(len(phi)) - 0.5},
	})
	if err != nil {
		return "", fmt.Errorf("waterfall: %w", err)
	}
	marker.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	p.Add(marker)

	// Names run top-down to match the bars.
	reversed := make([]string, len(names))
	for i, n := range names {
		reversed[len(names)-1-i] = n
	}
	p.NominalY(reversed...)

	path := filepath.Join(dir, fileStem+".png")
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return "", fmt.Errorf("waterfall: %w", err)
	}
	return path, nil
}
