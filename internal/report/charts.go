package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// Cohort colors follow the usual attribution convention: warm pushes the
// infected probability up, cold pulls it down.
var (
	healthyFill  = color.NRGBA{R: 59, G: 115, B: 186, A: 140}
	infectedFill = color.NRGBA{R: 214, G: 69, B: 65, A: 140}
	healthyLine  = color.NRGBA{R: 59, G: 115, B: 186, A: 255}
	infectedLine = color.NRGBA{R: 214, G: 69, B: 65, A: 255}
)

func splitByLabel(t *cohort.Table, name string) (healthy, infected []float64, err error) {
	values, err := t.Column(name)
	if err != nil {
		return nil, nil, err
	}
	labels := t.Labels()
	for i, v := range values {
		if labels[i] == 1 {
			infected = append(infected, v)
		} else {
			healthy = append(healthy, v)
		}
	}
	return healthy, infected, nil
}

// FeatureHistograms renders one density-normalized histogram per feature,
// both cohorts overlaid, and returns the written paths.
func FeatureHistograms(t *cohort.Table, dir string) ([]string, error) {
	paths := make([]string, 0, len(cohort.FeatureColumns))
	for _, name := range cohort.FeatureColumns {
		healthy, infected, err := splitByLabel(t, name)
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", name, err)
		}

		p := plot.New()
		p.Title.Text = name
		p.X.Label.Text = name
		p.Y.Label.Text = "density"

		for _, series := range []struct {
			values []float64
			fill   color.Color
			line   color.Color
		}{
			{healthy, healthyFill, healthyLine},
			{infected, infectedFill, infectedLine},
		} {
			if len(series.values) == 0 {
				continue
			}
			h, err := plotter.NewHist(plotter.Values(series.values), 20)
			if err != nil {
				return nil, fmt.Errorf("histogram %s: %w", name, err)
			}
			h.Normalize(1)
			h.FillColor = series.fill
			h.LineStyle.Color = series.line
			p.Add(h)
		}

		path := filepath.Join(dir, "hist_"+name+".png")
		if err := p.Save(5*vg.Inch, 3.5*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("histogram %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// PulseScatter plots pulse rate against its daily average, colored by
// cohort, making the label-dependent offset visible.
func PulseScatter(t *cohort.Table, dir string) (string, error) {
	p := plot.New()
	p.Title.Text = "Pulse rate vs daily average"
	p.X.Label.Text = "daily_avg_pulse_rate"
	p.Y.Label.Text = "pulse_rate"

	base, err := t.Column("daily_avg_pulse_rate")
	if err != nil {
		return "", fmt.Errorf("pulse scatter: %w", err)
	}
	rate, err := t.Column("pulse_rate")
	if err != nil {
		return "", fmt.Errorf("pulse scatter: %w", err)
	}
	labels := t.Labels()

	for _, series := range []struct {
		label    string
		infected bool
		color    color.Color
	}{
		{"healthy", false, healthyLine},
		{"infected", true, infectedLine},
	} {
		var xys plotter.XYs
		for i := range base {
			if (labels[i] == 1) != series.infected {
				continue
			}
			xys = append(xys, plotter.XY{X: base[i], Y: rate[i]})
		}
		if len(xys) == 0 {
			continue
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return "", fmt.Errorf("pulse scatter: %w", err)
		}
		s.GlyphStyle.Color = series.color
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(series.label, s)
	}
	p.Legend.Top = true

	path := filepath.Join(dir, "scatter_pulse.png")
	if err := p.Save(5*vg.Inch, 3.5*vg.Inch, path); err != nil {
		return "", fmt.Errorf("pulse scatter: %w", err)
	}
	return path, nil
}

// ImportanceBars compares two importance shares per feature: mean
// absolute attribution and model split gain.
func ImportanceBars(names []string, attribution, gain []float64, dir string) (string, error) {
	if len(names) != len(attribution) || len(names) != len(gain) {
		return "", fmt.Errorf("importance bars: %d names, %d attribution, %d gain values: %w",
			len(names), len(attribution), len(gain), cohort.ErrShapeMismatch)
	}

	p := plot.New()
	p.Title.Text = "Feature importance"
	p.X.Label.Text = "share"

	width := vg.Points(8)

	attrBars, err := plotter.NewBarChart(plotter.Values(normalizeShare(attribution)), width)
	if err != nil {
		return "", fmt.Errorf("importance bars: %w", err)
	}
	attrBars.Horizontal = true
	attrBars.Offset = -width / 2
	attrBars.Color = infectedLine
	p.Add(attrBars)
	p.Legend.Add("mean |attribution|", attrBars)

	gainBars, err := plotter.NewBarChart(plotter.Values(normalizeShare(gain)), width)
	if err != nil {
		return "", fmt.Errorf("importance bars: %w", err)
	}
	gainBars.Horizontal = true
	gainBars.Offset = width / 2
	gainBars.Color = healthyLine
	p.Add(gainBars)
	p.Legend.Add("split gain", gainBars)

	p.NominalY(names...)
	p.Legend.Top = true

	path := filepath.Join(dir, "importance.png")
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return "", fmt.Errorf("importance bars: %w", err)
	}
	return path, nil
}

func normalizeShare(values []float64) []float64 {
	out := make([]float64, len(values))
	var total float64
	for _, v := range values {
		total += v
	}
	if total == 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}
