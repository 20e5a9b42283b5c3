// Package report renders study charts and assembles the PDF study
// report.
package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/signintech/gopdf"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/study"
)

// Service renders every visual artifact of a run.
type Service struct {
	logger *zap.Logger
}

// NewService builds a renderer. A nil logger logs nowhere.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

type chartFiles struct {
	histograms []string
	scatter    string
	importance string
	waterfalls []string
}

// patientIdentity is the synthetic display identity attached to an
// explained sample. Records carry no real identifiers, so the report
// fakes plausible ones from the run seed.
type patientIdentity struct {
	Name string
	MRN  string
}

func displayIdentities(seed uint64, n int) []patientIdentity {
	f := gofakeit.New(seed)
	out := make([]patientIdentity, n)
	for i := range out {
		out[i] = patientIdentity{
			Name: f.Name(),
			MRN:  fmt.Sprintf("MRN-%08d", f.Number(0, 99999999)),
		}
	}
	return out
}

// Render implements study.Reporter: charts first, then the PDF that
// embeds them. Returns the report path.
func (s *Service) Render(ctx context.Context, st *study.Study) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	log := s.logger.With(zap.String("run_id", st.ID.String()))

	var files chartFiles
	var err error
	if files.histograms, err = FeatureHistograms(st.Table, st.Dir); err != nil {
		return "", fmt.Errorf("render charts: %w", err)
	}
	if files.scatter, err = PulseScatter(st.Table, st.Dir); err != nil {
		return "", fmt.Errorf("render charts: %w", err)
	}

	var patients []patientIdentity
	if st.Explanation != nil {
		files.importance, err = ImportanceBars(
			st.Explanation.FeatureNames, st.Explanation.MeanAbs(1), st.Importance, st.Dir)
		if err != nil {
			return "", fmt.Errorf("render charts: %w", err)
		}

		patients = displayIdentities(st.Seed, len(st.Samples))
		for i := range st.Samples {
			path, err := Waterfall(
				st.Explanation.FeatureNames,
				st.Explanation.Values[i][1],
				st.Explanation.Baseline[1],
				st.SampleProba[i][1],
				fmt.Sprintf("waterfall_%d", i),
				st.Dir,
			)
			if err != nil {
				return "", fmt.Errorf("render charts: %w", err)
			}
			files.waterfalls = append(files.waterfalls, path)
		}
	}
	log.Info("charts rendered",
		zap.Int("histograms", len(files.histograms)),
		zap.Int("waterfalls", len(files.waterfalls)))

	path, err := s.buildPDF(st, files, patients)
	if err != nil {
		return "", err
	}
	return path, nil
}

// Font paths cover the usual Alpine and Debian locations.
var fontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

func (s *Service) buildPDF(st *study.Study, files chartFiles, patients []patientIdentity) (string, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return "", fmt.Errorf("load report font (is ttf-dejavu installed?): %w", fontErr)
	}

	setFont := func(size float64) error { return pdf.SetFont("DejaVu", "", size) }
	line := func(text string, brk float64) {
		pdf.Cell(nil, text)
		pdf.Br(brk)
	}

	// Header
	if err := setFont(20); err != nil {
		return "", err
	}
	line("Patient Vitals Explainability Study", 30)

	// Run metadata
	if err := setFont(12); err != nil {
		return "", err
	}
	line(fmt.Sprintf("Run: %s", st.ID), 15)
	line(fmt.Sprintf("Seed: %d", st.Seed), 15)
	line(fmt.Sprintf("Generated: %s", st.CreatedAt.Format(time.RFC3339)), 15)
	line(fmt.Sprintf("Cohorts: %d healthy, %d infected", st.Scenario.Cohort.Healthy, st.Scenario.Cohort.Infected), 15)
	modelLine := fmt.Sprintf("Model: %d rounds, depth %d, learning rate %g, test fraction %g",
		st.Scenario.Model.Rounds, st.Scenario.Model.MaxDepth,
		st.Scenario.Model.LearningRate, st.Scenario.Split.TestFraction)
	wrapped, _ := pdf.SplitText(modelLine, 500)
	for _, l := range wrapped {
		line(l, 15)
	}
	pdf.Br(10)

	// Cohort summary
	if err := setFont(14); err != nil {
		return "", err
	}
	line("Cohort summary", 18)
	if err := setFont(11); err != nil {
		return "", err
	}
	for _, name := range cohort.FeatureColumns {
		healthy, infected, err := splitByLabel(st.Table, name)
		if err != nil {
			return "", fmt.Errorf("summarize %s: %w", name, err)
		}
		line(fmt.Sprintf("%s: healthy %s, infected %s",
			name, meanStd(healthy), meanStd(infected)), 14)
	}
	pdf.Br(10)

	// Held-out performance
	if err := setFont(14); err != nil {
		return "", err
	}
	line("Held-out performance", 18)
	if err := setFont(11); err != nil {
		return "", err
	}
	if ev := st.Evaluation; ev != nil {
		line(fmt.Sprintf("Accuracy %.3f, precision %.3f, recall %.3f, F1 %.3f", ev.Accuracy, ev.Precision, ev.Recall, ev.F1), 14)
		line(fmt.Sprintf("ROC AUC %.3f, log loss %.4f", ev.AUC, ev.LogLoss), 14)
		line(fmt.Sprintf("Confusion: TN %d, FP %d, FN %d, TP %d",
			ev.Confusion[0][0], ev.Confusion[0][1], ev.Confusion[1][0], ev.Confusion[1][1]), 14)
	} else {
		line("No held-out rows in this scenario.", 14)
	}

	// Distribution charts, two per row.
	pdf.AddPage()
	if err := setFont(14); err != nil {
		return "", err
	}
	line("Feature distributions by cohort", 20)
	const (
		imgW, imgH = 260, 182
		leftX      = 25
		rightX     = 305
	)
	y := 70.0
	for i, path := range files.histograms {
		x := float64(leftX)
		if i%2 == 1 {
			x = rightX
		}
		if err := pdf.Image(path, x, y, &gopdf.Rect{W: imgW, H: imgH}); err != nil {
			return "", fmt.Errorf("embed %s: %w", filepath.Base(path), err)
		}
		if i%2 == 1 {
			y += imgH + 8
		}
	}

	pdf.AddPage()
	if err := setFont(14); err != nil {
		return "", err
	}
	line("Couplings and importance", 20)
	if err := pdf.Image(files.scatter, 60, 70, &gopdf.Rect{W: 470, H: 329}); err != nil {
		return "", fmt.Errorf("embed scatter: %w", err)
	}
	if files.importance != "" {
		if err := pdf.Image(files.importance, 60, 420, &gopdf.Rect{W: 470, H: 313}); err != nil {
			return "", fmt.Errorf("embed importance: %w", err)
		}
	}

	// One page per explained patient.
	for i, wf := range files.waterfalls {
		pdf.AddPage()
		if err := setFont(14); err != nil {
			return "", err
		}
		line(fmt.Sprintf("Patient %s (%s)", patients[i].MRN, patients[i].Name), 20)

		if err := setFont(11); err != nil {
			return "", err
		}
		line(fmt.Sprintf("Predicted P(infected): %.3f (baseline %.3f)",
			st.SampleProba[i][1], st.Explanation.Baseline[1]), 16)
		for j, name := range st.Explanation.FeatureNames {
			line(fmt.Sprintf("%s = %.2f, contribution %+.4f",
				name, st.Samples[i][j], st.Explanation.Values[i][1][j]), 13)
		}
		if err := pdf.Image(wf, 45, 320, &gopdf.Rect{W: 500, H: 333}); err != nil {
			return "", fmt.Errorf("embed waterfall %d: %w", i, err)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	path := filepath.Join(st.Dir, "report.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

func meanStd(values []float64) string {
	if len(values) == 0 {
		return "n/a"
	}
	mean := stat.Mean(values, nil)
	sd := 0.0
	if len(values) > 1 {
		sd = stat.StdDev(values, nil)
	}
	return fmt.Sprintf("%.2f ± %.2f", mean, sd)
}
