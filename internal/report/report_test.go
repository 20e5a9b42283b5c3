package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/config"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/dataset"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/explain"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/model"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/study"
)

func testTable(t *testing.T) *cohort.Table {
	t.Helper()
	gen := cohort.NewGenerator(cohort.DefaultParams(), 3)
	table, err := dataset.BuildTable(gen, 15, 15)
	require.NoError(t, err)
	return table
}

func assertFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFeatureHistograms(t *testing.T) {
	dir := t.TempDir()
	paths, err := FeatureHistograms(testTable(t), dir)
	require.NoError(t, err)

	require.Len(t, paths, len(cohort.FeatureColumns))
	for _, p := range paths {
		assertFile(t, p)
	}
	assert.Equal(t, filepath.Join(dir, "hist_systolic_pressure.png"), paths[0])
}

func TestPulseScatter(t *testing.T) {
	dir := t.TempDir()
	path, err := PulseScatter(testTable(t), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scatter_pulse.png"), path)
	assertFile(t, path)
}

func TestImportanceBars(t *testing.T) {
	names := []string{"a", "b", "c"}
	path, err := ImportanceBars(names, []float64{0.5, 0.3, 0.2}, []float64{0.6, 0.2, 0.2}, t.TempDir())
	require.NoError(t, err)
	assertFile(t, path)
}

func TestImportanceBarsShapeMismatch(t *testing.T) {
	_, err := ImportanceBars([]string{"a", "b"}, []float64{1}, []float64{1, 0}, t.TempDir())
	require.ErrorIs(t, err, cohort.ErrShapeMismatch)
}

func TestWaterfall(t *testing.T) {
	names := []string{"pulse_rate", "respiration_rate", "body_temperature"}
	phi := []float64{0.22, 0.11, -0.03}
	path, err := Waterfall(names, phi, 0.45, 0.75, "waterfall_0", t.TempDir())
	require.NoError(t, err)
	assertFile(t, path)
}

func TestWaterfallShapeMismatch(t *testing.T) {
	_, err := Waterfall([]string{"a"}, []float64{0.1, 0.2}, 0.5, 0.8, "w", t.TempDir())
	require.ErrorIs(t, err, cohort.ErrShapeMismatch)
}

func TestNormalizeShare(t *testing.T) {
	shares := normalizeShare([]float64{3, 1})
	assert.Equal(t, []float64{0.75, 0.25}, shares)

	zeros := normalizeShare([]float64{0, 0, 0})
	assert.Equal(t, []float64{0, 0, 0}, zeros)
}

func TestSplitByLabelUnknownColumn(t *testing.T) {
	_, _, err := splitByLabel(testTable(t), "no_such_column")
	require.ErrorIs(t, err, cohort.ErrInvalidArgument)
}

func TestDisplayIdentities(t *testing.T) {
	a := displayIdentities(9, 3)
	b := displayIdentities(9, 3)
	require.Len(t, a, 3)
	assert.Equal(t, a, b)
	for _, p := range a {
		assert.NotEmpty(t, p.Name)
		assert.Regexp(t, `^MRN-\d{8}$`, p.MRN)
	}

	c := displayIdentities(10, 3)
	assert.NotEqual(t, a, c)
}

func TestMeanStd(t *testing.T) {
	assert.Equal(t, "n/a", meanStd(nil))
	assert.Equal(t, "2.00 ± 1.00", meanStd([]float64{1, 2, 3}))
	assert.Equal(t, "5.00 ± 0.00", meanStd([]float64{5}))
}

func fontAvailable() bool {
	for _, path := range fontPaths {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

func TestServiceRender(t *testing.T) {
	if !fontAvailable() {
		t.Skip("no DejaVu font installed")
	}

	table := testTable(t)
	nFeatures := len(cohort.FeatureColumns)

	phi := make([][]float64, 2)
	importance := make([]float64, nFeatures)
	for c := range phi {
		phi[c] = make([]float64, nFeatures)
	}
	phi[1][7] = 0.2
	phi[0][7] = -0.2
	importance[7] = 1

	st := &study.Study{
		ID:        uuid.New(),
		Seed:      42,
		CreatedAt: time.Now().UTC(),
		Scenario:  config.Default(),
		Table:     table,
		Evaluation: &model.Evaluation{
			Accuracy: 0.9, Precision: 0.9, Recall: 0.9, F1: 0.9,
			LogLoss: 0.3, AUC: 0.95,
		},
		Importance: importance,
		Explanation: &explain.Explanation{
			FeatureNames: cohort.FeatureColumns,
			Classes:      []float64{0, 1},
			Baseline:     []float64{0.55, 0.45},
			Values:       [][][]float64{phi},
		},
		Samples:     table.Features()[:1],
		SampleProba: [][]float64{{0.35, 0.65}},
		Dir:         t.TempDir(),
	}

	svc := NewService(nil)
	path, err := svc.Render(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(st.Dir, "report.pdf"), path)
	assertFile(t, path)

	assertFile(t, filepath.Join(st.Dir, "scatter_pulse.png"))
	assertFile(t, filepath.Join(st.Dir, "importance.png"))
	assertFile(t, filepath.Join(st.Dir, "waterfall_0.png"))
}

func TestServiceRenderHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(nil).Render(ctx, &study.Study{Table: testTable(t), Dir: t.TempDir()})
	require.ErrorIs(t, err, context.Canceled)
}
