package explain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/dataset"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/model"
)

// probaFromScore wraps a scalar score function as a two-class
// probability function.
func probaFromScore(f func(row []float64) float64) PredictProbaFunc {
	return func(X [][]float64) ([][]float64, error) {
		out := make([][]float64, len(X))
		for i, row := range X {
			p := f(row)
			out[i] = []float64{1 - p, p}
		}
		return out, nil
	}
}

func TestExplainLinearClosedForm(t *testing.T) {
	// For a linear score a + b·x0 + c·x1 the exact attributions are
	// b·(x0 - mean(bg0)) and c·(x1 - mean(bg1)).
	const a, b, c = 0.1, 0.2, 0.05
	predict := probaFromScore(func(row []float64) float64 {
		return a + b*row[0] + c*row[1]
	})
	background := [][]float64{{0, 0}, {1, 2}, {2, 4}, {3, 2}}
	// Background means: 1.5 and 2.
	e, err := New(predict, background)
	require.NoError(t, err)

	x := []float64{3, 1}
	exp, err := e.Explain(context.Background(), [][]float64{x})
	require.NoError(t, err)

	require.Len(t, exp.Values, 1)
	phi := exp.Values[0][1]
	assert.InDelta(t, b*(3-1.5), phi[0], 1e-12)
	assert.InDelta(t, c*(1-2.0), phi[1], 1e-12)
	assert.InDelta(t, a+b*1.5+c*2.0, exp.Baseline[1], 1e-12)
}

func TestExplainAdditivity(t *testing.T) {
	// Interaction term included: additivity must still hold exactly.
	predict := probaFromScore(func(row []float64) float64 {
		return 0.1 + 0.2*row[0] + 0.3*row[1]*row[2]
	})
	background := [][]float64{{0, 0, 1}, {1, 1, 0}, {0.5, 0.25, 0.75}}
	e, err := New(predict, background)
	require.NoError(t, err)

	X := [][]float64{{1, 0.5, 0.5}, {0, 1, 1}}
	exp, err := e.Explain(context.Background(), X)
	require.NoError(t, err)

	proba, err := predict(X)
	require.NoError(t, err)
	for r := range X {
		for c := 0; c < 2; c++ {
			assert.InDelta(t, proba[r][c], exp.Reconstruct(r, c), 1e-9, "row %d class %d", r, c)
		}
	}
}

func TestExplainClassNegation(t *testing.T) {
	predict := probaFromScore(func(row []float64) float64 {
		return 0.3 + 0.1*row[0] + 0.2*row[1]
	})
	e, err := New(predict, [][]float64{{0, 0}, {2, 1}})
	require.NoError(t, err)

	exp, err := e.Explain(context.Background(), [][]float64{{1, 3}})
	require.NoError(t, err)
	for i := range exp.Values[0][1] {
		assert.InDelta(t, -exp.Values[0][1][i], exp.Values[0][0][i], 1e-12)
	}
}

func TestExplainIgnoredFeature(t *testing.T) {
	predict := probaFromScore(func(row []float64) float64 {
		return 0.2 + 0.5*row[0]
	})
	e, err := New(predict, [][]float64{{0, 7}, {1, -3}, {0.5, 100}})
	require.NoError(t, err)

	exp, err := e.Explain(context.Background(), [][]float64{{0.8, 42}})
	require.NoError(t, err)
	assert.InDelta(t, 0, exp.Values[0][1][1], 1e-12)
	assert.NotZero(t, exp.Values[0][1][0])
}

func TestExplainSymmetricFeatures(t *testing.T) {
	predict := probaFromScore(func(row []float64) float64 {
		return 0.1 + 0.2*row[0] + 0.2*row[1]
	})
	e, err := New(predict, [][]float64{{0, 0}, {1, 1}})
	require.NoError(t, err)

	exp, err := e.Explain(context.Background(), [][]float64{{2, 2}})
	require.NoError(t, err)
	assert.InDelta(t, exp.Values[0][1][0], exp.Values[0][1][1], 1e-12)
}

func TestExplainBackgroundSubsample(t *testing.T) {
	predict := probaFromScore(func(row []float64) float64 {
		return 0.4 + 0.01*row[0]
	})
	big := make([][]float64, 200)
	for i := range big {
		big[i] = []float64{float64(i), float64(i % 7)}
	}

	a, err := New(predict, big, WithMaxBackground(10, 5))
	require.NoError(t, err)
	b, err := New(predict, big, WithMaxBackground(10, 5))
	require.NoError(t, err)
	assert.Equal(t, a.background, b.background)
	assert.Len(t, a.background, 10)

	c, err := New(predict, big, WithMaxBackground(10, 6))
	require.NoError(t, err)
	assert.NotEqual(t, a.background, c.background)
}

func TestExplainValidation(t *testing.T) {
	predict := probaFromScore(func(row []float64) float64 { return 0.5 })

	t.Run("empty background", func(t *testing.T) {
		_, err := New(predict, nil)
		assert.True(t, errors.Is(err, cohort.ErrInvalidArgument))
	})

	t.Run("ragged background", func(t *testing.T) {
		_, err := New(predict, [][]float64{{1, 2}, {3}})
		assert.True(t, errors.Is(err, cohort.ErrShapeMismatch))
	})

	t.Run("too many features", func(t *testing.T) {
		wide := make([]float64, maxExactFeatures+1)
		_, err := New(predict, [][]float64{wide})
		assert.True(t, errors.Is(err, cohort.ErrInvalidArgument))
	})

	t.Run("feature name mismatch", func(t *testing.T) {
		_, err := New(predict, [][]float64{{1, 2}}, WithFeatureNames([]string{"only_one"}))
		assert.True(t, errors.Is(err, cohort.ErrShapeMismatch))
	})

	t.Run("row width mismatch", func(t *testing.T) {
		e, err := New(predict, [][]float64{{1, 2}})
		require.NoError(t, err)
		_, err = e.Explain(context.Background(), [][]float64{{1, 2, 3}})
		assert.True(t, errors.Is(err, cohort.ErrShapeMismatch))
	})
}

func TestExplainMeanAbs(t *testing.T) {
	exp := &Explanation{
		FeatureNames: []string{"a", "b"},
		Values: [][][]float64{
			{{0, 0}, {1, -2}},
			{{0, 0}, {-3, 2}},
		},
	}
	assert.Equal(t, []float64{2, 2}, exp.MeanAbs(1))
}

func TestExplainFittedModel(t *testing.T) {
	gen := cohort.NewGenerator(cohort.DefaultParams(), 11)
	ds, err := dataset.Build(gen, 80, 40)
	require.NoError(t, err)

	clf := model.NewGradientBoosting(model.WithRounds(20), model.WithMaxDepth(2), model.WithMinSamplesLeaf(5))
	require.NoError(t, clf.Fit(ds.Features, ds.Labels))

	e, err := New(clf.PredictProba, ds.Features,
		WithMaxBackground(20, 11),
		WithFeatureNames(cohort.FeatureColumns),
	)
	require.NoError(t, err)

	X := ds.Features[:3]
	exp, err := e.Explain(context.Background(), X)
	require.NoError(t, err)

	proba, err := clf.PredictProba(X)
	require.NoError(t, err)
	for r := range X {
		assert.InDelta(t, proba[r][1], exp.Reconstruct(r, 1), 1e-9, "row %d", r)
	}
	assert.Equal(t, cohort.FeatureColumns, exp.FeatureNames)
}
