// Package explain computes exact Shapley attributions for a prediction
// function by enumerating every feature coalition against a background
// sample.
package explain

import (
	"context"
	"fmt"
	"math/bits"
	"runtime"
	"sort"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// PredictProbaFunc scores feature rows into per-class probabilities. The
// engine consumes a function, not a model type, so any fitted classifier
// can be explained.
type PredictProbaFunc func(X [][]float64) ([][]float64, error)

// Exact enumeration walks 2^p coalitions; beyond this width it is no
// longer a reasonable default.
const maxExactFeatures = 16

// Option mutates the explainer before first use.
type Option func(*Explainer)

// WithMaxBackground caps the background set with a seeded subsample.
func WithMaxBackground(n int, seed uint64) Option {
	return func(e *Explainer) {
		e.maxBackground = n
		e.backgroundSeed = seed
	}
}

// WithWorkers caps how many rows are explained concurrently.
func WithWorkers(n int) Option {
	return func(e *Explainer) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithFeatureNames attaches column names to resulting explanations.
func WithFeatureNames(names []string) Option {
	return func(e *Explainer) { e.featureNames = names }
}

// Explainer holds the prediction function, the background sample and the
// coalition weights for one feature width.
type Explainer struct {
	predict      PredictProbaFunc
	background   [][]float64
	featureNames []string
	weights      []float64

	maxBackground  int
	backgroundSeed uint64
	workers        int
}

// New validates the background sample and builds an explainer.
func New(predict PredictProbaFunc, background [][]float64, opts ...Option) (*Explainer, error) {
	if predict == nil {
		return nil, fmt.Errorf("explainer: nil prediction function: %w", cohort.ErrInvalidArgument)
	}
	if len(background) == 0 {
		return nil, fmt.Errorf("explainer: empty background sample: %w", cohort.ErrInvalidArgument)
	}
	width := len(background[0])
	if width == 0 {
		return nil, fmt.Errorf("explainer: background rows have no features: %w", cohort.ErrInvalidArgument)
	}
	if width > maxExactFeatures {
		return nil, fmt.Errorf("explainer: %d features exceeds the exact-enumeration limit %d: %w",
			width, maxExactFeatures, cohort.ErrInvalidArgument)
	}
	for i, row := range background {
		if len(row) != width {
			return nil, fmt.Errorf("explainer: background row %d has width %d, want %d: %w",
				i, len(row), width, cohort.ErrShapeMismatch)
		}
	}

	e := &Explainer{
		predict:    predict,
		background: background,
		workers:    runtime.GOMAXPROCS(0),
		weights:    coalitionWeights(width),
	}
	for _, o := range opts {
		o(e)
	}
	if e.featureNames == nil {
		e.featureNames = make([]string, width)
		for i := range e.featureNames {
			e.featureNames[i] = fmt.Sprintf("feature_%d", i)
		}
	}
	if len(e.featureNames) != width {
		return nil, fmt.Errorf("explainer: %d feature names for width %d: %w",
			len(e.featureNames), width, cohort.ErrShapeMismatch)
	}
	if e.maxBackground > 0 && len(e.background) > e.maxBackground {
		e.background = subsample(e.background, e.maxBackground, e.backgroundSeed)
	}
	return e, nil
}

// subsample draws n rows without replacement, keeping original order so
// the same seed always yields the same background.
func subsample(rows [][]float64, n int, seed uint64) [][]float64 {
	perm := rand.New(rand.NewSource(seed)).Perm(len(rows))
	chosen := append([]int(nil), perm[:n]...)
	sort.Ints(chosen)
	out := make([][]float64, n)
	for i, idx := range chosen {
		out[i] = rows[idx]
	}
	return out
}

// coalitionWeights precomputes |S|!(p-|S|-1)!/p! for every coalition
// size. The weights over all coalitions excluding one feature sum to 1.
func coalitionWeights(p int) []float64 {
	fact := make([]float64, p+1)
	fact[0] = 1
	for i := 1; i <= p; i++ {
		fact[i] = fact[i-1] * float64(i)
	}
	w := make([]float64, p)
	for s := 0; s < p; s++ {
		w[s] = fact[s] * fact[p-s-1] / fact[p]
	}
	return w
}

// Background returns a copy of the background rows in use, after any
// subsampling.
func (e *Explainer) Background() [][]float64 {
	out := make([][]float64, len(e.background))
	for i, row := range e.background {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Explanation carries exact attributions for a batch of rows, indexed
// [row][class][feature]. Baseline is the mean background prediction per
// class; baseline + the row's attributions reconstruct its prediction.
type Explanation struct {
	FeatureNames []string
	Classes      []float64
	Baseline     []float64
	Values       [][][]float64
}

// Reconstruct returns baseline + the summed attributions of one row.
func (e *Explanation) Reconstruct(row, class int) float64 {
	sum := e.Baseline[class]
	for _, v := range e.Values[row][class] {
		sum += v
	}
	return sum
}

// MeanAbs is the global importance of each feature for one class: the
// mean absolute attribution across all explained rows.
func (e *Explanation) MeanAbs(class int) []float64 {
	out := make([]float64, len(e.FeatureNames))
	if len(e.Values) == 0 {
		return out
	}
	for _, row := range e.Values {
		for i, v := range row[class] {
			if v < 0 {
				v = -v
			}
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(e.Values))
	}
	return out
}

// Explain attributes every row of X. Rows fan out across workers; output
// order matches input order regardless of scheduling.
func (e *Explainer) Explain(ctx context.Context, X [][]float64) (*Explanation, error) {
	width := len(e.background[0])
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("explain: row %d has width %d, want %d: %w",
				i, len(row), width, cohort.ErrShapeMismatch)
		}
	}

	baseline, classes, err := e.baseline()
	if err != nil {
		return nil, err
	}

	values := make([][][]float64, len(X))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers)
	for r := range X {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			phi, err := e.explainRow(X[r], len(classes))
			if err != nil {
				return fmt.Errorf("explain row %d: %w", r, err)
			}
			values[r] = phi
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &Explanation{
		FeatureNames: append([]string(nil), e.featureNames...),
		Classes:      classes,
		Baseline:     baseline,
		Values:       values,
	}, nil
}

func (e *Explainer) baseline() (baseline, classes []float64, err error) {
	proba, err := e.predict(e.background)
	if err != nil {
		return nil, nil, fmt.Errorf("explain baseline: %w", err)
	}
	if len(proba) != len(e.background) {
		return nil, nil, fmt.Errorf("explain baseline: %d prediction rows for %d inputs: %w",
			len(proba), len(e.background), cohort.ErrShapeMismatch)
	}
	nClasses := len(proba[0])
	baseline = make([]float64, nClasses)
	for _, p := range proba {
		for c, v := range p {
			baseline[c] += v
		}
	}
	classes = make([]float64, nClasses)
	for c := range baseline {
		baseline[c] /= float64(len(proba))
		classes[c] = float64(c)
	}
	return baseline, classes, nil
}

// explainRow blends the row into every background record under every
// coalition, scores the whole batch in one call, and folds the weighted
// marginal contributions into per-class attributions.
func (e *Explainer) explainRow(x []float64, nClasses int) ([][]float64, error) {
	p := len(x)
	nMasks := 1 << p
	nBg := len(e.background)

	blend := make([][]float64, 0, nMasks*nBg)
	for mask := 0; mask < nMasks; mask++ {
		for _, bg := range e.background {
			z := make([]float64, p)
			copy(z, bg)
			for i := 0; i < p; i++ {
				if mask&(1<<i) != 0 {
					z[i] = x[i]
				}
			}
			blend = append(blend, z)
		}
	}

	proba, err := e.predict(blend)
	if err != nil {
		return nil, err
	}
	if len(proba) != nMasks*nBg {
		return nil, fmt.Errorf("%d prediction rows for %d inputs: %w",
			len(proba), nMasks*nBg, cohort.ErrShapeMismatch)
	}

	// v[mask][c]: mean prediction with coalition mask fixed to x.
	v := make([][]float64, nMasks)
	for mask := 0; mask < nMasks; mask++ {
		m := make([]float64, nClasses)
		for k := 0; k < nBg; k++ {
			row := proba[mask*nBg+k]
			if len(row) != nClasses {
				return nil, fmt.Errorf("prediction row has %d classes, want %d: %w",
					len(row), nClasses, cohort.ErrShapeMismatch)
			}
			for c, val := range row {
				m[c] += val
			}
		}
		for c := range m {
			m[c] /= float64(nBg)
		}
		v[mask] = m
	}

	phi := make([][]float64, nClasses)
	for c := range phi {
		phi[c] = make([]float64, p)
	}
	for i := 0; i < p; i++ {
		bit := 1 << i
		for mask := 0; mask < nMasks; mask++ {
			if mask&bit != 0 {
				continue
			}
			w := e.weights[bits.OnesCount(uint(mask))]
			with, without := v[mask|bit], v[mask]
			for c := 0; c < nClasses; c++ {
				phi[c][i] += w * (with[c] - without[c])
			}
		}
	}
	return phi, nil
}
