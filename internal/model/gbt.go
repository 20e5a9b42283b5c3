package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// Classifier is the fitted-model contract the rest of the pipeline
// consumes. PredictProba rows are per-class probabilities in Classes()
// order.
type Classifier interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
	PredictProba(X [][]float64) ([][]float64, error)
	Classes() []float64
}

// Option mutates boosting hyperparameters before fitting.
type Option func(*GradientBoosting)

// WithRounds sets the number of boosting rounds.
func WithRounds(n int) Option { return func(m *GradientBoosting) { m.rounds = n } }

// WithLearningRate sets the shrinkage applied to every tree.
func WithLearningRate(eta float64) Option { return func(m *GradientBoosting) { m.learningRate = eta } }

// WithMaxDepth sets the depth limit of each tree.
func WithMaxDepth(d int) Option { return func(m *GradientBoosting) { m.maxDepth = d } }

// WithMinSamplesLeaf sets the minimum rows per leaf.
func WithMinSamplesLeaf(n int) Option { return func(m *GradientBoosting) { m.minSamplesLeaf = n } }

// WithL2 sets the λ regularizer on leaf weights.
func WithL2(lambda float64) Option { return func(m *GradientBoosting) { m.lambda = lambda } }

// WithMinGain sets the minimum Newton gain a split must clear.
func WithMinGain(g float64) Option { return func(m *GradientBoosting) { m.minGain = g } }

// GradientBoosting is a binary classifier boosting regression trees on
// the logistic loss. Fitting is deterministic: no row or feature
// subsampling, ties broken by feature index.
type GradientBoosting struct {
	rounds         int
	learningRate   float64
	maxDepth       int
	minSamplesLeaf int
	lambda         float64
	minGain        float64

	trees     []*regTree
	baseScore float64
	nFeatures int
	gains     []float64
	fitted    bool
}

// NewGradientBoosting builds a classifier with study defaults.
func NewGradientBoosting(opts ...Option) *GradientBoosting {
	m := &GradientBoosting{
		rounds:         100,
		learningRate:   0.1,
		maxDepth:       3,
		minSamplesLeaf: 1,
		lambda:         1,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Fit boosts trees on (X, y). Labels must be 0 or 1.
func (m *GradientBoosting) Fit(X [][]float64, y []float64) error {
	if len(X) != len(y) {
		return fmt.Errorf("gbt fit: %d feature rows vs %d labels: %w", len(X), len(y), cohort.ErrShapeMismatch)
	}
	if len(X) == 0 {
		return fmt.Errorf("gbt fit: empty training set: %w", cohort.ErrInvalidArgument)
	}
	if m.rounds < 1 || m.maxDepth < 1 || m.learningRate <= 0 || m.lambda < 0 {
		return fmt.Errorf("gbt fit: rounds=%d depth=%d eta=%v lambda=%v: %w",
			m.rounds, m.maxDepth, m.learningRate, m.lambda, cohort.ErrInvalidArgument)
	}

	width := len(X[0])
	if width == 0 {
		return fmt.Errorf("gbt fit: rows have no features: %w", cohort.ErrInvalidArgument)
	}
	var positives int
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("gbt fit: row %d has width %d, want %d: %w", i, len(row), width, cohort.ErrShapeMismatch)
		}
		switch y[i] {
		case 0:
		case 1:
			positives++
		default:
			return fmt.Errorf("gbt fit: label %v at row %d is not binary: %w", y[i], i, cohort.ErrInvalidArgument)
		}
	}

	// Prior log-odds, clipped away from the degenerate classes.
	prior := float64(positives) / float64(len(y))
	prior = math.Min(math.Max(prior, 1e-6), 1-1e-6)
	m.baseScore = math.Log(prior / (1 - prior))
	m.nFeatures = width
	m.trees = make([]*regTree, 0, m.rounds)
	m.gains = make([]float64, width)

	cfg := treeConfig{
		maxDepth:       m.maxDepth,
		minSamplesLeaf: max(m.minSamplesLeaf, 1),
		lambda:         m.lambda,
		minGain:        m.minGain,
	}

	score := make([]float64, len(X))
	grad := make([]float64, len(X))
	hess := make([]float64, len(X))
	for i := range score {
		score[i] = m.baseScore
	}
	for round := 0; round < m.rounds; round++ {
		for i := range score {
			p := sigmoid(score[i])
			grad[i] = y[i] - p
			hess[i] = p * (1 - p)
		}
		tree := fitTree(X, grad, hess, cfg, m.gains)
		m.trees = append(m.trees, tree)
		for i, row := range X {
			score[i] += m.learningRate * tree.predict(row)
		}
	}

	m.fitted = true
	return nil
}

func (m *GradientBoosting) decision(row []float64) float64 {
	f := m.baseScore
	for _, t := range m.trees {
		f += m.learningRate * t.predict(row)
	}
	return f
}

// PredictProba returns [P(healthy), P(infected)] per row.
func (m *GradientBoosting) PredictProba(X [][]float64) ([][]float64, error) {
	if !m.fitted {
		return nil, errors.New("gbt: predict before fit")
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != m.nFeatures {
			return nil, fmt.Errorf("gbt predict: row %d has width %d, want %d: %w",
				i, len(row), m.nFeatures, cohort.ErrShapeMismatch)
		}
		p := sigmoid(m.decision(row))
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// Predict thresholds the positive-class probability at 0.5.
func (m *GradientBoosting) Predict(X [][]float64) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	labels := make([]float64, len(proba))
	for i, p := range proba {
		if p[1] >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// Classes reports the label order of PredictProba rows.
func (m *GradientBoosting) Classes() []float64 { return []float64{0, 1} }

// NumFeatures reports the fitted feature width.
func (m *GradientBoosting) NumFeatures() int { return m.nFeatures }

// FeatureImportance returns the per-feature share of total Newton gain.
func (m *GradientBoosting) FeatureImportance() []float64 {
	out := make([]float64, len(m.gains))
	var total float64
	for _, g := range m.gains {
		total += g
	}
	if total == 0 {
		return out
	}
	for i, g := range m.gains {
		out[i] = g / total
	}
	return out
}

// gbtState is the gob snapshot of a fitted model.
type gbtState struct {
	Rounds         int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	Lambda         float64
	MinGain        float64
	BaseScore      float64
	NFeatures      int
	Gains          []float64
	Trees          []*regTree
}

// MarshalBinary encodes the fitted model with gob.
func (m *GradientBoosting) MarshalBinary() ([]byte, error) {
	if !m.fitted {
		return nil, errors.New("gbt: marshal before fit")
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(gbtState{
		Rounds:         m.rounds,
		LearningRate:   m.learningRate,
		MaxDepth:       m.maxDepth,
		MinSamplesLeaf: m.minSamplesLeaf,
		Lambda:         m.lambda,
		MinGain:        m.minGain,
		BaseScore:      m.baseScore,
		NFeatures:      m.nFeatures,
		Gains:          m.gains,
		Trees:          m.trees,
	})
	if err != nil {
		return nil, fmt.Errorf("gbt marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a model encoded by MarshalBinary.
func (m *GradientBoosting) UnmarshalBinary(data []byte) error {
	var st gbtState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("gbt unmarshal: %w", err)
	}
	m.rounds = st.Rounds
	m.learningRate = st.LearningRate
	m.maxDepth = st.MaxDepth
	m.minSamplesLeaf = st.MinSamplesLeaf
	m.lambda = st.Lambda
	m.minGain = st.MinGain
	m.baseScore = st.BaseScore
	m.nFeatures = st.NFeatures
	m.gains = st.Gains
	m.trees = st.Trees
	m.fitted = true
	return nil
}

// Save writes the fitted model to path.
func (m *GradientBoosting) Save(path string) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("gbt save: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (*GradientBoosting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gbt load: %w", err)
	}
	m := &GradientBoosting{}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}
