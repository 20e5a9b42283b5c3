// Package dataset assembles labeled feature tables from generated
// cohorts and splits them into train/test partitions.
package dataset

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// Dataset pairs a feature matrix with its label vector.
type Dataset struct {
	Features [][]float64
	Labels   []float64
}

// Len reports the number of rows.
func (d *Dataset) Len() int { return len(d.Features) }

// BuildTable generates the healthy cohort then the infected cohort from
// one generator and concatenates the records, healthy block first, order
// preserved. No shuffling happens here; that is the splitter's job.
func BuildTable(gen *cohort.Generator, healthy, infected int) (*cohort.Table, error) {
	h, err := gen.GenerateCohort(healthy, false)
	if err != nil {
		return nil, fmt.Errorf("build dataset: healthy cohort: %w", err)
	}
	inf, err := gen.GenerateCohort(infected, true)
	if err != nil {
		return nil, fmt.Errorf("build dataset: infected cohort: %w", err)
	}
	rows := make([][]float64, 0, h.Len()+inf.Len())
	rows = append(rows, h.Rows...)
	rows = append(rows, inf.Rows...)
	return &cohort.Table{Rows: rows}, nil
}

// Build is BuildTable with the label column peeled off into Labels.
func Build(gen *cohort.Generator, healthy, infected int) (*Dataset, error) {
	table, err := BuildTable(gen, healthy, infected)
	if err != nil {
		return nil, err
	}
	return FromTable(table), nil
}

// FromTable splits a full table into features and labels.
func FromTable(t *cohort.Table) *Dataset {
	return &Dataset{Features: t.Features(), Labels: t.Labels()}
}

// SplitTrainTest partitions rows into train and test sets with a seeded
// index permutation. Rows and labels travel together, the partitions are
// disjoint and jointly cover the input, and the same seed always yields
// the same split. The test size is round(n * testFraction).
func SplitTrainTest(X [][]float64, y []float64, testFraction float64, seed uint64) (XTrain, XTest [][]float64, yTrain, yTest []float64, err error) {
	if len(X) != len(y) {
		return nil, nil, nil, nil,
			fmt.Errorf("split: %d feature rows vs %d labels: %w", len(X), len(y), cohort.ErrShapeMismatch)
	}
	if math.IsNaN(testFraction) || testFraction < 0 || testFraction > 1 {
		return nil, nil, nil, nil,
			fmt.Errorf("split: test fraction %v outside [0,1]: %w", testFraction, cohort.ErrInvalidArgument)
	}

	n := len(X)
	nTest := int(math.Round(float64(n) * testFraction))
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	XTest = make([][]float64, 0, nTest)
	yTest = make([]float64, 0, nTest)
	XTrain = make([][]float64, 0, n-nTest)
	yTrain = make([]float64, 0, n-nTest)
	for i, idx := range perm {
		if i < nTest {
			XTest = append(XTest, X[idx])
			yTest = append(yTest, y[idx])
		} else {
			XTrain = append(XTrain, X[idx])
			yTrain = append(yTrain, y[idx])
		}
	}
	return XTrain, XTest, yTrain, yTest, nil
}
