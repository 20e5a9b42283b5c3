package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// Evaluation collects the held-out metrics of one study run.
type Evaluation struct {
	Accuracy  float64   `yaml:"accuracy"`
	Precision float64   `yaml:"precision"`
	Recall    float64   `yaml:"recall"`
	F1        float64   `yaml:"f1"`
	LogLoss   float64   `yaml:"log_loss"`
	AUC       float64   `yaml:"auc"`
	Confusion [2][2]int `yaml:"confusion"`
}

// Evaluate runs the classifier over X and scores it against y.
func Evaluate(c Classifier, X [][]float64, y []float64) (*Evaluation, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	pred := make([]float64, len(proba))
	score := make([]float64, len(proba))
	for i, p := range proba {
		score[i] = p[1]
		if p[1] >= 0.5 {
			pred[i] = 1
		}
	}

	ev := &Evaluation{}
	if ev.Accuracy, err = Accuracy(y, pred); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if ev.Confusion, err = ConfusionMatrix(y, pred); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if ev.Precision, ev.Recall, ev.F1, err = PrecisionRecallF1(y, pred); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if ev.LogLoss, err = LogLoss(y, proba); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if ev.AUC, err = ROCAUC(y, score); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return ev, nil
}

// Accuracy is the fraction of exact label matches.
func Accuracy(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("accuracy: %d vs %d: %w", len(yTrue), len(yPred), cohort.ErrShapeMismatch)
	}
	if len(yTrue) == 0 {
		return 0, fmt.Errorf("accuracy: empty input: %w", cohort.ErrInvalidArgument)
	}
	var hits int
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue)), nil
}

// ConfusionMatrix counts binary outcomes, rows actual and columns
// predicted.
func ConfusionMatrix(yTrue, yPred []float64) ([2][2]int, error) {
	var cm [2][2]int
	if len(yTrue) != len(yPred) {
		return cm, fmt.Errorf("confusion matrix: %d vs %d: %w", len(yTrue), len(yPred), cohort.ErrShapeMismatch)
	}
	for i := range yTrue {
		a, ok := binaryIndex(yTrue[i])
		if !ok {
			return cm, fmt.Errorf("confusion matrix: label %v is not binary: %w", yTrue[i], cohort.ErrInvalidArgument)
		}
		p, ok := binaryIndex(yPred[i])
		if !ok {
			return cm, fmt.Errorf("confusion matrix: prediction %v is not binary: %w", yPred[i], cohort.ErrInvalidArgument)
		}
		cm[a][p]++
	}
	return cm, nil
}

func binaryIndex(v float64) (int, bool) {
	switch v {
	case 0:
		return 0, true
	case 1:
		return 1, true
	}
	return 0, false
}

// PrecisionRecallF1 scores the positive (infected) class. Undefined
// ratios degrade to zero rather than erroring.
func PrecisionRecallF1(yTrue, yPred []float64) (precision, recall, f1 float64, err error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("precision/recall: %w", err)
	}
	tp := float64(cm[1][1])
	fp := float64(cm[0][1])
	fn := float64(cm[1][0])

	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1, nil
}

// LogLoss is the mean negative log-likelihood of the true class, with
// probabilities clipped away from 0 and 1.
func LogLoss(yTrue []float64, proba [][]float64) (float64, error) {
	if len(yTrue) != len(proba) {
		return 0, fmt.Errorf("log loss: %d labels vs %d rows: %w", len(yTrue), len(proba), cohort.ErrShapeMismatch)
	}
	if len(yTrue) == 0 {
		return 0, fmt.Errorf("log loss: empty input: %w", cohort.ErrInvalidArgument)
	}
	const eps = 1e-15
	var sum float64
	for i, p := range proba {
		cls, ok := binaryIndex(yTrue[i])
		if !ok {
			return 0, fmt.Errorf("log loss: label %v is not binary: %w", yTrue[i], cohort.ErrInvalidArgument)
		}
		if len(p) != 2 {
			return 0, fmt.Errorf("log loss: row %d has %d classes, want 2: %w", i, len(p), cohort.ErrShapeMismatch)
		}
		sum -= math.Log(math.Min(math.Max(p[cls], eps), 1-eps))
	}
	return sum / float64(len(yTrue)), nil
}

// ROCAUC is the Mann-Whitney rank statistic of the positive-class
// scores, with average ranks on ties.
func ROCAUC(yTrue, score []float64) (float64, error) {
	if len(yTrue) != len(score) {
		return 0, fmt.Errorf("roc auc: %d labels vs %d scores: %w", len(yTrue), len(score), cohort.ErrShapeMismatch)
	}

	order := make([]int, len(score))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return score[order[a]] < score[order[b]] })

	ranks := make([]float64, len(score))
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && score[order[j]] == score[order[i]] {
			j++
		}
		// Tied scores share the average rank of their span.
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		i = j
	}

	var nPos, nNeg, rankSum float64
	for i, label := range yTrue {
		cls, ok := binaryIndex(label)
		if !ok {
			return 0, fmt.Errorf("roc auc: label %v is not binary: %w", label, cohort.ErrInvalidArgument)
		}
		if cls == 1 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, fmt.Errorf("roc auc: needs both classes: %w", cohort.ErrInvalidArgument)
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}
