package study

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/config"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/dataset"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/explain"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/model"
)

// Classifier is the model contract the study drives. We define it here to
// decouple the pipeline from the concrete boosting implementation.
type Classifier interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
	PredictProba(X [][]float64) ([][]float64, error)
	Classes() []float64
	FeatureImportance() []float64
	Save(path string) error
}

// Reporter renders the visual artifacts of a finished run and returns
// the report path.
type Reporter interface {
	Render(ctx context.Context, st *Study) (string, error)
}

// Service runs studies end to end.
type Service struct {
	classifier Classifier
	reporter   Reporter
	logger     *zap.Logger
}

// NewService wires the pipeline. A nil reporter skips rendering, a nil
// logger logs nowhere.
func NewService(classifier Classifier, reporter Reporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		classifier: classifier,
		reporter:   reporter,
		logger:     logger,
	}
}

// Run executes one complete study. Every stage failure comes back
// wrapped with the stage name.
func (s *Service) Run(ctx context.Context, scenario config.Scenario) (*Study, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	st := &Study{
		ID:        uuid.New(),
		Seed:      scenario.Seed,
		CreatedAt: time.Now().UTC(),
		Scenario:  scenario,
	}
	st.Dir = filepath.Join(scenario.Artifacts, st.ID.String())
	if err := os.MkdirAll(st.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	log := s.logger.With(zap.String("run_id", st.ID.String()), zap.Uint64("seed", st.Seed))

	// 1. Generate both cohorts from one seeded stream.
	gen := cohort.NewGenerator(scenario.Params(), scenario.Seed)
	table, err := dataset.BuildTable(gen, scenario.Cohort.Healthy, scenario.Cohort.Infected)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	st.Table = table
	st.Files.Dataset = filepath.Join(st.Dir, "dataset.csv")
	if err := writeCSVFile(st.Files.Dataset, table); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	log.Info("cohorts generated",
		zap.Int("healthy", scenario.Cohort.Healthy),
		zap.Int("infected", scenario.Cohort.Infected))

	// 2. Split with the run seed.
	ds := dataset.FromTable(table)
	XTrain, XTest, yTrain, yTest, err := dataset.SplitTrainTest(
		ds.Features, ds.Labels, scenario.Split.TestFraction, scenario.Seed)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	log.Info("dataset split",
		zap.Int("train", len(XTrain)),
		zap.Int("test", len(XTest)),
		zap.Float64("test_fraction", scenario.Split.TestFraction))

	// 3. Fit and persist the classifier.
	started := time.Now()
	if err := s.classifier.Fit(XTrain, yTrain); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	st.Importance = s.classifier.FeatureImportance()
	st.Files.Model = filepath.Join(st.Dir, "model.gob")
	if err := s.classifier.Save(st.Files.Model); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	log.Info("classifier fitted",
		zap.Int("rows", len(XTrain)),
		zap.Duration("took", time.Since(started)))

	// 4. Evaluate on the held-out rows.
	if len(XTest) > 0 {
		st.Evaluation, err = model.Evaluate(s.classifier, XTest, yTest)
		if err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		log.Info("classifier evaluated",
			zap.Float64("accuracy", st.Evaluation.Accuracy),
			zap.Float64("auc", st.Evaluation.AUC))
	} else {
		log.Warn("no held-out rows, skipping evaluation")
	}

	// 5. Explain a sample of held-out rows against a train background.
	nSamples := min(scenario.Explain.Samples, len(XTest))
	if nSamples > 0 && len(XTrain) > 0 {
		explainer, err := explain.New(s.classifier.PredictProba, XTrain,
			explain.WithMaxBackground(scenario.Explain.Background, scenario.Seed),
			explain.WithFeatureNames(cohort.FeatureColumns),
		)
		if err != nil {
			return nil, fmt.Errorf("explain: %w", err)
		}

		st.Samples = XTest[:nSamples]
		started = time.Now()
		st.Explanation, err = explainer.Explain(ctx, st.Samples)
		if err != nil {
			return nil, fmt.Errorf("explain: %w", err)
		}
		st.SampleProba, err = s.classifier.PredictProba(st.Samples)
		if err != nil {
			return nil, fmt.Errorf("explain: %w", err)
		}

		st.Files.Background = filepath.Join(st.Dir, "background.csv")
		if err := writeMatrixFile(st.Files.Background, cohort.FeatureColumns, explainer.Background()); err != nil {
			return nil, fmt.Errorf("explain: %w", err)
		}
		log.Info("sample rows explained",
			zap.Int("rows", nSamples),
			zap.Int("background", len(explainer.Background())),
			zap.Duration("took", time.Since(started)))
	}

	// 6. Render the report.
	if s.reporter != nil {
		path, err := s.reporter.Render(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		st.Files.Report = path
		log.Info("report rendered", zap.String("path", path))
	}

	// 7. Write the run summary last so it lists every artifact.
	st.Files.Metrics = filepath.Join(st.Dir, "metrics.yaml")
	if err := s.writeSummary(st); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}

	return st, nil
}

type runSummary struct {
	RunID      string              `yaml:"run_id"`
	Seed       uint64              `yaml:"seed"`
	CreatedAt  time.Time           `yaml:"created_at"`
	Cohort     config.CohortConfig `yaml:"cohort"`
	Evaluation *model.Evaluation   `yaml:"evaluation,omitempty"`
	Files      Artifacts           `yaml:"files"`
}

func (s *Service) writeSummary(st *Study) error {
	data, err := yaml.Marshal(runSummary{
		RunID:      st.ID.String(),
		Seed:       st.Seed,
		CreatedAt:  st.CreatedAt,
		Cohort:     st.Scenario.Cohort,
		Evaluation: st.Evaluation,
		Files:      st.Files,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(st.Files.Metrics, data, 0o644)
}

func writeCSVFile(path string, t *cohort.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeMatrixFile(path string, names []string, X [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteMatrixCSV(f, names, X); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
