// Package config loads and validates the YAML scenario driving a study
// run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// CohortConfig sets how many records each class contributes.
type CohortConfig struct {
	Healthy  int `yaml:"healthy"`
	Infected int `yaml:"infected"`
}

// SplitConfig sets the held-out share.
type SplitConfig struct {
	TestFraction float64 `yaml:"test_fraction"`
}

// ModelConfig sets the boosting hyperparameters.
type ModelConfig struct {
	Rounds         int     `yaml:"rounds"`
	LearningRate   float64 `yaml:"learning_rate"`
	MaxDepth       int     `yaml:"max_depth"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf"`
	L2             float64 `yaml:"l2"`
}

// ExplainConfig sets how many test rows get report explanations and how
// large the background sample may grow.
type ExplainConfig struct {
	Samples    int `yaml:"samples"`
	Background int `yaml:"background"`
}

// Scenario is the complete configuration of one study run. A single seed
// drives generation, splitting, background subsampling and report
// identities.
type Scenario struct {
	Seed      uint64         `yaml:"seed"`
	Cohort    CohortConfig   `yaml:"cohort"`
	Split     SplitConfig    `yaml:"split"`
	Model     ModelConfig    `yaml:"model"`
	Explain   ExplainConfig  `yaml:"explain"`
	Artifacts string         `yaml:"artifacts"`
	Recipe    *cohort.Params `yaml:"recipe,omitempty"`
}

// Default returns the study defaults.
func Default() Scenario {
	return Scenario{
		Seed: 42,
		Cohort: CohortConfig{
			Healthy:  900,
			Infected: 100,
		},
		Split: SplitConfig{TestFraction: 0.2},
		Model: ModelConfig{
			Rounds:         150,
			LearningRate:   0.1,
			MaxDepth:       3,
			MinSamplesLeaf: 5,
			L2:             1,
		},
		Explain: ExplainConfig{
			Samples:    3,
			Background: 100,
		},
		Artifacts: "out",
	}
}

// Params returns the recipe override, or the study constants when the
// scenario leaves it unset.
func (s *Scenario) Params() cohort.Params {
	if s.Recipe != nil {
		return *s.Recipe
	}
	return cohort.DefaultParams()
}

// Load reads a scenario file over the defaults, so partial files only
// override what they mention. A missing file yields the defaults.
func Load(path string) (Scenario, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("load scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the scenario, creating parent directories as needed.
func (s *Scenario) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save scenario: %w", err)
		}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("save scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save scenario: %w", err)
	}
	return nil
}

// Validate rejects scenarios no stage could run with.
func (s *Scenario) Validate() error {
	bad := func(field string, value any) error {
		return fmt.Errorf("scenario: %s=%v: %w", field, value, cohort.ErrInvalidArgument)
	}
	if s.Cohort.Healthy < 0 {
		return bad("cohort.healthy", s.Cohort.Healthy)
	}
	if s.Cohort.Infected < 0 {
		return bad("cohort.infected", s.Cohort.Infected)
	}
	if s.Cohort.Healthy+s.Cohort.Infected == 0 {
		return bad("cohort", "empty study")
	}
	if s.Split.TestFraction < 0 || s.Split.TestFraction > 1 {
		return bad("split.test_fraction", s.Split.TestFraction)
	}
	if s.Model.Rounds < 1 {
		return bad("model.rounds", s.Model.Rounds)
	}
	if s.Model.LearningRate <= 0 {
		return bad("model.learning_rate", s.Model.LearningRate)
	}
	if s.Model.MaxDepth < 1 {
		return bad("model.max_depth", s.Model.MaxDepth)
	}
	if s.Model.MinSamplesLeaf < 1 {
		return bad("model.min_samples_leaf", s.Model.MinSamplesLeaf)
	}
	if s.Model.L2 < 0 {
		return bad("model.l2", s.Model.L2)
	}
	if s.Explain.Samples < 0 {
		return bad("explain.samples", s.Explain.Samples)
	}
	if s.Explain.Background < 1 {
		return bad("explain.background", s.Explain.Background)
	}
	if s.Artifacts == "" {
		return bad("artifacts", "empty path")
	}
	return nil
}
