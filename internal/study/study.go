// Package study orchestrates one full pipeline run: generate, split,
// fit, evaluate, explain, report.
package study

import (
	"time"

	"github.com/google/uuid"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/config"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/explain"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/model"
)

// Artifacts locates everything a run wrote to disk.
type Artifacts struct {
	Dataset    string `yaml:"dataset"`
	Model      string `yaml:"model"`
	Background string `yaml:"background"`
	Metrics    string `yaml:"metrics"`
	Report     string `yaml:"report,omitempty"`
}

// Study is the aggregate describing one run.
type Study struct {
	ID        uuid.UUID
	Seed      uint64
	CreatedAt time.Time
	Scenario  config.Scenario

	// Generated data and fitted results.
	Table       *cohort.Table
	Evaluation  *model.Evaluation
	Importance  []float64
	Explanation *explain.Explanation
	Samples     [][]float64
	SampleProba [][]float64

	// Where the artifacts live.
	Dir   string
	Files Artifacts
}
