// Package export persists generated cohorts outside the run directory,
// to CSV files or to a Postgres table for downstream analysts.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/dataset"
)

// Sink receives one generated cohort keyed by its run ID.
type Sink interface {
	Export(ctx context.Context, runID uuid.UUID, table *cohort.Table) error
}

// CSVSink writes each cohort to cohort_<runID>.csv inside its directory.
type CSVSink struct {
	dir string
}

func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{dir: dir}
}

// Path returns where the cohort of a run lands.
func (s *CSVSink) Path(runID uuid.UUID) string {
	return filepath.Join(s.dir, fmt.Sprintf("cohort_%s.csv", runID))
}

func (s *CSVSink) Export(ctx context.Context, runID uuid.UUID, table *cohort.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if table == nil || table.Len() == 0 {
		return fmt.Errorf("export csv: empty cohort: %w", cohort.ErrInvalidArgument)
	}

	f, err := os.Create(s.Path(runID))
	if err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	if err := dataset.WriteCSV(f, table); err != nil {
		f.Close()
		return fmt.Errorf("export csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}
