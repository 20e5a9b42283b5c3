package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// vitalsColumns is the patient_vitals column list in insert order:
// run metadata first, then the record fields.
var vitalsColumns = append([]string{"run_id", "row_idx"}, cohort.Columns...)

// PostgresSink bulk-loads cohorts into the patient_vitals table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// RunMigrations applies the schema migrations from sourceURL
// (e.g. "file://migrations") against the database at dsn.
func RunMigrations(sourceURL, dsn string) error {
	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

// Export streams the whole cohort through a single COPY inside one
// transaction, so a failed run leaves no partial rows behind.
func (s *PostgresSink) Export(ctx context.Context, runID uuid.UUID, table *cohort.Table) error {
	if table == nil || table.Len() == 0 {
		return fmt.Errorf("export postgres: empty cohort: %w", cohort.ErrInvalidArgument)
	}
	for i, row := range table.Rows {
		if len(row) != len(cohort.Columns) {
			return fmt.Errorf("export postgres: row %d has %d values, want %d: %w",
				i, len(row), len(cohort.Columns), cohort.ErrShapeMismatch)
		}
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export postgres: begin: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn("patient_vitals", vitalsColumns...))
	if err != nil {
		txn.Rollback()
		return fmt.Errorf("export postgres: prepare copy: %w", err)
	}

	for i, row := range table.Rows {
		args := make([]interface{}, 0, len(vitalsColumns))
		args = append(args, runID, i)
		for _, v := range row {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			txn.Rollback()
			return fmt.Errorf("export postgres: copy row %d: %w", i, err)
		}
	}

	// Empty Exec flushes the buffered COPY data.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		txn.Rollback()
		return fmt.Errorf("export postgres: flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		txn.Rollback()
		return fmt.Errorf("export postgres: close copy: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("export postgres: commit: %w", err)
	}
	return nil
}
