package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/dataset"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/export"
)

var (
	exportDSN        string
	exportOut        string
	exportSeed       uint64
	exportMigrations string
)

// exportCmd loads a generated cohort into Postgres or a CSV file
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Generate a cohort and export it to PostgreSQL or CSV",
	RunE:  exportCohort,
}

func init() {
	exportCmd.Flags().StringVar(&exportDSN, "dsn", "", "PostgreSQL DSN (or set DATABASE_URL)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Directory for a CSV export instead of PostgreSQL")
	exportCmd.Flags().Uint64Var(&exportSeed, "seed", 0, "Override the scenario seed")
	exportCmd.Flags().StringVar(&exportMigrations, "migrations", "file://migrations", "Migration source URL")
}

func exportCohort(cmd *cobra.Command, args []string) error {
	scenario, err := loadScenario()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		scenario.Seed = exportSeed
	}
	if err := scenario.Validate(); err != nil {
		return err
	}

	dsn := exportDSN
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" && exportOut == "" {
		return fmt.Errorf("export: need --dsn (or DATABASE_URL) or --out: %w", cohort.ErrInvalidArgument)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := cohort.NewGenerator(scenario.Params(), scenario.Seed)
	table, err := dataset.BuildTable(gen, scenario.Cohort.Healthy, scenario.Cohort.Infected)
	if err != nil {
		return err
	}
	runID := uuid.New()

	if dsn == "" {
		sink := export.NewCSVSink(exportOut)
		if err := sink.Export(ctx, runID, table); err != nil {
			return err
		}
		fmt.Printf("Exported %d rows to %s\n", table.Len(), sink.Path(runID))
		return nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// The database may still be starting up alongside us.
	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		logger.Info("waiting for database", zap.Int("attempt", i+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := export.RunMigrations(exportMigrations, dsn); err != nil {
		return err
	}
	logger.Info("migrations applied")

	sink := export.NewPostgresSink(db)
	if err := sink.Export(ctx, runID, table); err != nil {
		return err
	}
	logger.Info("cohort exported",
		zap.String("run_id", runID.String()),
		zap.Int("rows", table.Len()))
	fmt.Printf("Exported %d rows as run %s\n", table.Len(), runID)
	return nil
}
