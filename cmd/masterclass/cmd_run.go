package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/model"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/report"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/study"
)

var (
	runSeed      uint64
	artifactsDir string
)

// runCmd executes the full study pipeline
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a complete study: generate, fit, evaluate, explain, report",
	RunE:  runStudy,
}

func init() {
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Override the scenario seed")
	runCmd.Flags().StringVar(&artifactsDir, "artifacts", "", "Override the artifacts directory")
}

func runStudy(cmd *cobra.Command, args []string) error {
	scenario, err := loadScenario()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		scenario.Seed = runSeed
	}
	if artifactsDir != "" {
		scenario.Artifacts = artifactsDir
	}

	clf := model.NewGradientBoosting(
		model.WithRounds(scenario.Model.Rounds),
		model.WithLearningRate(scenario.Model.LearningRate),
		model.WithMaxDepth(scenario.Model.MaxDepth),
		model.WithMinSamplesLeaf(scenario.Model.MinSamplesLeaf),
		model.WithL2(scenario.Model.L2),
	)
	svc := study.NewService(clf, report.NewService(logger), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := svc.Run(ctx, scenario)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s finished.\n", st.ID)
	fmt.Printf("Artifacts: %s\n", st.Dir)
	if st.Evaluation != nil {
		fmt.Printf("Held-out accuracy %.3f, AUC %.3f\n", st.Evaluation.Accuracy, st.Evaluation.AUC)
	}
	if st.Files.Report != "" {
		fmt.Printf("Report: %s\n", st.Files.Report)
	}
	return nil
}
