package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/serve"
)

var (
	serveAddr string
	serveRun  string
)

// serveCmd exposes a fitted run over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions and explanations from a finished run",
	RunE:  serveRunDir,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveRun, "artifacts", "", "Run directory holding model.gob and background.csv (required)")
	serveCmd.MarkFlagRequired("artifacts")
}

func serveRunDir(cmd *cobra.Command, args []string) error {
	clf, explainer, err := serve.LoadArtifacts(serveRun)
	if err != nil {
		return err
	}

	handler := serve.NewHandler(clf, explainer)
	router := serve.NewRouter(handler, logger)

	srv := &http.Server{Addr: serveAddr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", serveAddr), zap.String("artifacts", serveRun))
		fmt.Printf("Serving run %s on %s...\n", serveRun, serveAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("server stopped")
	}
	return nil
}
