// Package serve exposes a fitted run over HTTP: predictions,
// explanations and a health probe.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/dataset"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/explain"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/model"
)

// Predictor is the fitted-model surface the API serves. We define it
// here to decouple the handlers from the concrete classifier.
type Predictor interface {
	PredictProba(X [][]float64) ([][]float64, error)
}

// Explainer attributes prediction rows.
type Explainer interface {
	Explain(ctx context.Context, X [][]float64) (*explain.Explanation, error)
}

// Handler serves one fitted run.
type Handler struct {
	predictor Predictor
	explainer Explainer
}

// NewHandler wires the API around a fitted model and its explainer.
func NewHandler(predictor Predictor, explainer Explainer) *Handler {
	return &Handler{predictor: predictor, explainer: explainer}
}

// LoadArtifacts restores the fitted model and explainer from a run
// directory written by a study run.
func LoadArtifacts(dir string) (*model.GradientBoosting, *explain.Explainer, error) {
	clf, err := model.Load(filepath.Join(dir, "model.gob"))
	if err != nil {
		return nil, nil, fmt.Errorf("load artifacts: %w", err)
	}

	f, err := os.Open(filepath.Join(dir, "background.csv"))
	if err != nil {
		return nil, nil, fmt.Errorf("load artifacts: %w", err)
	}
	defer f.Close()
	names, background, err := dataset.ReadMatrixCSV(f)
	if err != nil {
		return nil, nil, fmt.Errorf("load artifacts: %w", err)
	}

	explainer, err := explain.New(clf.PredictProba, background, explain.WithFeatureNames(names))
	if err != nil {
		return nil, nil, fmt.Errorf("load artifacts: %w", err)
	}
	return clf, explainer, nil
}

type PredictRequest struct {
	Records [][]float64 `json:"records"`
}

type PredictResponse struct {
	Labels        []float64   `json:"labels"`
	Probabilities [][]float64 `json:"probabilities"`
}

func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		http.Error(w, "No records", http.StatusBadRequest)
		return
	}

	proba, err := h.predictor.PredictProba(req.Records)
	if err != nil {
		http.Error(w, "Prediction failed: "+err.Error(), statusFor(err))
		return
	}
	labels := make([]float64, len(proba))
	for i, p := range proba {
		if p[1] >= 0.5 {
			labels[i] = 1
		}
	}

	json.NewEncoder(w).Encode(PredictResponse{
		Labels:        labels,
		Probabilities: proba,
	})
}

type ExplainRequest struct {
	Records [][]float64 `json:"records"`
}

type ExplainResponse struct {
	FeatureNames []string      `json:"feature_names"`
	Classes      []float64     `json:"classes"`
	Baseline     []float64     `json:"baseline"`
	Values       [][][]float64 `json:"values"`
}

func (h *Handler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		http.Error(w, "No records", http.StatusBadRequest)
		return
	}

	exp, err := h.explainer.Explain(r.Context(), req.Records)
	if err != nil {
		http.Error(w, "Explanation failed: "+err.Error(), statusFor(err))
		return
	}

	json.NewEncoder(w).Encode(ExplainResponse{
		FeatureNames: exp.FeatureNames,
		Classes:      exp.Classes,
		Baseline:     exp.Baseline,
		Values:       exp.Values,
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statusFor maps caller mistakes to 400 and everything else to 500.
func statusFor(err error) int {
	if errors.Is(err, cohort.ErrShapeMismatch) || errors.Is(err, cohort.ErrInvalidArgument) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/api/health", h.HandleHealth)
	r.Post("/api/predict", h.HandlePredict)
	r.Post("/api/explain", h.HandleExplain)
}

// NewRouter assembles the API router with recovery and request logging.
func NewRouter(h *Handler, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	RegisterRoutes(r, h)
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)))
		})
	}
}
