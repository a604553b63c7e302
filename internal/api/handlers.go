// Package api serves annotations, their tag-count charts and the player
// seek position over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kdimtricp/framechart/internal/analytics"
	"github.com/kdimtricp/framechart/internal/database"
	"github.com/kdimtricp/framechart/internal/metrics"
	"github.com/kdimtricp/framechart/internal/models"
	"github.com/kdimtricp/framechart/internal/player"
	"github.com/kdimtricp/framechart/internal/storage"
)

// AnnotationStore is the subset of the annotation repository the handlers use.
type AnnotationStore interface {
	Create(ctx context.Context, a *models.Annotation) error
	GetByID(ctx context.Context, id string) (*models.Annotation, error)
	List(ctx context.Context) ([]database.AnnotationSummary, error)
	Delete(ctx context.Context, id string) error
}

type App struct {
	Annotations       AnnotationStore
	Storage           storage.Storage
	Tracker           *player.Tracker
	Metrics           *metrics.Metrics
	Palette           analytics.Palette
	DefaultConfidence float64
	ChartWidth        int
	ChartHeight       int
	MaxUploadSize     int64
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type createAnnotationRequest struct {
	ID      string            `json:"annotationID"`
	VideoID string            `json:"videoID"`
	Title   string            `json:"title"`
	FPS     float64           `json:"fps"`
	Frames  models.FrameGroup `json:"frames"`
}

func (app *App) CreateAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	if app.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	}

	var req createAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Annotation too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("Invalid annotation: %v", err), http.StatusBadRequest)
		return
	}
	if req.FPS < 0 || math.IsNaN(req.FPS) || math.IsInf(req.FPS, 0) {
		http.Error(w, "Invalid annotation: fps must be a non-negative number", http.StatusBadRequest)
		return
	}

	a := models.NewAnnotation(req.VideoID, req.Title, req.FPS, req.Frames)
	if req.ID != "" {
		a.ID = req.ID
	}

	if err := app.Annotations.Create(r.Context(), a); err != nil {
		app.writeError(w, err)
		return
	}

	log.Printf("Stored annotation %s with %d frames", a.ID, len(a.Frames))
	writeJSON(w, http.StatusCreated, map[string]string{"annotationID": a.ID})
}

func (app *App) ListAnnotationsHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := app.Annotations.List(r.Context())
	if err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (app *App) GetAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	a, err := app.Annotations.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (app *App) DeleteAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := app.Annotations.Delete(r.Context(), id); err != nil {
		app.writeError(w, err)
		return
	}
	app.Tracker.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

// confidence reads the confidence query parameter, falling back to the
// configured default when it is absent. Any finite value is accepted.
func (app *App) confidence(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("confidence")
	if raw == "" {
		return app.DefaultConfidence, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid confidence %q", raw)
	}
	return v, nil
}

func (app *App) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, "Annotation not found", http.StatusNotFound)
	case errors.Is(err, database.ErrAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrInvalidFrameGroup):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Request failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
