package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kdimtricp/framechart/internal/analytics"
	"github.com/kdimtricp/framechart/internal/models"
	"github.com/kdimtricp/framechart/internal/render"
	"github.com/kdimtricp/framechart/internal/storage"
)

type seriesResponse struct {
	Name       string `json:"name"`
	Color      string `json:"color"`
	ColorIndex int    `json:"colorIndex"`
}

type chartResponse struct {
	AnnotationID string                   `json:"annotationID"`
	Threshold    float64                  `json:"threshold"`
	Series       []seriesResponse         `json:"series"`
	Records      []analytics.SeriesRecord `json:"records"`
}

// loadChart fetches the annotation named in the URL and aggregates it at the
// requested confidence. It writes the error response itself and reports
// whether the caller should continue.
func (app *App) loadChart(w http.ResponseWriter, r *http.Request) (*models.Annotation, *analytics.Chart, bool) {
	threshold, err := app.confidence(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}

	a, err := app.Annotations.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		app.writeError(w, err)
		return nil, nil, false
	}

	start := time.Now()
	c, err := analytics.Build(a.Frames, threshold)
	series := 0
	if c != nil {
		series = len(c.Series)
	}
	app.Metrics.ObserveBuild(start, series, err)
	if err != nil {
		app.writeError(w, err)
		return nil, nil, false
	}
	return a, c, true
}

func (app *App) ChartHandler(w http.ResponseWriter, r *http.Request) {
	a, c, ok := app.loadChart(w, r)
	if !ok {
		return
	}

	resp := chartResponse{
		AnnotationID: a.ID,
		Threshold:    c.Threshold,
		Series:       make([]seriesResponse, len(c.Series)),
		Records:      c.Records,
	}
	for i, s := range c.Series {
		resp.Series[i] = seriesResponse{
			Name:       s.Name,
			Color:      app.Palette.Color(s.ColorIndex),
			ColorIndex: s.ColorIndex,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (app *App) renderChart(a *models.Annotation, c *analytics.Chart, format render.Format) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	err := render.Render(&buf, c, app.Palette, render.Options{
		Width:  app.ChartWidth,
		Height: app.ChartHeight,
		Title:  a.Title,
		Format: format,
	})
	if err != nil {
		return nil, err
	}
	app.Metrics.ObserveRender(string(format))
	return &buf, nil
}

func (app *App) ChartImageHandler(w http.ResponseWriter, r *http.Request) {
	format := render.PNG
	if strings.HasSuffix(r.URL.Path, render.SVG.Ext()) {
		format = render.SVG
	}

	a, c, ok := app.loadChart(w, r)
	if !ok {
		return
	}

	buf, err := app.renderChart(a, c, format)
	if err != nil {
		app.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	buf.WriteTo(w)
}

func (app *App) ExportChartHandler(w http.ResponseWriter, r *http.Request) {
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a, c, ok := app.loadChart(w, r)
	if !ok {
		return
	}

	buf, err := app.renderChart(a, c, format)
	if err != nil {
		app.writeError(w, err)
		return
	}

	name, err := app.Storage.SaveFile(buf, storage.FileInfo{
		Filename:    "chart" + format.Ext(),
		ContentType: format.ContentType(),
	})
	if err != nil {
		app.writeError(w, err)
		return
	}

	log.Printf("Exported chart of annotation %s as %s", a.ID, name)
	writeJSON(w, http.StatusCreated, map[string]string{
		"name": name,
		"url":  "/exports/" + name,
	})
}

func (app *App) ServeExportHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	file, err := app.Storage.OpenFile(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	// ServeContent picks the content type from the extension
	http.ServeContent(w, r, name, time.Time{}, file)
}

func (app *App) TooltipHandler(w http.ResponseWriter, r *http.Request) {
	frame, err := strconv.Atoi(r.URL.Query().Get("frame"))
	if err != nil || frame < 0 {
		http.Error(w, "frame must be a non-negative integer", http.StatusBadRequest)
		return
	}

	_, c, ok := app.loadChart(w, r)
	if !ok {
		return
	}

	entries, active := c.TooltipAt(frame, app.Palette)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(analytics.FormatTooltip(active, entries)))
}

// clickRequest carries either the active label reported by the chart or the
// pixel position of a click on a rendered image. A pixel click is resolved
// against the chart at the request's confidence query parameter.
type clickRequest struct {
	ActiveLabel *string  `json:"activeLabel"`
	X           *float64 `json:"x"`
	Width       int      `json:"width"`
}

type clickResponse struct {
	Seeked   bool        `json:"seeked"`
	Position interface{} `json:"position,omitempty"`
}

func (app *App) ClickHandler(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid click: %v", err), http.StatusBadRequest)
		return
	}

	// the chart is rebuilt at the same confidence the clicked image was drawn at
	a, c, ok := app.loadChart(w, r)
	if !ok {
		return
	}

	ev := analytics.ClickEvent{ActiveLabel: req.ActiveLabel}
	if ev.ActiveLabel == nil && req.X != nil {
		width := req.Width
		if width <= 0 {
			width = app.ChartWidth
		}
		opts := render.Options{Width: width, Height: app.ChartHeight}
		if label, ok := render.NearestFrame(c, *req.X, opts); ok {
			ev.ActiveLabel = &label
		}
	}

	seeked := analytics.HandleClick(ev, app.Tracker.Seeker(a.ID, a.FPS))
	app.Metrics.ObserveClick(seeked)

	resp := clickResponse{Seeked: seeked}
	if pos, ok := app.Tracker.Position(a.ID); ok {
		resp.Position = pos
	}
	writeJSON(w, http.StatusOK, resp)
}

func (app *App) PositionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := app.Annotations.GetByID(r.Context(), id); err != nil {
		app.writeError(w, err)
		return
	}

	pos, _ := app.Tracker.Position(id)
	pos.AnnotationID = id
	writeJSON(w, http.StatusOK, pos)
}

// PositionStreamHandler pushes every seek of the annotation's player as a
// server-sent "position" event until the client goes away or the annotation
// is deleted.
func (app *App) PositionStreamHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// subscribe before the existence check: a delete that lands after the
	// check forgets the annotation and closes updates
	updates, cancel := app.Tracker.Subscribe(id)
	defer cancel()

	if _, err := app.Annotations.GetByID(r.Context(), id); err != nil {
		app.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if pos, ok := app.Tracker.Position(id); ok {
		writeEvent(w, "position", pos)
	}
	flusher.Flush()

	clientGone := r.Context().Done()

	for {
		select {
		case pos, ok := <-updates:
			if !ok {
				return
			}
			writeEvent(w, "position", pos)
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(data))
}
