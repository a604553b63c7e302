package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kdimtricp/framechart/internal/analytics"
	"github.com/kdimtricp/framechart/internal/database"
	"github.com/kdimtricp/framechart/internal/metrics"
	"github.com/kdimtricp/framechart/internal/player"
	"github.com/kdimtricp/framechart/internal/storage"
)

const examplePayload = `{
	"annotationID": "video-1-annotation",
	"videoID": "video-1",
	"title": "Backyard",
	"fps": 25,
	"frames": {
		"0": [
			{"tag": {"id": 1, "name": "cat"}, "confidence": 0.9, "bound": [[0,0],[10,10]], "boundType": "rectangle"},
			{"tag": {"id": 2, "name": "dog"}, "confidence": 0.4}
		],
		"1": [
			{"tag": {"id": 1, "name": "cat"}, "confidence": 0.5}
		]
	}
}`

func setupTestApp(t *testing.T) (*App, http.Handler) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.NewDB(database.Config{SQLitePath: filepath.Join(dir, "api_test.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	exports, err := storage.NewLocalStorage(filepath.Join(dir, "exports"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	app := &App{
		Annotations:       database.NewAnnotationRepo(db),
		Storage:           exports,
		Tracker:           player.NewTracker(),
		Metrics:           metrics.New(),
		Palette:           analytics.DefaultPalette(),
		DefaultConfidence: 0.5,
		ChartWidth:        400,
		ChartHeight:       200,
		MaxUploadSize:     1 << 20,
	}
	return app, NewRouter(app)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createExample(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/annotations", examplePayload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Failed to create annotation: %d %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode create response: %v", err)
	}
	return resp["annotationID"]
}

func TestPingHandler(t *testing.T) {
	_, h := setupTestApp(t)

	rec := do(t, h, http.MethodGet, "/ping", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Errorf("Expected 200 pong, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAnnotationLifecycle(t *testing.T) {
	_, h := setupTestApp(t)

	id := createExample(t, h)
	if id != "video-1-annotation" {
		t.Errorf("Expected client supplied id, got %s", id)
	}

	rec := do(t, h, http.MethodGet, "/annotations/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got struct {
		FPS    float64                     `json:"fps"`
		Frames map[string][]json.RawMessage `json:"frames"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode annotation: %v", err)
	}
	if got.FPS != 25 || len(got.Frames["0"]) != 2 || len(got.Frames["1"]) != 1 {
		t.Errorf("Unexpected annotation: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/annotations", "")
	var list []database.AnnotationSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(list) != 1 || list[0].FrameCount != 2 || list[0].DetectionCount != 3 {
		t.Errorf("Unexpected list: %+v", list)
	}

	if rec := do(t, h, http.MethodDelete, "/annotations/"+id, ""); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/annotations/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/annotations/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rec.Code)
	}
}

func TestCreateAnnotationErrors(t *testing.T) {
	_, h := setupTestApp(t)
	createExample(t, h)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed json", `{"frames":`, http.StatusBadRequest},
		{"non-numeric frame", `{"fps": 25, "frames": {"first": []}}`, http.StatusBadRequest},
		{"duplicate frame", `{"fps": 25, "frames": {"1": [], "01": []}}`, http.StatusBadRequest},
		{"reserved tag name", `{"fps": 25, "frames": {"0": [{"tag": {"id": 1, "name": "frame"}, "confidence": 1}]}}`, http.StatusBadRequest},
		{"negative fps", `{"fps": -1, "frames": {}}`, http.StatusBadRequest},
		{"duplicate id", examplePayload, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/annotations", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestChartHandler(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	tests := []struct {
		name        string
		query       string
		wantSeries  []string
		wantRecords string
	}{
		{"default confidence", "", []string{"cat"}, `[{"frame":0,"cat":1},{"frame":1,"cat":1}]`},
		{"low confidence", "?confidence=0.4", []string{"cat", "dog"}, `[{"frame":0,"cat":1,"dog":1},{"frame":1,"cat":1,"dog":0}]`},
		{"no survivors", "?confidence=0.95", []string{}, `[{"frame":0},{"frame":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/annotations/"+id+"/chart"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			var resp struct {
				Series []struct {
					Name  string `json:"name"`
					Color string `json:"color"`
				} `json:"series"`
				Records json.RawMessage `json:"records"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode chart: %v", err)
			}

			names := make([]string, len(resp.Series))
			for i, s := range resp.Series {
				names[i] = s.Name
				if s.Color != analytics.DefaultPalette().Color(i) {
					t.Errorf("Series %s has color %s, want %s", s.Name, s.Color, analytics.DefaultPalette().Color(i))
				}
			}
			if strings.Join(names, ",") != strings.Join(tt.wantSeries, ",") {
				t.Errorf("Expected series %v, got %v", tt.wantSeries, names)
			}

			var compact bytes.Buffer
			if err := json.Compact(&compact, resp.Records); err != nil {
				t.Fatalf("Failed to compact records: %v", err)
			}
			if compact.String() != tt.wantRecords {
				t.Errorf("Expected records %s, got %s", tt.wantRecords, compact.String())
			}
		})
	}
}

func TestChartHandlerErrors(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"unknown annotation", "/annotations/missing/chart", http.StatusNotFound},
		{"bad confidence", "/annotations/" + id + "/chart?confidence=high", http.StatusBadRequest},
		{"NaN confidence", "/annotations/" + id + "/chart?confidence=NaN", http.StatusBadRequest},
		{"infinite confidence", "/annotations/" + id + "/chart?confidence=Inf", http.StatusBadRequest},
		{"negative infinite confidence", "/annotations/" + id + "/chart?confidence=-Inf", http.StatusBadRequest},
		{"infinite confidence image", "/annotations/" + id + "/chart.png?confidence=%2BInf", http.StatusBadRequest},
		{"bad tooltip frame", "/annotations/" + id + "/chart/tooltip?frame=x", http.StatusBadRequest},
		{"unknown image", "/annotations/missing/chart.png", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodGet, tt.path, ""); rec.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestChartImageHandler(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	rec := do(t, h, http.MethodGet, "/annotations/"+id+"/chart.png?confidence=0.4", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("Failed to decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Errorf("Expected 400x200 image, got %dx%d", b.Dx(), b.Dy())
	}

	rec = do(t, h, http.MethodGet, "/annotations/"+id+"/chart.svg", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Expected image/svg+xml, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("Expected svg document")
	}
}

func TestChartImageWithoutSeries(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	empty := do(t, h, http.MethodPost, "/annotations", `{"annotationID": "no-frames", "fps": 25, "frames": {}}`)
	if empty.Code != http.StatusCreated {
		t.Fatalf("Failed to create empty annotation: %d", empty.Code)
	}

	for _, path := range []string{
		"/annotations/" + id + "/chart.png?confidence=0.95",
		"/annotations/no-frames/chart.png",
	} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
		if _, err := png.Decode(rec.Body); err != nil {
			t.Errorf("%s: failed to decode png: %v", path, err)
		}
	}

	rec := do(t, h, http.MethodGet, "/annotations/"+id+"/chart.svg?confidence=0.95", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<svg") {
		t.Errorf("Expected svg document, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/annotations/"+id+"/chart/export?format=png&confidence=0.95", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode export response: %v", err)
	}
	rec = do(t, h, http.MethodGet, resp["url"], "")
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("Exported file is not a png: %v", err)
	}
}

func TestExportChart(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	if rec := do(t, h, http.MethodPost, "/annotations/"+id+"/chart/export?format=gif", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unsupported format, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/annotations/"+id+"/chart/export?format=svg", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode export response: %v", err)
	}
	if filepath.Ext(resp["name"]) != ".svg" {
		t.Errorf("Expected .svg export, got %s", resp["name"])
	}

	rec = do(t, h, http.MethodGet, resp["url"], "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for export, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("Expected stored svg document")
	}

	if rec := do(t, h, http.MethodGet, "/exports/missing.png", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing export, got %d", rec.Code)
	}
}

func TestTooltipHandler(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "both series",
			path: "/chart/tooltip?frame=0&confidence=0.4",
			want: `<ul class="chart-tooltip"><li style="color: #2965CC">cat: 1</li><li style="color: #29A634">dog: 1</li></ul>`,
		},
		{
			name: "zero counts are listed",
			path: "/chart/tooltip?frame=1&confidence=0.4",
			want: `<ul class="chart-tooltip"><li style="color: #2965CC">cat: 1</li><li style="color: #29A634">dog: 0</li></ul>`,
		},
		{name: "frame outside chart", path: "/chart/tooltip?frame=7", want: ""},
		{name: "no series", path: "/chart/tooltip?frame=0&confidence=0.95", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/annotations/"+id+tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", rec.Code)
			}
			if rec.Body.String() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, rec.Body.String())
			}
		})
	}
}

func TestClickHandler(t *testing.T) {
	app, h := setupTestApp(t)
	id := createExample(t, h)

	tests := []struct {
		name       string
		body       string
		wantSeeked bool
		wantFrame  int
	}{
		{"active label", `{"activeLabel": "1"}`, true, 1},
		{"missing label", `{}`, false, 1},
		{"null label", `{"activeLabel": null}`, false, 1},
		{"unparsable label", `{"activeLabel": "first"}`, false, 1},
		{"pixel position near the left edge", `{"x": 20, "width": 400}`, true, 0},
		{"pixel position outside image", `{"x": 900, "width": 400}`, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/annotations/"+id+"/chart/click", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp struct {
				Seeked bool `json:"seeked"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode click response: %v", err)
			}
			if resp.Seeked != tt.wantSeeked {
				t.Errorf("Expected seeked=%v, got %v", tt.wantSeeked, resp.Seeked)
			}
			pos, ok := app.Tracker.Position(id)
			if !ok || pos.Frame != tt.wantFrame {
				t.Errorf("Expected position at frame %d, got %+v", tt.wantFrame, pos)
			}
		})
	}

	if rec := do(t, h, http.MethodPost, "/annotations/missing/chart/click", `{"activeLabel": "1"}`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown annotation, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/annotations/"+id+"/chart/click", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed click, got %d", rec.Code)
	}
}

func TestPositionHandler(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	rec := do(t, h, http.MethodGet, "/annotations/"+id+"/position", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var pos player.Position
	if err := json.Unmarshal(rec.Body.Bytes(), &pos); err != nil {
		t.Fatalf("Failed to decode position: %v", err)
	}
	if pos.Frame != 0 || pos.Seconds != 0 {
		t.Errorf("Expected start position, got %+v", pos)
	}

	do(t, h, http.MethodPost, "/annotations/"+id+"/chart/click", `{"activeLabel": "50"}`)

	rec = do(t, h, http.MethodGet, "/annotations/"+id+"/position", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &pos); err != nil {
		t.Fatalf("Failed to decode position: %v", err)
	}
	if pos.Frame != 50 || pos.Seconds != 2 {
		t.Errorf("Expected frame 50 at 2s, got %+v", pos)
	}

	if rec := do(t, h, http.MethodGet, "/annotations/missing/position", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestPositionStreamHandler(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/annotations/"+id+"/position/stream", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected text/event-stream, got %s", ct)
	}

	click, err := http.Post(srv.URL+"/annotations/"+id+"/chart/click", "application/json",
		strings.NewReader(`{"activeLabel": "25"}`))
	if err != nil {
		t.Fatalf("Failed to click: %v", err)
	}
	click.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if event != "position" {
		t.Fatalf("Expected position event, got %q (%v)", event, scanner.Err())
	}

	var pos player.Position
	if err := json.Unmarshal([]byte(data), &pos); err != nil {
		t.Fatalf("Failed to decode event data: %v", err)
	}
	if pos.Frame != 25 || pos.Seconds != 1 {
		t.Errorf("Expected frame 25 at 1s, got %+v", pos)
	}
}

func TestPositionStreamEndsOnDelete(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/annotations/"+id+"/position/stream", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	del, err := http.NewRequest(http.MethodDelete, srv.URL+"/annotations/"+id, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(del)
	if err != nil {
		t.Fatalf("Failed to delete annotation: %v", err)
	}
	delResp.Body.Close()

	if _, err := io.ReadAll(resp.Body); err != nil {
		t.Errorf("Expected stream to end cleanly after delete, got %v", err)
	}
	if ctx.Err() != nil {
		t.Error("Stream stayed open after the annotation was deleted")
	}

	if rec := do(t, h, http.MethodGet, "/annotations/"+id+"/position/stream", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for stream of deleted annotation, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := setupTestApp(t)
	id := createExample(t, h)

	do(t, h, http.MethodGet, "/annotations/"+id+"/chart", "")
	do(t, h, http.MethodPost, "/annotations/"+id+"/chart/click", `{}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	for _, want := range []string{
		"framechart_charts_built_total 2",
		"framechart_ignored_clicks_total 1",
	} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}
}
