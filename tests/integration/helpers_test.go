package integration

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kdimtricp/framechart/internal/analytics"
	"github.com/kdimtricp/framechart/internal/api"
	"github.com/kdimtricp/framechart/internal/database"
	"github.com/kdimtricp/framechart/internal/metrics"
	"github.com/kdimtricp/framechart/internal/player"
	"github.com/kdimtricp/framechart/internal/storage"
)

type TestServer struct {
	Server  *httptest.Server
	App     *api.App
	DB      *database.DB
	Repo    *database.AnnotationRepo
	Storage storage.Storage
	TempDir string
}

func setupTestServer(t *testing.T) *TestServer {
	t.Helper()

	tempDir := t.TempDir()

	exports, err := storage.NewLocalStorage(filepath.Join(tempDir, "exports"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	db, err := database.NewDB(database.Config{SQLitePath: filepath.Join(tempDir, "test.db")})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repo := database.NewAnnotationRepo(db)

	app := &api.App{
		Annotations:       repo,
		Storage:           exports,
		Tracker:           player.NewTracker(),
		Metrics:           metrics.New(),
		Palette:           analytics.DefaultPalette(),
		DefaultConfidence: 0.5,
		ChartWidth:        640,
		ChartHeight:       240,
		MaxUploadSize:     10 * 1024 * 1024, // 10MB
	}

	server := httptest.NewServer(api.NewRouter(app))

	return &TestServer{
		Server:  server,
		App:     app,
		DB:      db,
		Repo:    repo,
		Storage: exports,
		TempDir: tempDir,
	}
}

func (ts *TestServer) Cleanup() {
	ts.Server.Close()
	ts.DB.Close()
}

type testDetection struct {
	Tag        string
	Confidence float64
}

// annotationPayload builds the JSON body accepted by POST /annotations.
func annotationPayload(title string, fps float64, frames map[int][]testDetection) string {
	type tag struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	type detection struct {
		Tag        tag     `json:"tag"`
		Confidence float64 `json:"confidence"`
	}

	ids := make(map[string]int)
	body := map[string]interface{}{
		"title":  title,
		"fps":    fps,
		"frames": map[string][]detection{},
	}
	out := body["frames"].(map[string][]detection)
	for frame, dets := range frames {
		key := fmt.Sprint(frame)
		out[key] = []detection{}
		for _, d := range dets {
			if _, ok := ids[d.Tag]; !ok {
				ids[d.Tag] = len(ids) + 1
			}
			out[key] = append(out[key], detection{Tag: tag{ID: ids[d.Tag], Name: d.Tag}, Confidence: d.Confidence})
		}
	}

	data, _ := json.Marshal(body)
	return string(data)
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to post to %s: %v", url, err)
	}
	return resp
}

func uploadTestAnnotation(t *testing.T, server, title string, fps float64, frames map[int][]testDetection) string {
	t.Helper()

	resp := postJSON(t, server+"/annotations", annotationPayload(title, fps, frames))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Failed to upload annotation %q: status %d", title, resp.StatusCode)
	}

	var created struct {
		ID string `json:"annotationID"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	return created.ID
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to get %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Failed to decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func countAnnotationsInDB(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM annotations").Scan(&count)
	return count, err
}
