package main

import (
	"log"
	"net/http"

	"github.com/kdimtricp/framechart/internal/api"
	"github.com/kdimtricp/framechart/internal/config"
	"github.com/kdimtricp/framechart/internal/database"
	"github.com/kdimtricp/framechart/internal/metrics"
	"github.com/kdimtricp/framechart/internal/player"
	"github.com/kdimtricp/framechart/internal/storage"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	exports, err := storage.NewLocalStorage(cfg.ExportDir)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	db, err := database.NewDB(database.Config{SQLitePath: cfg.DBPath})
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	log.Printf("Running database migrations")
	if err := db.RunMigrations(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	app := &api.App{
		Annotations:       database.NewAnnotationRepo(db),
		Storage:           exports,
		Tracker:           player.NewTracker(),
		Metrics:           metrics.New(),
		Palette:           cfg.Palette,
		DefaultConfidence: cfg.DefaultConfidence,
		ChartWidth:        cfg.ChartWidth,
		ChartHeight:       cfg.ChartHeight,
		MaxUploadSize:     cfg.MaxUploadSize,
	}

	router := api.NewRouter(app)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Database path: %s", cfg.DBPath)
	log.Printf("Export directory: %s", cfg.ExportDir)
	log.Printf("Default confidence: %.2f", cfg.DefaultConfidence)
	if cfg.PaletteFile != "" {
		log.Printf("Palette: %d colors from %s", cfg.Palette.Len(), cfg.PaletteFile)
	}

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
