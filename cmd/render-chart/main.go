package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kdimtricp/framechart/internal/analytics"
	"github.com/kdimtricp/framechart/internal/config"
	"github.com/kdimtricp/framechart/internal/database"
	"github.com/kdimtricp/framechart/internal/models"
	"github.com/kdimtricp/framechart/internal/render"
)

func main() {
	var (
		id          = flag.String("id", "", "Annotation ID to load from the database")
		input       = flag.String("input", "", "Annotation JSON file to render instead of a stored one")
		confidence  = flag.Float64("confidence", -1, "Confidence threshold (defaults to DEFAULT_CONFIDENCE)")
		format      = flag.String("format", "png", "Output format (png or svg)")
		out         = flag.String("out", "", "Output file (defaults to chart.<format>)")
		paletteFile = flag.String("palette", "", "Palette YAML file (defaults to PALETTE_FILE)")
	)
	flag.Parse()

	if (*id == "") == (*input == "") {
		log.Fatal("Please provide exactly one of -id or -input")
	}

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	f, err := render.ParseFormat(*format)
	if err != nil {
		log.Fatal(err)
	}

	palette := cfg.Palette
	if *paletteFile != "" {
		if palette, err = config.LoadPalette(*paletteFile); err != nil {
			log.Fatal("Failed to load palette:", err)
		}
	}

	threshold := cfg.DefaultConfidence
	if *confidence >= 0 {
		threshold = *confidence
	}

	var annotation *models.Annotation
	if *input != "" {
		annotation, err = readAnnotation(*input)
	} else {
		annotation, err = loadAnnotation(cfg.DBPath, *id)
	}
	if err != nil {
		log.Fatal(err)
	}

	c, err := analytics.Build(annotation.Frames, threshold)
	if err != nil {
		log.Fatal("Failed to build chart:", err)
	}

	path := *out
	if path == "" {
		path = "chart" + f.Ext()
	}
	file, err := os.Create(path)
	if err != nil {
		log.Fatal("Failed to create output file:", err)
	}
	defer file.Close()

	err = render.Render(file, c, palette, render.Options{
		Width:  cfg.ChartWidth,
		Height: cfg.ChartHeight,
		Title:  annotation.Title,
		Format: f,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Rendered %d frames at confidence %.2f to %s\n", len(c.Records), threshold, path)
	for _, s := range c.Series {
		total := 0
		for _, r := range c.Records {
			total += r.Counts[s.Name]
		}
		fmt.Printf("  %-20s %s  %d detections\n", s.Name, palette.Color(s.ColorIndex), total)
	}
}

func readAnnotation(path string) (*models.Annotation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation file: %w", err)
	}
	var a models.Annotation
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse annotation file %s: %w", path, err)
	}
	return &a, nil
}

func loadAnnotation(dbPath, id string) (*models.Annotation, error) {
	db, err := database.NewDB(database.Config{SQLitePath: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return database.NewAnnotationRepo(db).GetByID(context.Background(), id)
}
