// Package config reads service settings from the environment, an optional
// .env file and an optional palette YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kdimtricp/framechart/internal/analytics"
)

type Config struct {
	Port              string
	DBPath            string
	ExportDir         string
	MaxUploadSize     int64
	DefaultConfidence float64
	ChartWidth        int
	ChartHeight       int
	PaletteFile       string
	Palette           analytics.Palette
}

// Load reads .env files (missing ones are ignored) and then the environment.
// Values already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "./framechart.db"),
		ExportDir:   getEnv("EXPORT_DIR", "./exports"),
		PaletteFile: os.Getenv("PALETTE_FILE"),
	}

	var err error
	if cfg.MaxUploadSize, err = strconv.ParseInt(getEnv("MAX_UPLOAD_SIZE", "10485760"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.DefaultConfidence, err = strconv.ParseFloat(getEnv("DEFAULT_CONFIDENCE", "0.5"), 64); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_CONFIDENCE: %w", err)
	}
	if cfg.ChartWidth, err = strconv.Atoi(getEnv("CHART_WIDTH", "1024")); err != nil {
		return nil, fmt.Errorf("invalid CHART_WIDTH: %w", err)
	}
	if cfg.ChartHeight, err = strconv.Atoi(getEnv("CHART_HEIGHT", "240")); err != nil {
		return nil, fmt.Errorf("invalid CHART_HEIGHT: %w", err)
	}

	cfg.Palette = analytics.DefaultPalette()
	if cfg.PaletteFile != "" {
		if cfg.Palette, err = LoadPalette(cfg.PaletteFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

type paletteFile struct {
	Colors []string `yaml:"colors"`
}

// LoadPalette reads a YAML file of the form
//
//	colors: ["#2965CC", "#29A634"]
func LoadPalette(path string) (analytics.Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return analytics.Palette{}, fmt.Errorf("reading palette file: %w", err)
	}

	var pf paletteFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return analytics.Palette{}, fmt.Errorf("parsing palette file %s: %w", path, err)
	}

	palette, err := analytics.NewPalette(pf.Colors)
	if err != nil {
		return analytics.Palette{}, fmt.Errorf("palette file %s: %w", path, err)
	}
	return palette, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
