package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Storage. When DatabaseURL is set the Postgres store is used,
	// otherwise sessions live in a SQLite file under DataDir.
	DatabaseURL string `env:"DATABASE_URL"`
	DataDir     string `env:"DATA_DIR" envDefault:"."`

	// Analysis
	GeminiKey     string `env:"GEMINI_API_KEY"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-preview-09-2025"`

	// Capture
	Display       string `env:"CAPTURE_DISPLAY" envDefault:":0.0"`
	CaptureWidth  int    `env:"CAPTURE_WIDTH" envDefault:"1920"`
	CaptureHeight int    `env:"CAPTURE_HEIGHT" envDefault:"1080"`
	FFmpegPath    string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	Framerate     int    `env:"CAPTURE_FRAMERATE" envDefault:"30"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SQLitePath returns the location of the local session database.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "screenassist.sqlite")
}
