package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	screenassist "github.com/dershov/screenassist"
	"github.com/dershov/screenassist/internal/analysis"
	"github.com/dershov/screenassist/internal/capture"
	"github.com/dershov/screenassist/internal/config"
	"github.com/dershov/screenassist/internal/pipeline"
	"github.com/dershov/screenassist/internal/record"
	"github.com/dershov/screenassist/internal/store"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the session store: Postgres when configured, local SQLite
	// otherwise.
	var sessions store.SessionStore
	var settings store.SettingsStore
	if cfg.DatabaseURL != "" {
		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		migrationsFS, err := fs.Sub(screenassist.MigrationsFS, "migrations")
		if err != nil {
			slog.Error("failed to load embedded migrations", "error", err)
			os.Exit(1)
		}
		if err := store.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		pg := store.NewPostgresStore(pool)
		defer pg.Close()
		sessions, settings = pg, pg
	} else {
		st, err := store.OpenSQLite(cfg.SQLitePath())
		if err != nil {
			slog.Error("failed to open session database", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		sessions, settings = st, st
	}

	// Initialize the pipeline
	p := pipeline.New(pipeline.Deps{
		Source:   capture.NewDisplaySource(cfg),
		Sampler:  capture.NewSampler(),
		Recorder: record.NewRecorder(record.NewFFmpegEncoder(cfg)),
		Analyzer: analysis.NewClient(cfg),
		Sessions: sessions,
		Settings: settings,
	})

	// Credential: persisted value wins, environment seeds it once
	if err := p.LoadCredential(ctx); err != nil {
		slog.Error("failed to load credential", "error", err)
		os.Exit(1)
	}
	if p.Credential() == "" && cfg.GeminiKey != "" {
		if err := p.SetCredential(ctx, cfg.GeminiKey); err != nil {
			slog.Error("failed to persist credential", "error", err)
			os.Exit(1)
		}
	}

	if err := p.RefreshLibrary(ctx); err != nil {
		slog.Error("failed to load library", "error", err)
	}
	slog.Info("library loaded", "sessions", len(p.Library()))

	// Start capturing and recording until interrupted
	if err := p.StartSharing(ctx); err != nil {
		slog.Error("failed to start sharing", "error", err)
		os.Exit(1)
	}
	if !p.Sharing() {
		slog.Info("no capture available, exiting")
		return
	}

	if err := p.ToggleRecording(ctx); err != nil {
		slog.Error("failed to start recording", "error", err)
	}

	slog.Info("recording", "display", cfg.Display)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if !p.Sharing() {
				break loop
			}
		}
	}

	// Graceful shutdown: stop recording, persist, drain analysis calls
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.StopSharing(shutdownCtx); err != nil {
		slog.Error("failed to stop sharing", "error", err)
	}
	p.Wait()

	slog.Info("stopped gracefully", "sessions", len(p.Library()))
}
