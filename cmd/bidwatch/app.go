package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/morelatto/bidwatch/internal/bid"
	"github.com/morelatto/bidwatch/internal/challenge"
	"github.com/morelatto/bidwatch/internal/config"
	"github.com/morelatto/bidwatch/internal/dedupe"
	"github.com/morelatto/bidwatch/internal/monitor"
	"github.com/morelatto/bidwatch/internal/ocr"
	"github.com/morelatto/bidwatch/internal/pipeline"
	"github.com/morelatto/bidwatch/internal/publish"
	"github.com/morelatto/bidwatch/internal/render"
	"github.com/morelatto/bidwatch/internal/storage"
)

// app holds the wired components shared by watch, once, and the menu.
type app struct {
	cfg       config.Config
	history   *dedupe.Store
	journal   *storage.Store
	solver    *ocr.Tesseract
	renderer  *render.Renderer
	scheduler *monitor.Scheduler
	publish   bool
}

func historyPath(dataDir string) string {
	return filepath.Join(dataDir, "history.json")
}

// buildApp loads config and wires the full pipeline. Publishing is enabled
// only when the config says so and credentials resolve; watch mode treats
// missing credentials as fatal, the menu degrades to dry runs.
func buildApp(requireCreds bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	client, err := bid.New(cfg.Source.BaseURL, cfg.Source.Region, cfg.Source.ClubCode)
	if err != nil {
		return nil, fmt.Errorf("building registry client: %w", err)
	}

	solver := ocr.New()
	loop := challenge.New(client, solver, cfg.Schedule.RetryBudget, cfg.Schedule.RetryPacingDuration())

	history := dedupe.Open(historyPath(cfg.Storage.DataDir))

	journal, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	renderer := render.New(cfg.Source.Region, client.PhotoURL, client.CrestURL, client.HistoryURL)

	var publisher pipeline.Publisher
	publishing := false
	if cfg.Publish.Enabled {
		creds, err := config.PublisherCredentials(config.NewSecretStore())
		if err != nil {
			if requireCreds {
				journal.Close()
				return nil, err
			}
			printWarning("publishing disabled: %v", err)
		} else {
			publisher = publish.New(creds)
			publishing = true
		}
	}

	processor := pipeline.New(history, client, renderer, publisher, cfg.Storage.DataDir)

	scheduler := monitor.New(monitor.Deps{
		Searcher:  loop,
		Processor: processor,
		History:   history,
		Journal:   journal,
		Interval:  cfg.Schedule.IntervalDuration(),
		Pacing:    cfg.Schedule.RecordPacingDuration(),
	})

	return &app{
		cfg:       cfg,
		history:   history,
		journal:   journal,
		solver:    solver,
		renderer:  renderer,
		scheduler: scheduler,
		publish:   publishing,
	}, nil
}

func (a *app) close() {
	if err := a.journal.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing journal: %v\n", err)
	}
}

// preflight verifies the external tools the pipeline depends on, so watch
// mode fails at startup instead of on the first record.
func (a *app) preflight() error {
	if err := a.solver.Available(); err != nil {
		return err
	}
	if err := a.renderer.Available(); err != nil {
		return err
	}
	return nil
}

func setupLogging(cfg config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
