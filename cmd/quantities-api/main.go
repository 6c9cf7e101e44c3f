package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"quantity-pipeline/internal/api"
	"quantity-pipeline/internal/api/handler"
	"quantity-pipeline/internal/config"
	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/pipeline"
	"quantity-pipeline/internal/store"
	"quantity-pipeline/pkg/router"
	"quantity-pipeline/pkg/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout, true)
	slog.SetDefault(logger)

	// Init DB
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	outputs := utils.NewOutputManager(cfg.OutputDir)
	if err := outputs.EnsureOutputDirExists(); err != nil {
		slog.Error("create output directory", "path", cfg.OutputDir, "error", err)
		os.Exit(1)
	}

	runner := &pipeline.Runner{
		Store:   db,
		Outputs: outputs,
		Defaults: model.RunOptions{
			ConvertMMToM:     cfg.ConvertMMToM,
			MillimeterFields: cfg.MillimeterFields,
			Workers:          cfg.Workers,
		},
		Locale:  cfg.NumberLocale(),
		Timeout: cfg.Timeout(),
	}
	h, err := handler.New(db, runner, outputs, cfg.NumberLocale(), cfg.CacheSize)
	if err != nil {
		slog.Error("create handler", "error", err)
		os.Exit(1)
	}
	runner.OnDone = h.Invalidate

	// Create router and register API routes
	r := router.New().WithLogger(logger)
	api.RegisterRoutes(r, h)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := r.Start(ctx, cfg.Addr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
