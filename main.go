package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/soocke/frame-grabber-go/app"
	"github.com/soocke/frame-grabber-go/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file (JSON or YAML)")
	sourceFlag := flag.String("source", "", "Capture source descriptor, overrides capture_source")
	debugFlag := flag.Bool("debug", false, "Enable debug logging and runtime stats")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	level := slog.LevelInfo
	if *debugFlag || cfg.Debug {
		cfg.Debug = true
		level = slog.LevelDebug
	}
	logger := NewLogger(level)
	if err != nil {
		logger.Warn("config load failed, using defaults", "path", *configPath, "error", err)
	}
	if *sourceFlag != "" {
		cfg.CaptureSource = *sourceFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.NewApp(cfg, *configPath, logger, nil)
	if err := application.Run(ctx); err != nil {
		logger.Error("capture exited", "error", err)
		os.Exit(1)
	}
}
