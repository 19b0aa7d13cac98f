package app

import (
	"log/slog"
	"time"

	"github.com/soocke/frame-grabber-go/config"
	"github.com/soocke/frame-grabber-go/domain/capture"
	"github.com/soocke/frame-grabber-go/domain/source"
)

// Container assembles the configuration cell, source, worker and consumer.
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Live     *config.Live
	Source   capture.FrameSource
	Requests *capture.RequestSignal
	Frames   *capture.FrameQueue
	Worker   *capture.Worker
	Consumer *Consumer
}

// BuildContainer constructs all components without starting them. A nil
// src selects the built-in source mux.
func BuildContainer(cfg *config.Config, logger *slog.Logger, src capture.FrameSource) *Container {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	_ = cfg.Validate()
	if src == nil {
		src = source.NewMux()
	}
	c := &Container{Config: cfg, Logger: logger, Source: src}
	c.Live = config.NewLive(cfg)
	c.Requests = capture.NewRequestSignal()
	c.Frames = capture.NewFrameQueue()
	c.Worker = capture.NewWorker(WorkerConfig(cfg), c.Source, c.Live, c.Requests, c.Frames, logger)
	c.Consumer = NewConsumer(ConsumerConfig{
		Interval:       time.Duration(cfg.RequestIntervalMS) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
		OutputDir:      cfg.OutputDir,
		SaveEvery:      cfg.SaveEvery,
	}, c.Requests, c.Frames, logger)
	return c
}

// WorkerConfig maps file configuration onto the worker's settings.
func WorkerConfig(cfg *config.Config) capture.WorkerConfig {
	return capture.WorkerConfig{
		ScalePercent:          cfg.ScalePercent,
		FPS:                   cfg.FPS,
		RequestWait:           time.Duration(cfg.RequestWaitMS) * time.Millisecond,
		IdleWait:              time.Duration(cfg.IdleWaitMS) * time.Millisecond,
		RetryDelay:            time.Duration(cfg.RetryDelayMS) * time.Millisecond,
		BackpressureThreshold: cfg.BackpressureThreshold,
	}
}
