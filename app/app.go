package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soocke/frame-grabber-go/config"
	"github.com/soocke/frame-grabber-go/debug"
	"github.com/soocke/frame-grabber-go/domain/capture"
)

const runtimeLogInterval = 5 * time.Second

// App runs the capture worker, the consumer, the config watcher and the
// status reporter until its context is cancelled.
type App struct {
	*Container
	configPath string
}

// NewApp builds an App. configPath is polled for capture_source changes
// when the config enables reloading.
func NewApp(cfg *config.Config, configPath string, logger *slog.Logger, src capture.FrameSource) *App {
	return &App{Container: BuildContainer(cfg, logger, src), configPath: configPath}
}

// Run blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.Logger != nil {
		a.Logger.Info("capture starting",
			"source", a.Live.CaptureSource(),
			"scale_percent", a.Config.ScalePercent,
			"fps", a.Config.FPS,
		)
	}
	if a.Config.Debug && a.Logger != nil {
		debug.StartRuntimeLogger(ctx, runtimeLogInterval, a.Logger)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Worker.Run(ctx) })
	g.Go(func() error { return a.Consumer.Run(ctx) })
	g.Go(func() error {
		a.reportStatus(ctx)
		return nil
	})
	if a.Config.ReloadIntervalMS > 0 && a.configPath != "" {
		g.Go(func() error {
			config.Watch(ctx, a.configPath, time.Duration(a.Config.ReloadIntervalMS)*time.Millisecond, a.Live, a.Logger)
			return nil
		})
	}
	err := g.Wait()
	a.Frames.Close()
	if a.Logger != nil {
		st := a.Worker.Stats()
		a.Logger.Info("capture stopped",
			"frames", st.Sequence,
			"hooks", st.Hooks,
			"failures", st.Failures,
			"backpressure", st.Backpressure,
		)
	}
	return err
}

func (a *App) reportStatus(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-a.Worker.Statuses():
			if a.Logger != nil {
				a.Logger.Info("capture status", "state", s.String(), "source", a.Live.CaptureSource())
			}
		}
	}
}
