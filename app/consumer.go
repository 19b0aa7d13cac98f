package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soocke/frame-grabber-go/domain/capture"
	"github.com/soocke/frame-grabber-go/images"
)

// ConsumerConfig controls the request cadence and optional frame dumps.
type ConsumerConfig struct {
	Interval time.Duration // minimum time between requests
	// RequestTimeout bounds the wait for one frame before the request is
	// set again. A consumer that sets its next request while the worker is
	// still publishing can have it cleared; re-requesting recovers.
	RequestTimeout time.Duration
	OutputDir      string // frames are saved here when SaveEvery > 0
	SaveEvery      int
}

const defaultRequestTimeout = 500 * time.Millisecond

// Consumer stands in for the downstream frame user: it requests one frame
// at a time, waits for it and hands it to OnFrame.
type Consumer struct {
	cfg    ConsumerConfig
	req    *capture.RequestSignal
	frames *capture.FrameQueue
	logger *slog.Logger

	// OnFrame, when set, is called with every received frame.
	OnFrame func(capture.Frame)

	received atomic.Uint64
	saved    atomic.Uint64
	lastSeq  atomic.Uint64
}

func NewConsumer(cfg ConsumerConfig, req *capture.RequestSignal, frames *capture.FrameQueue, logger *slog.Logger) *Consumer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Consumer{cfg: cfg, req: req, frames: frames, logger: logger}
}

func (c *Consumer) Received() uint64 { return c.received.Load() }
func (c *Consumer) Saved() uint64    { return c.saved.Load() }
func (c *Consumer) LastSequence() uint64 {
	return c.lastSeq.Load()
}

// Run requests and drains frames until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		start := time.Now()
		f, err := c.request(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, capture.ErrQueueClosed) {
				return nil
			}
			return err
		}
		c.handle(f)

		if wait := c.cfg.Interval - time.Since(start); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
	}
}

// request sets the RequestSignal and waits for the next frame, setting it
// again every RequestTimeout until a frame arrives or ctx is done.
func (c *Consumer) request(ctx context.Context) (capture.Frame, error) {
	for {
		c.req.Set()
		popCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		f, err := c.frames.Pop(popCtx)
		cancel()
		if err == nil {
			return f, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			continue
		}
		return capture.Frame{}, err
	}
}

func (c *Consumer) handle(f capture.Frame) {
	n := c.received.Add(1)
	if prev := c.lastSeq.Swap(f.Sequence); f.Sequence <= prev && c.logger != nil {
		c.logger.Warn("frame out of order", "sequence", f.Sequence, "previous", prev)
	}
	if c.logger != nil {
		b := f.Image.Bounds()
		c.logger.Debug("frame received", "sequence", f.Sequence, "width", b.Dx(), "height", b.Dy(), "fps", f.FPS)
	}
	if c.cfg.SaveEvery > 0 && c.cfg.OutputDir != "" && n%uint64(c.cfg.SaveEvery) == 0 {
		if path, err := images.SavePNG(c.cfg.OutputDir, f.Sequence, f.Image); err != nil {
			if c.logger != nil {
				c.logger.Error("save frame", "sequence", f.Sequence, "error", err)
			}
		} else {
			c.saved.Add(1)
			if c.logger != nil {
				c.logger.Info("frame saved", "sequence", f.Sequence, "path", path)
			}
		}
	}
	if c.OnFrame != nil {
		c.OnFrame(f)
	}
}
