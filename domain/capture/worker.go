package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultScalePercent          = 75
	defaultFPS                   = 120
	defaultRequestWait           = 20 * time.Millisecond
	defaultIdleWait              = 20 * time.Millisecond
	defaultRetryDelay            = 100 * time.Millisecond
	defaultBackpressureThreshold = 2
	captureStatsLogInterval      = 5 * time.Second
	statusBuffer                 = 8
)

// WorkerConfig carries the capture dimensions and loop timings. Zero fields
// take defaults.
type WorkerConfig struct {
	ScalePercent          int
	FPS                   float64
	RequestWait           time.Duration
	IdleWait              time.Duration
	RetryDelay            time.Duration
	BackpressureThreshold int
	StatsInterval         time.Duration
	// OnBackpressure is called with the queue depth before a push that
	// exceeds BackpressureThreshold.
	OnBackpressure func(depth int)
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.ScalePercent <= 0 {
		c.ScalePercent = defaultScalePercent
	}
	if c.FPS <= 0 {
		c.FPS = defaultFPS
	}
	if c.RequestWait <= 0 {
		c.RequestWait = defaultRequestWait
	}
	if c.IdleWait <= 0 {
		c.IdleWait = defaultIdleWait
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.BackpressureThreshold <= 0 {
		c.BackpressureThreshold = defaultBackpressureThreshold
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = captureStatsLogInterval
	}
	return c
}

type stepResult int

const (
	stepStopped stepResult = iota
	stepIdle
	stepAcquired
	stepAcquireFailed
	stepNoRequest
	stepPublished
	stepCaptureFailed
)

// Worker hooks a FrameSource and serves one frame per RequestSignal set.
// All loop state is owned by the goroutine running Run; State, Phase and
// Stats may be read from any goroutine.
type Worker struct {
	cfg     WorkerConfig
	src     FrameSource
	sources SourceProvider
	req     *RequestSignal
	out     *FrameQueue
	logger  *slog.Logger

	// loop-owned
	handle   Handle
	handleID string
	current  string
	hooked   bool

	state        atomic.Int32
	phase        atomic.Int32
	hooks        atomic.Uint64
	captures     atomic.Uint64
	failures     atomic.Uint64
	backpressure atomic.Uint64
	sequence     atomic.Uint64
	captureNanos atomic.Uint64
	lastCapture  atomic.Int64

	statuses  chan ConnectionState
	mu        sync.Mutex
	listeners []StateListener
}

// NewWorker constructs a worker. Call Run to start the loop.
func NewWorker(cfg WorkerConfig, src FrameSource, sources SourceProvider, req *RequestSignal, out *FrameQueue, logger *slog.Logger) *Worker {
	w := &Worker{
		cfg:      cfg.withDefaults(),
		src:      src,
		sources:  sources,
		req:      req,
		out:      out,
		logger:   logger,
		statuses: make(chan ConnectionState, statusBuffer),
	}
	w.state.Store(int32(StateConnecting))
	w.phase.Store(int32(PhaseUninitialized))
	return w
}

// AddListener registers l for ConnectionState transitions. Listeners run on
// the worker goroutine and must not block.
func (w *Worker) AddListener(l StateListener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// Statuses emits ConnectionState transitions. When the reader falls behind
// the oldest pending state is dropped so the latest is always delivered.
func (w *Worker) Statuses() <-chan ConnectionState { return w.statuses }

func (w *Worker) State() ConnectionState { return ConnectionState(w.state.Load()) }
func (w *Worker) Phase() Phase           { return Phase(w.phase.Load()) }

func (w *Worker) Stats() WorkerStats {
	captures := w.captures.Load()
	total := w.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	if n := w.lastCapture.Load(); n != 0 {
		last = time.Unix(0, n)
	}
	return WorkerStats{
		Hooks:            w.hooks.Load(),
		Captures:         captures,
		Failures:         w.failures.Load(),
		Backpressure:     w.backpressure.Load(),
		Sequence:         w.sequence.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
		State:            w.State(),
		Phase:            w.Phase(),
	}
}

// Run drives the capture loop until ctx is cancelled. Source failures are
// logged and retried indefinitely; Run only returns on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	logTicker := time.NewTicker(w.cfg.StatsInterval)
	defer logTicker.Stop()
	for {
		switch w.step(ctx) {
		case stepStopped:
			w.release()
			if w.logger != nil {
				w.logger.Info("exiting capture loop", "sequence", w.sequence.Load())
			}
			return nil
		case stepIdle:
			sleepCtx(ctx, w.cfg.IdleWait)
		case stepAcquireFailed:
			sleepCtx(ctx, w.cfg.RetryDelay)
		}

		select {
		case <-logTicker.C:
			w.logStats()
		default:
		}
	}
}

// step runs one loop iteration.
func (w *Worker) step(ctx context.Context) stepResult {
	if ctx.Err() != nil {
		w.phase.Store(int32(PhaseStopped))
		return stepStopped
	}

	desc := ""
	if w.sources != nil {
		desc = w.sources.CaptureSource()
	}
	if desc == "" {
		return stepIdle
	}

	if !w.hooked || w.State() == StateDisconnected || desc != w.current {
		if err := w.acquire(desc); err != nil {
			w.phase.Store(int32(PhaseDisconnected))
			w.setState(StateDisconnected)
			if w.logger != nil {
				w.logger.Warn("capture source not found, retrying", "source", desc, "error", err)
			}
			return stepAcquireFailed
		}
		return stepAcquired
	}

	// Hooked: wait briefly for a request so cancellation and
	// reconfiguration are re-checked every RequestWait.
	if !w.req.Wait(w.cfg.RequestWait) {
		return stepNoRequest
	}

	if err := w.captureAndPublish(); err != nil {
		w.failures.Add(1)
		w.phase.Store(int32(PhaseDisconnected))
		w.setState(StateDisconnected)
		if w.logger != nil {
			w.logger.Warn("capture source problem, assuming disconnected, waiting for reconnect",
				"source", w.current, "handle", w.handleID, "error", err)
		}
		return stepCaptureFailed
	}
	w.phase.Store(int32(PhaseConnected))
	w.setState(StateConnected)
	return stepPublished
}

// acquire (re)opens desc and validates the handle with one discarded capture.
// It does not publish.
func (w *Worker) acquire(desc string) error {
	w.release()
	h, err := w.src.Open(desc)
	if err != nil {
		return wrapUnavailable(err)
	}
	if _, err := safeCapture(h); err != nil {
		closeHandle(h)
		return err
	}
	w.handle = h
	w.handleID = uuid.NewString()
	w.current = desc
	w.hooked = true
	w.hooks.Add(1)
	w.phase.Store(int32(PhaseAcquiring))
	// Hooked but not yet proven by a request-driven capture.
	w.setState(StateConnecting)
	if w.logger != nil {
		w.logger.Info("capture source hooked", "source", desc, "handle", w.handleID)
	}
	return nil
}

func (w *Worker) release() {
	if w.handle != nil {
		closeHandle(w.handle)
	}
	w.handle = nil
	w.hooked = false
}

// captureAndPublish captures, downscales and publishes one frame. Nothing is
// published and no sequence number is consumed on failure.
func (w *Worker) captureAndPublish() error {
	start := time.Now()
	img, err := safeCapture(w.handle)
	if err != nil {
		return err
	}
	shrunk := Downscale(img, w.cfg.ScalePercent)
	now := time.Now()
	w.captureNanos.Add(uint64(now.Sub(start).Nanoseconds()))
	w.captures.Add(1)
	w.lastCapture.Store(now.UnixNano())
	seq := w.sequence.Add(1)
	w.publish(Frame{Image: shrunk, Sequence: seq, FPS: w.cfg.FPS, CapturedAt: now})
	return nil
}

// publish reports backpressure, enqueues f and clears the request. This is
// the only place the RequestSignal is cleared.
func (w *Worker) publish(f Frame) {
	if depth := w.out.Len(); depth > w.cfg.BackpressureThreshold {
		w.backpressure.Add(1)
		if w.logger != nil {
			w.logger.Warn("capture queue backpressure, check consumer for crash or timing issues",
				"depth", depth, "sequence", f.Sequence)
		}
		if w.cfg.OnBackpressure != nil {
			w.cfg.OnBackpressure(depth)
		}
	}
	w.out.Push(f)
	w.req.Clear()
}

func (w *Worker) setState(next ConnectionState) {
	prev := ConnectionState(w.state.Swap(int32(next)))
	if prev == next {
		return
	}
	if w.logger != nil {
		w.logger.Debug("capture state transition", "from", prev.String(), "to", next.String())
	}
	select {
	case w.statuses <- next:
	default:
		select {
		case <-w.statuses:
		default:
		}
		select {
		case w.statuses <- next:
		default:
		}
	}
	w.mu.Lock()
	listeners := append([]StateListener(nil), w.listeners...)
	w.mu.Unlock()
	for _, l := range listeners {
		l(prev, next)
	}
}

func (w *Worker) logStats() {
	if w.logger == nil {
		return
	}
	stats := w.Stats()
	w.logger.Debug("capture.stats",
		"hooks", stats.Hooks,
		"captures", stats.Captures,
		"failures", stats.Failures,
		"backpressure", stats.Backpressure,
		"avg_capture", stats.AvgCapture,
		"state", stats.State.String(),
	)
}

// safeCapture converts handle errors and panics into ErrSourceUnavailable.
func safeCapture(h Handle) (img image.Image, err error) {
	if h == nil {
		return nil, fmt.Errorf("%w: no handle", ErrSourceUnavailable)
	}
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("%w: capture panic: %v\n%s", ErrSourceUnavailable, r, debug.Stack())
		}
	}()
	img, err = h.Capture()
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrSourceUnavailable)
	}
	return img, nil
}

func wrapUnavailable(err error) error {
	if errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}

func closeHandle(h Handle) {
	if c, ok := h.(io.Closer); ok {
		_ = c.Close()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
