package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeSource opens fakeHandles and fails captures on demand.
type fakeSource struct {
	mu           sync.Mutex
	opens        []string
	openErr      error
	failCaptures int // number of upcoming captures to fail
	panicNext    bool
	captureCalls int
	handles      []*fakeHandle
}

type fakeHandle struct {
	src    *fakeSource
	desc   string
	closed bool
}

func (s *fakeSource) Open(desc string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens = append(s.opens, desc)
	if s.openErr != nil {
		return nil, s.openErr
	}
	h := &fakeHandle{src: s, desc: desc}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSource) setOpenErr(err error) {
	s.mu.Lock()
	s.openErr = err
	s.mu.Unlock()
}

func (s *fakeSource) failNext(n int) {
	s.mu.Lock()
	s.failCaptures = n
	s.mu.Unlock()
}

func (s *fakeSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opens)
}

func (h *fakeHandle) Capture() (image.Image, error) {
	h.src.mu.Lock()
	h.src.captureCalls++
	if h.src.panicNext {
		h.src.panicNext = false
		h.src.mu.Unlock()
		panic("device context lost")
	}
	if h.src.failCaptures > 0 {
		h.src.failCaptures--
		h.src.mu.Unlock()
		return nil, errors.New("window gone")
	}
	h.src.mu.Unlock()
	return image.NewRGBA(image.Rect(0, 0, 40, 20)), nil
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

// liveSource is a SourceProvider that can be changed between steps.
type liveSource struct{ v atomic.Value }

func newLiveSource(s string) *liveSource {
	l := &liveSource{}
	l.v.Store(s)
	return l
}

func (l *liveSource) CaptureSource() string { return l.v.Load().(string) }
func (l *liveSource) set(s string)          { l.v.Store(s) }

func newTestWorker(src FrameSource, sources SourceProvider, cfg WorkerConfig) (*Worker, *RequestSignal, *FrameQueue) {
	req := NewRequestSignal()
	out := NewFrameQueue()
	cfg.RequestWait = time.Millisecond
	return NewWorker(cfg, src, sources, req, out, discardLogger), req, out
}

func expectStep(t *testing.T, w *Worker, want stepResult) {
	t.Helper()
	if got := w.step(context.Background()); got != want {
		t.Fatalf("expected step result %d, got %d", want, got)
	}
}

func TestWorker_EmptySourceNeverCaptures(t *testing.T) {
	src := &fakeSource{}
	w, req, out := newTestWorker(src, StaticSource(""), WorkerConfig{})
	req.Set()
	for i := 0; i < 3; i++ {
		expectStep(t, w, stepIdle)
	}
	if src.openCount() != 0 {
		t.Fatalf("expected no open attempts, got %d", src.openCount())
	}
	if out.Len() != 0 {
		t.Fatalf("expected no frames, got %d", out.Len())
	}
	if w.State() != StateConnecting {
		t.Fatalf("state changed on empty source: %v", w.State())
	}
	select {
	case s := <-w.Statuses():
		t.Fatalf("unexpected status %v", s)
	default:
	}
}

func TestWorker_AcquireFailPublishScenario(t *testing.T) {
	src := &fakeSource{}
	w, req, out := newTestWorker(src, StaticSource("camA"), WorkerConfig{})

	// iteration 1: hook only
	req.Set()
	expectStep(t, w, stepAcquired)
	if out.Len() != 0 {
		t.Fatalf("acquisition cycle published a frame")
	}
	if w.State() == StateConnected {
		t.Fatalf("acquisition cycle must not mark connected")
	}
	if !req.IsSet() {
		t.Fatalf("acquisition cycle consumed the request")
	}

	// iteration 2: request served
	expectStep(t, w, stepPublished)
	f, ok := out.TryPop()
	if !ok || f.Sequence != 1 {
		t.Fatalf("expected frame seq=1, got ok=%v seq=%d", ok, f.Sequence)
	}
	if w.State() != StateConnected {
		t.Fatalf("expected connected, got %v", w.State())
	}
	if req.IsSet() {
		t.Fatalf("request not cleared after publish")
	}

	// iteration 3: capture fails
	src.failNext(1)
	req.Set()
	expectStep(t, w, stepCaptureFailed)
	if out.Len() != 0 {
		t.Fatalf("failed cycle published a frame")
	}
	if w.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %v", w.State())
	}

	// iteration 4: re-acquire
	expectStep(t, w, stepAcquired)
	if out.Len() != 0 {
		t.Fatalf("re-acquisition published a frame")
	}

	// iteration 5: pending request served, failed cycle consumed no number
	expectStep(t, w, stepPublished)
	f, ok = out.TryPop()
	if !ok || f.Sequence != 2 {
		t.Fatalf("expected frame seq=2, got ok=%v seq=%d", ok, f.Sequence)
	}
	if w.State() != StateConnected {
		t.Fatalf("expected connected after recovery, got %v", w.State())
	}
	if !src.handles[0].closed {
		t.Fatalf("replaced handle was not closed")
	}
	st := w.Stats()
	if st.Hooks != 2 || st.Captures != 2 || st.Failures != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestWorker_CoalescedRequestsPublishOnce(t *testing.T) {
	w, req, out := newTestWorker(&fakeSource{}, StaticSource("camA"), WorkerConfig{})
	expectStep(t, w, stepAcquired)
	for i := 0; i < 5; i++ {
		req.Set()
	}
	expectStep(t, w, stepPublished)
	expectStep(t, w, stepNoRequest)
	if out.Len() != 1 {
		t.Fatalf("expected exactly one frame, got %d", out.Len())
	}
}

func TestWorker_SequenceStrictlyIncreasing(t *testing.T) {
	w, req, out := newTestWorker(&fakeSource{}, StaticSource("camA"), WorkerConfig{})
	expectStep(t, w, stepAcquired)
	for i := 0; i < 10; i++ {
		req.Set()
		expectStep(t, w, stepPublished)
	}
	var last uint64
	for {
		f, ok := out.TryPop()
		if !ok {
			break
		}
		if f.Sequence != last+1 {
			t.Fatalf("sequence jumped from %d to %d", last, f.Sequence)
		}
		last = f.Sequence
	}
	if last != 10 {
		t.Fatalf("expected 10 frames, last seq %d", last)
	}
}

func TestWorker_ReacquiresOnDescriptorChange(t *testing.T) {
	src := &fakeSource{}
	sources := newLiveSource("camA")
	w, req, out := newTestWorker(src, sources, WorkerConfig{})
	expectStep(t, w, stepAcquired)
	req.Set()
	expectStep(t, w, stepPublished)
	_, _ = out.TryPop()

	sources.set("camB")
	req.Set()
	expectStep(t, w, stepAcquired)
	if out.Len() != 0 {
		t.Fatalf("re-acquisition after reconfiguration published a frame")
	}
	if got := src.opens[len(src.opens)-1]; got != "camB" {
		t.Fatalf("expected open of camB, got %q", got)
	}
	if !src.handles[0].closed {
		t.Fatalf("old handle not closed")
	}
	expectStep(t, w, stepPublished)
	if f, _ := out.TryPop(); f.Sequence != 2 {
		t.Fatalf("expected seq=2, got %d", f.Sequence)
	}
}

func TestWorker_OpenFailureRetries(t *testing.T) {
	src := &fakeSource{}
	src.setOpenErr(errors.New("no such window"))
	w, req, out := newTestWorker(src, StaticSource("camA"), WorkerConfig{})
	req.Set()
	expectStep(t, w, stepAcquireFailed)
	expectStep(t, w, stepAcquireFailed)
	if w.State() != StateDisconnected || w.Phase() != PhaseDisconnected {
		t.Fatalf("expected disconnected, got %v/%v", w.State(), w.Phase())
	}
	if out.Len() != 0 {
		t.Fatalf("frame published without a handle")
	}
	src.setOpenErr(nil)
	expectStep(t, w, stepAcquired)
	if w.State() != StateConnecting || w.Phase() != PhaseAcquiring {
		t.Fatalf("expected connecting/acquiring after hook, got %v/%v", w.State(), w.Phase())
	}
	expectStep(t, w, stepPublished)
}

func TestWorker_ValidationCaptureFailureIsAcquireFailure(t *testing.T) {
	src := &fakeSource{}
	src.failNext(1)
	w, _, _ := newTestWorker(src, StaticSource("camA"), WorkerConfig{})
	expectStep(t, w, stepAcquireFailed)
	if !src.handles[0].closed {
		t.Fatalf("handle failing validation was not closed")
	}
	expectStep(t, w, stepAcquired)
}

func TestWorker_CapturePanicIsRecovered(t *testing.T) {
	src := &fakeSource{}
	w, req, out := newTestWorker(src, StaticSource("camA"), WorkerConfig{})
	expectStep(t, w, stepAcquired)
	src.mu.Lock()
	src.panicNext = true
	src.mu.Unlock()
	req.Set()
	expectStep(t, w, stepCaptureFailed)
	if out.Len() != 0 || w.State() != StateDisconnected {
		t.Fatalf("panic not handled as source failure")
	}
}

func TestWorker_BackpressureWarnsOncePerPublish(t *testing.T) {
	var depths []int
	w, req, out := newTestWorker(&fakeSource{}, StaticSource("camA"), WorkerConfig{
		OnBackpressure: func(d int) { depths = append(depths, d) },
	})
	expectStep(t, w, stepAcquired)
	for i := 0; i < 3; i++ {
		out.Push(Frame{})
	}
	req.Set()
	expectStep(t, w, stepPublished)
	if len(depths) != 1 || depths[0] != 3 {
		t.Fatalf("expected one warning at depth 3, got %v", depths)
	}
	if out.Len() != 4 {
		t.Fatalf("publish under backpressure did not enqueue: len=%d", out.Len())
	}
	if w.Stats().Backpressure != 1 {
		t.Fatalf("expected backpressure count 1, got %d", w.Stats().Backpressure)
	}
}

func TestWorker_NoBackpressureAtThreshold(t *testing.T) {
	called := 0
	w, req, out := newTestWorker(&fakeSource{}, StaticSource("camA"), WorkerConfig{
		OnBackpressure: func(int) { called++ },
	})
	expectStep(t, w, stepAcquired)
	out.Push(Frame{})
	out.Push(Frame{})
	req.Set()
	expectStep(t, w, stepPublished)
	if called != 0 || w.Stats().Backpressure != 0 {
		t.Fatalf("unexpected backpressure warning at depth 2")
	}
}

func TestWorker_FrameCarriesScaledImageAndFPS(t *testing.T) {
	w, req, out := newTestWorker(&fakeSource{}, StaticSource("camA"), WorkerConfig{FPS: 60})
	expectStep(t, w, stepAcquired)
	req.Set()
	expectStep(t, w, stepPublished)
	f, _ := out.TryPop()
	if b := f.Image.Bounds(); b.Dx() != 30 || b.Dy() != 15 {
		t.Fatalf("expected 30x15 frame, got %dx%d", b.Dx(), b.Dy())
	}
	if f.FPS != 60 {
		t.Fatalf("expected fps 60, got %v", f.FPS)
	}
	if f.CapturedAt.IsZero() {
		t.Fatalf("missing capture timestamp")
	}
}

func TestWorker_StatusTransitionsEmitted(t *testing.T) {
	src := &fakeSource{}
	w, req, _ := newTestWorker(src, StaticSource("camA"), WorkerConfig{})
	var mu sync.Mutex
	var seen []ConnectionState
	w.AddListener(func(_, next ConnectionState) {
		mu.Lock()
		seen = append(seen, next)
		mu.Unlock()
	})
	expectStep(t, w, stepAcquired)
	req.Set()
	expectStep(t, w, stepPublished)
	src.failNext(1)
	req.Set()
	expectStep(t, w, stepCaptureFailed)

	want := []ConnectionState{StateConnected, StateDisconnected}
	for _, s := range want {
		select {
		case got := <-w.Statuses():
			if got != s {
				t.Fatalf("expected status %v, got %v", s, got)
			}
		default:
			t.Fatalf("missing status %v", s)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != StateConnected || seen[1] != StateDisconnected {
		t.Fatalf("unexpected listener sequence %v", seen)
	}
}

func TestWorker_RunServesRequestsAndStops(t *testing.T) {
	src := &fakeSource{}
	w, req, out := newTestWorker(src, StaticSource("camA"), WorkerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for want := uint64(1); want <= 3; want++ {
		req.Set()
		popCtx, popCancel := context.WithTimeout(context.Background(), time.Second)
		f, err := out.Pop(popCtx)
		popCancel()
		if err != nil {
			t.Fatalf("pop frame %d: %v", want, err)
		}
		if f.Sequence != want {
			t.Fatalf("expected seq %d, got %d", want, f.Sequence)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error on cancellation: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("worker did not stop after cancellation")
	}
	if w.Phase() != PhaseStopped {
		t.Fatalf("expected stopped phase, got %v", w.Phase())
	}
}

func TestWorker_StepAfterCancelStops(t *testing.T) {
	src := &fakeSource{}
	w, _, _ := newTestWorker(src, StaticSource("camA"), WorkerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := w.step(ctx); got != stepStopped {
		t.Fatalf("expected stopped, got %d", got)
	}
	if src.openCount() != 0 {
		t.Fatalf("cancelled step attempted acquisition")
	}
}
