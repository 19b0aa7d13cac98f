package debug

// Runtime metrics logger. Started only when config.Debug is true.
// Emits goroutine count, heap and stack usage and, where the platform
// exposes it, the process working set, so native capture leaks (GDI
// buffers, X11 images) can be told apart from Go heap growth.

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

var errUnsupported = errors.New("working set not available")

// StartRuntimeLogger launches a ticker that logs runtime stats every interval
// until ctx is done.
func StartRuntimeLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
		var rssErrLogged bool
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			logger.Info("runtime-stats", Snapshot(samples, &rssErrLogged, logger)...)
		}
	}()
}

// Snapshot collects the attributes logged by StartRuntimeLogger. An RSS
// query failure is logged once per logger and then suppressed.
func Snapshot(samples []metrics.Sample, rssErrLogged *bool, logger *slog.Logger) []any {
	metrics.Read(samples)
	goroutines := uint64(0)
	if len(samples) > 0 && samples[0].Value.Kind() == metrics.KindUint64 {
		goroutines = samples[0].Value.Uint64()
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	attrs := []any{
		slog.Uint64("goroutines", goroutines),
		slog.Uint64("heap_alloc", ms.HeapAlloc),
		slog.Uint64("heap_inuse", ms.HeapInuse),
		slog.Uint64("stack_inuse", ms.StackInuse),
		slog.Uint64("num_gc", uint64(ms.NumGC)),
	}
	rss, err := workingSet()
	switch {
	case err == nil:
		attrs = append(attrs, slog.Uint64("rss", rss))
	case !errors.Is(err, errUnsupported) && rssErrLogged != nil && !*rssErrLogged && logger != nil:
		logger.Warn("memlog: working set query failed", slog.String("err", err.Error()))
		*rssErrLogged = true
	}
	return attrs
}
