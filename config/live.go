package config

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Live is the mutable configuration cell the capture worker polls. Any
// goroutine may change the source; readers always get a consistent snapshot.
type Live struct {
	source atomic.Pointer[string]
}

// NewLive returns a cell seeded from cfg.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	src := ""
	if cfg != nil {
		src = cfg.CaptureSource
	}
	l.SetCaptureSource(src)
	return l
}

// CaptureSource returns the current descriptor.
func (l *Live) CaptureSource() string {
	if p := l.source.Load(); p != nil {
		return *p
	}
	return ""
}

// SetCaptureSource replaces the descriptor and reports whether it changed.
func (l *Live) SetCaptureSource(s string) bool {
	s = strings.TrimSpace(s)
	old := l.source.Swap(&s)
	return old == nil || *old != s
}

// Watch polls path every interval and applies a changed capture_source to
// live. It returns when ctx is done. Unreadable or invalid files are logged
// and skipped; the last good source stays in effect.
func Watch(ctx context.Context, path string, interval time.Duration, live *Live, logger *slog.Logger) {
	if interval <= 0 || path == "" || live == nil {
		return
	}
	var lastMod time.Time
	if fi, err := os.Stat(path); err == nil {
		lastMod = fi.ModTime()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		fi, err := os.Stat(path)
		if err != nil || !fi.ModTime().After(lastMod) {
			continue
		}
		lastMod = fi.ModTime()
		cfg, err := Load(path)
		if err != nil {
			if logger != nil {
				logger.Warn("config reload failed", "path", path, "error", err)
			}
			continue
		}
		old := live.CaptureSource()
		if live.SetCaptureSource(cfg.CaptureSource) && logger != nil {
			logger.Info("capture source changed", "old", old, "new", cfg.CaptureSource)
		}
	}
}
