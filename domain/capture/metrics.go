package capture

import (
	"image"
	"time"
)

// Frame is a published capture. It must not be modified after Push.
type Frame struct {
	Image      image.Image
	Sequence   uint64
	FPS        float64
	CapturedAt time.Time
}

// WorkerStats summarises capture loop behaviour for instrumentation.
type WorkerStats struct {
	Hooks            uint64 // successful acquisitions, each with one validation capture
	Captures         uint64
	Failures         uint64
	Backpressure     uint64
	Sequence         uint64
	AvgCapture       time.Duration
	AvgCaptureMicros float64
	LastCapture      time.Time
	State            ConnectionState
	Phase            Phase
}
