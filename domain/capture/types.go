package capture

import (
	"errors"
	"image"
)

// ErrSourceUnavailable wraps every failure to open or capture from a source.
// The worker recovers from it locally and never propagates it.
var ErrSourceUnavailable = errors.New("capture source unavailable")

// ConnectionState is the externally visible availability of the source.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Phase is the worker's internal loop state.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseAcquiring
	PhaseConnected
	PhaseDisconnected
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseAcquiring:
		return "acquiring"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handle is an open, exclusive binding to a source. Handles that also
// implement io.Closer are closed by the worker when they are replaced.
type Handle interface {
	Capture() (image.Image, error)
}

// FrameSource opens handles for a source descriptor such as a window title
// or a screen region. Implementations live in the source package.
type FrameSource interface {
	Open(descriptor string) (Handle, error)
}

// SourceProvider exposes the configured capture source. It is polled once
// per loop iteration and may be mutated concurrently by its owner.
type SourceProvider interface {
	CaptureSource() string
}

// StaticSource is a SourceProvider with a fixed descriptor.
type StaticSource string

func (s StaticSource) CaptureSource() string { return string(s) }

// StateListener is called on each ConnectionState transition.
type StateListener func(prev, next ConnectionState)
