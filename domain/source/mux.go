// Package source provides the FrameSource variants the capture worker can
// hook: the whole screen, a screen region, a window by title and a
// directory of images replayed in a loop.
//
// Descriptors select the variant:
//
//	screen             full screen
//	rect:x,y,w,h       screen region
//	dir:/path/to/dir   image files replayed in name order
//	window:Title       top-level window (Windows only)
//	Title              anything else is treated as a window title
package source

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/soocke/frame-grabber-go/domain/capture"
)

// ErrUnsupported is returned by variants not available on this platform.
var ErrUnsupported = errors.New("source not supported on this platform")

// Opener opens a handle for the argument part of a descriptor.
type Opener func(arg string) (capture.Handle, error)

// Mux routes descriptors to Openers by prefix.
type Mux struct {
	mu       sync.RWMutex
	routes   map[string]Opener
	fallback Opener
}

// NewMux returns a Mux with every built-in variant registered.
func NewMux() *Mux {
	m := &Mux{routes: make(map[string]Opener)}
	m.Handle("screen", OpenScreen)
	m.Handle("rect", OpenRect)
	m.Handle("dir", OpenDir)
	m.Handle("window", OpenWindow)
	m.fallback = OpenWindow
	return m
}

// Handle registers o for descriptors "name" and "name:arg".
func (m *Mux) Handle(name string, o Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[name] = o
}

// SetFallback sets the Opener for descriptors without a known prefix. It
// receives the whole descriptor.
func (m *Mux) SetFallback(o Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = o
}

// Open implements capture.FrameSource.
func (m *Mux) Open(descriptor string) (capture.Handle, error) {
	name, arg, o := m.route(descriptor)
	if o == nil {
		return nil, fmt.Errorf("%w: no source for %q", capture.ErrSourceUnavailable, descriptor)
	}
	h, err := o(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", capture.ErrSourceUnavailable, name, err)
	}
	return h, nil
}

func (m *Mux) route(descriptor string) (string, string, Opener) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, arg, _ := strings.Cut(descriptor, ":")
	if o, ok := m.routes[strings.TrimSpace(name)]; ok {
		return name, strings.TrimSpace(arg), o
	}
	return "window", descriptor, m.fallback
}
