package source

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/soocke/frame-grabber-go/domain/capture"
	"github.com/vova616/screenshot"
)

// screenHandle grabs the whole screen, or rect when it is non-empty.
type screenHandle struct {
	rect image.Rectangle
}

// OpenScreen hooks the primary screen. The argument is ignored.
func OpenScreen(string) (capture.Handle, error) {
	return &screenHandle{}, nil
}

// OpenRect hooks a screen region given as "x,y,w,h".
func OpenRect(arg string) (capture.Handle, error) {
	r, err := ParseRect(arg)
	if err != nil {
		return nil, err
	}
	return &screenHandle{rect: r}, nil
}

func (h *screenHandle) Capture() (image.Image, error) {
	if h.rect.Empty() {
		return screenshot.CaptureScreen()
	}
	return screenshot.CaptureRect(h.rect)
}

// ParseRect parses "x,y,w,h" into a rectangle with positive size.
func ParseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("rect %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, errors.New("rect: width and height must be positive")
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}
