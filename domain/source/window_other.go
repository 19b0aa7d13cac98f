//go:build !windows

package source

import (
	"fmt"

	"github.com/soocke/frame-grabber-go/domain/capture"
)

// OpenWindow is only implemented on Windows.
func OpenWindow(title string) (capture.Handle, error) {
	return nil, fmt.Errorf("window %q: %w", title, ErrUnsupported)
}
