package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/soocke/frame-grabber-go/domain/capture"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// dirHandle replays the images of a directory in name order, looping.
// The file list is fixed at open; a file removed later fails its capture.
type dirHandle struct {
	paths []string
	next  int
}

// OpenDir hooks the image files in dir.
func OpenDir(dir string) (capture.Handle, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir: empty path")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("dir %s: no images", dir)
	}
	sort.Strings(paths)
	return &dirHandle{paths: paths}, nil
}

func (h *dirHandle) Capture() (image.Image, error) {
	p := h.paths[h.next%len(h.paths)]
	h.next++
	img, err := imaging.Open(p)
	if err != nil {
		return nil, fmt.Errorf("dir frame %s: %w", filepath.Base(p), err)
	}
	return img, nil
}
