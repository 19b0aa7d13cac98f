package images

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// EncodePNG encodes an image to PNG bytes. Errors are ignored and may return an empty slice.
func EncodePNG(img image.Image) []byte {
	if img == nil {
		return nil
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// SavePNG writes img to dir as frame-<seq>.png and returns the file path.
func SavePNG(dir string, seq uint64, img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("save frame %d: nil image", seq)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("save frame %d: %w", seq, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%08d.png", seq))
	data := EncodePNG(img)
	if len(data) == 0 {
		return "", fmt.Errorf("save frame %d: encode failed", seq)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save frame %d: %w", seq, err)
	}
	return path, nil
}
