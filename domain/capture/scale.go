package capture

import (
	"image"

	"github.com/disintegration/imaging"
)

// Downscale resizes img to percent of its linear dimensions on each axis
// using box (area-average) resampling. percent >= 100 returns img as is.
func Downscale(img image.Image, percent int) image.Image {
	if img == nil || percent >= 100 || percent <= 0 {
		return img
	}
	b := img.Bounds()
	w := b.Dx() * percent / 100
	h := b.Dy() * percent / 100
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return imaging.Resize(img, w, h, imaging.Box)
}
