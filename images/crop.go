package images

import (
	"errors"
	"image"
	"image/draw"
)

// Insets are pixel margins trimmed from each edge of a frame.
type Insets struct {
	Left, Top, Right, Bottom int
}

// CropInsets trims in from frame and returns the remaining area as a
// zero-origin RGBA image. Negative insets count as zero and the result is
// always at least 1x1.
func CropInsets(frame *image.RGBA, in Insets) (*image.RGBA, image.Rectangle, error) {
	if frame == nil {
		return nil, image.Rectangle{}, errors.New("nil frame")
	}
	b := frame.Bounds()
	x0 := b.Min.X + max(in.Left, 0)
	y0 := b.Min.Y + max(in.Top, 0)
	x1 := b.Max.X - max(in.Right, 0)
	y1 := b.Max.Y - max(in.Bottom, 0)
	if x0 >= b.Max.X {
		x0 = b.Max.X - 1
	}
	if y0 >= b.Max.Y {
		y0 = b.Max.Y - 1
	}
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	r := image.Rect(x0, y0, x1, y1).Intersect(b)
	if r.Empty() {
		return nil, image.Rectangle{}, errors.New("empty frame")
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), frame, r.Min, draw.Src)
	return out, r, nil
}
