// Package inpaint erases a masked region from an image by filling it from
// the surrounding pixels. It removes the composited accessory before the
// garment is regenerated so the synthesis model does not redraw it.
//
// Building with the gocv tag switches to OpenCV's Telea inpainting.
package inpaint

import (
	"fmt"
	"image"
)

// DefaultRadius is the neighbourhood radius, in pixels, considered for each
// filled pixel.
const DefaultRadius = 15

// Eraser fills the On pixels of m in img
type Eraser func(img *image.NRGBA, m *image.Gray) (*image.NRGBA, error)

// New returns an Eraser bound to radius
func New(radius int) Eraser {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return func(img *image.NRGBA, m *image.Gray) (*image.NRGBA, error) {
		return Erase(img, m, radius)
	}
}

func checkSizes(img *image.NRGBA, m *image.Gray) error {
	if img.Bounds().Size() != m.Bounds().Size() {
		return fmt.Errorf("inpaint: mask size %v does not match image size %v", m.Bounds().Size(), img.Bounds().Size())
	}
	return nil
}
