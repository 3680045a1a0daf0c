// Package mask holds binary mask operations: thresholding, garment
// refinement and the bitwise recombination used after regeneration.
//
// A binary mask is an *image.Gray whose pixels are either 0 or 255.
package mask

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	Off uint8 = 0
	On  uint8 = 255
)

// DefaultThreshold is the grayscale level above which a pixel counts as
// covered by the accessory.
const DefaultThreshold uint8 = 5

// Luma converts an RGB triple to 8-bit gray with BT.601 weights
func Luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// Threshold converts img to grayscale and maps levels above t to On, others to Off
func Threshold(img image.Image, t uint8) *image.Gray {
	src := imaging.Clone(img)
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		si := y * src.Stride
		di := y * out.Stride
		for x := 0; x < b.Dx(); x++ {
			if Luma(src.Pix[si], src.Pix[si+1], src.Pix[si+2]) > t {
				out.Pix[di+x] = On
			}
			si += 4
		}
	}
	return out
}

// IsBinary reports whether every pixel of m is Off or On
func IsBinary(m *image.Gray) bool {
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := m.Pix[m.PixOffset(b.Min.X, y) : m.PixOffset(b.Min.X, y)+b.Dx()]
		for _, v := range row {
			if v != Off && v != On {
				return false
			}
		}
	}
	return true
}

// FirstRow returns the index (relative to the mask origin) of the topmost row
// holding a non-zero pixel, or -1 when the mask is empty.
func FirstRow(m *image.Gray) int {
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := m.PixOffset(b.Min.X, y)
		for _, v := range m.Pix[i : i+b.Dx()] {
			if v != 0 {
				return y - b.Min.Y
			}
		}
	}
	return -1
}

// IsEmpty reports whether m has no non-zero pixel
func IsEmpty(m *image.Gray) bool {
	return FirstRow(m) < 0
}

// Clone copies m into a new mask anchored at the origin
func Clone(m *image.Gray) *image.Gray {
	b := m.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		i := m.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], m.Pix[i:i+b.Dx()])
	}
	return out
}

// Resize scales m with nearest-neighbour sampling so the result stays binary
func Resize(m *image.Gray, width, height int) *image.Gray {
	b := m.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return Clone(m)
	}
	out := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		sy := b.Min.Y + y*b.Dy()/height
		for x := 0; x < width; x++ {
			sx := b.Min.X + x*b.Dx()/width
			out.Pix[y*out.Stride+x] = m.Pix[m.PixOffset(sx, sy)]
		}
	}
	return out
}

// ToNRGBA expands m to an opaque three-channel image with the mask level in
// every colour channel.
func ToNRGBA(m *image.Gray) *image.NRGBA {
	b := m.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := m.Pix[m.PixOffset(b.Min.X+x, b.Min.Y+y)]
			out.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}
