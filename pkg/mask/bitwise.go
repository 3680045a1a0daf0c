package mask

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// And keeps the colour channels of img where m is On and zeroes them
// elsewhere. Alpha is forced opaque.
func And(img image.Image, m *image.Gray) (*image.NRGBA, error) {
	return combine(img, m, false)
}

// AndNot keeps the colour channels of img where m is Off
func AndNot(img image.Image, m *image.Gray) (*image.NRGBA, error) {
	return combine(img, m, true)
}

// Or merges two opaque images channel by channel
func Or(a, b *image.NRGBA) (*image.NRGBA, error) {
	if a.Bounds().Size() != b.Bounds().Size() {
		return nil, fmt.Errorf("size mismatch: %v vs %v", a.Bounds().Size(), b.Bounds().Size())
	}
	out := imaging.Clone(a)
	src := imaging.Clone(b)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] |= src.Pix[i]
		out.Pix[i+1] |= src.Pix[i+1]
		out.Pix[i+2] |= src.Pix[i+2]
		out.Pix[i+3] = 255
	}
	return out, nil
}

func combine(img image.Image, m *image.Gray, invert bool) (*image.NRGBA, error) {
	out := imaging.Clone(img)
	mb := m.Bounds()
	if out.Bounds().Size() != mb.Size() {
		return nil, fmt.Errorf("size mismatch: image %v, mask %v", out.Bounds().Size(), mb.Size())
	}
	for y := 0; y < mb.Dy(); y++ {
		mi := m.PixOffset(mb.Min.X, mb.Min.Y+y)
		oi := y * out.Stride
		for x := 0; x < mb.Dx(); x++ {
			v := m.Pix[mi+x]
			if invert {
				v = ^v
			}
			out.Pix[oi] &= v
			out.Pix[oi+1] &= v
			out.Pix[oi+2] &= v
			out.Pix[oi+3] = 255
			oi += 4
		}
	}
	return out, nil
}
