package overlay

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/gemfit/pkg/mask"
	"github.com/menta2k/gemfit/pkg/types"
)

// Composite blends the placed accessory onto a copy of subject and derives
// the accessory footprint mask.
//
// Accessory pixels with zero alpha are skipped; pixels landing outside the
// subject are clipped. The footprint is the same accessory blended onto a
// black canvas, converted to gray and thresholded at threshold.
func Composite(subject image.Image, p types.Placement, threshold uint8) types.TryOnResult {
	base := Opaque(subject)
	bw, bh := base.Bounds().Dx(), base.Bounds().Dy()
	footprint := image.NewGray(image.Rect(0, 0, bw, bh))

	if p.Asset == nil {
		return types.TryOnResult{Composite: base, Mask: footprint, Placement: p}
	}

	asset := p.Asset
	ab := asset.Bounds()
	for y := 0; y < ab.Dy(); y++ {
		ty := p.At.Y + y
		if ty < 0 || ty >= bh {
			continue
		}
		si := asset.PixOffset(ab.Min.X, ab.Min.Y+y)
		for x := 0; x < ab.Dx(); x, si = x+1, si+4 {
			tx := p.At.X + x
			if tx < 0 || tx >= bw {
				continue
			}
			a := asset.Pix[si+3]
			if a == 0 {
				continue
			}
			r, g, b := asset.Pix[si], asset.Pix[si+1], asset.Pix[si+2]

			di := ty*base.Stride + tx*4
			base.Pix[di] = blend(r, base.Pix[di], a)
			base.Pix[di+1] = blend(g, base.Pix[di+1], a)
			base.Pix[di+2] = blend(b, base.Pix[di+2], a)

			if mask.Luma(blend(r, 0, a), blend(g, 0, a), blend(b, 0, a)) > threshold {
				footprint.Pix[ty*footprint.Stride+tx] = mask.On
			}
		}
	}

	return types.TryOnResult{Composite: base, Mask: footprint, Placement: p}
}

// Opaque copies img into a new origin-anchored NRGBA with every pixel fully
// opaque, the form subject photographs are handled in.
func Opaque(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255
	}
	return out
}

func blend(src, dst, alpha uint8) uint8 {
	a := uint32(alpha)
	return uint8((uint32(src)*a + uint32(dst)*(255-a) + 127) / 255)
}
