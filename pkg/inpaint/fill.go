//go:build !gocv

package inpaint

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/gemfit/pkg/mask"
)

// Erase fills masked pixels layer by layer from the mask boundary inward.
// Each pixel takes the inverse-square-distance weighted mean of the known
// pixels within radius.
func Erase(img *image.NRGBA, m *image.Gray, radius int) (*image.NRGBA, error) {
	if err := checkSizes(img, m); err != nil {
		return nil, err
	}
	out := imaging.Clone(img)
	msk := mask.Clone(m)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()

	known := make([]bool, w*h)
	var pending []int
	for i, v := range msk.Pix {
		if v == 0 {
			known[i] = true
		} else {
			pending = append(pending, i)
		}
	}

	type fill struct {
		idx     int
		r, g, b uint8
	}

	for len(pending) > 0 {
		var next []int
		var fills []fill
		for _, i := range pending {
			x, y := i%w, i/w
			if !touchesKnown(known, x, y, w, h) {
				next = append(next, i)
				continue
			}
			var sr, sg, sb, sw float64
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || !known[ny*w+nx] {
						continue
					}
					d2 := dx*dx + dy*dy
					if d2 > radius*radius {
						continue
					}
					wt := 1 / float64(d2)
					pi := ny*out.Stride + nx*4
					sr += wt * float64(out.Pix[pi])
					sg += wt * float64(out.Pix[pi+1])
					sb += wt * float64(out.Pix[pi+2])
					sw += wt
				}
			}
			if sw == 0 {
				next = append(next, i)
				continue
			}
			fills = append(fills, fill{i, uint8(sr/sw + 0.5), uint8(sg/sw + 0.5), uint8(sb/sw + 0.5)})
		}
		if len(fills) == 0 {
			// nothing known to fill from: the mask covers the whole image
			break
		}
		for _, f := range fills {
			pi := (f.idx/w)*out.Stride + (f.idx%w)*4
			out.Pix[pi], out.Pix[pi+1], out.Pix[pi+2], out.Pix[pi+3] = f.r, f.g, f.b, 255
			known[f.idx] = true
		}
		pending = next
	}

	return out, nil
}

func touchesKnown(known []bool, x, y, w, h int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if (dx != 0 || dy != 0) && nx >= 0 && nx < w && ny >= 0 && ny < h && known[ny*w+nx] {
				return true
			}
		}
	}
	return false
}
