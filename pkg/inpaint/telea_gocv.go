//go:build gocv
// +build gocv

package inpaint

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/menta2k/gemfit/pkg/mask"
)

// Erase runs OpenCV's Telea fast-marching inpainting over the masked pixels
func Erase(img *image.NRGBA, m *image.Gray, radius int) (*image.NRGBA, error) {
	if err := checkSizes(img, m); err != nil {
		return nil, err
	}
	rgba := imaging.Clone(img)
	msk := mask.Clone(m)
	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()

	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return nil, fmt.Errorf("inpaint: image to mat: %w", err)
	}
	defer src.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(src, &bgr, gocv.ColorRGBAToBGR)

	maskMat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, msk.Pix)
	if err != nil {
		return nil, fmt.Errorf("inpaint: mask to mat: %w", err)
	}
	defer maskMat.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Inpaint(bgr, maskMat, &dst, float32(radius), gocv.Telea)

	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("inpaint: mat to image: %w", err)
	}
	return imaging.Clone(out), nil
}
