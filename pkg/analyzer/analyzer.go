// Package analyzer checks subject and accessory images before they enter the
// try-on pipeline.
package analyzer

import (
	"fmt"
	"image"
	"image/draw"
)

// ImageAnalyzer validates input images and reports basic metadata
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	MinImageSize     int
	MinAccessorySize int
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			MinImageSize:     64,
			MinAccessorySize: 4,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
	// Visible counts pixels with non-zero alpha
	Visible int
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	info.Visible = visiblePixels(img)
	return info
}

// ValidateSubject checks if a subject photo meets minimum requirements
func (a *ImageAnalyzer) ValidateSubject(img image.Image) error {
	if img == nil {
		return fmt.Errorf("subject image is nil")
	}
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("subject image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// ValidateAccessory checks that an accessory has a usable size and at least
// one visible pixel
func (a *ImageAnalyzer) ValidateAccessory(img image.Image) error {
	if img == nil {
		return fmt.Errorf("accessory image is nil")
	}
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinAccessorySize || bounds.Dy() < a.config.MinAccessorySize {
		return fmt.Errorf("accessory image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinAccessorySize)
	}
	if visiblePixels(img) == 0 {
		return fmt.Errorf("accessory image is fully transparent")
	}
	return nil
}

func visiblePixels(img image.Image) int {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(b)
		draw.Draw(nrgba, b, img, b.Min, draw.Src)
	}

	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := nrgba.Pix[nrgba.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4+3] != 0 {
				n++
			}
		}
	}
	return n
}
