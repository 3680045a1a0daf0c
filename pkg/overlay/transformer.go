// Package overlay fits an accessory raster to a pair of neckline anchors and
// composites it onto the subject photograph.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log"

	"github.com/disintegration/imaging"

	"github.com/menta2k/gemfit/pkg/geometry"
	"github.com/menta2k/gemfit/pkg/mask"
	"github.com/menta2k/gemfit/pkg/types"
)

const (
	// DefaultOffsetFactor scales how far the accessory is lifted above the
	// anchor line by the padding on its top row.
	DefaultOffsetFactor = 0.5

	// DefaultCropPadding is the number of rows trimmed beyond the overflow
	// when the accessory runs past the bottom of the frame.
	DefaultCropPadding = 10
)

// Config holds configuration for accessory placement
type Config struct {
	OffsetFactor float64
	CropPadding  int
	// MaxClipIterations bounds the overflow clip loop. Zero derives the bound
	// from the first resized height (height/10 + 1).
	MaxClipIterations int
}

// DefaultConfig returns the placement configuration used by New
func DefaultConfig() Config {
	return Config{
		OffsetFactor: DefaultOffsetFactor,
		CropPadding:  DefaultCropPadding,
	}
}

// Validate checks the configuration ranges
func (c Config) Validate() error {
	if c.OffsetFactor < 0 || c.OffsetFactor > 1 || c.OffsetFactor != c.OffsetFactor {
		return &types.ConfigError{Field: "offset_factor", Reason: fmt.Sprintf("must be between 0 and 1, got %v", c.OffsetFactor)}
	}
	if c.CropPadding < 0 {
		return &types.ConfigError{Field: "crop_padding", Reason: "must not be negative"}
	}
	if c.MaxClipIterations < 0 {
		return &types.ConfigError{Field: "max_clip_iterations", Reason: "must not be negative"}
	}
	return nil
}

// Transformer scales, lifts, tilts and clips an accessory so it hangs from
// the anchors without running out of the frame.
type Transformer struct {
	config Config
	logger *log.Logger
}

// New creates a Transformer with default configuration
func New() *Transformer {
	return &Transformer{
		config: DefaultConfig(),
		logger: log.New(io.Discard, "", 0),
	}
}

// NewWithConfig creates a Transformer with custom configuration
func NewWithConfig(config Config) (*Transformer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t := New()
	t.config = config
	return t, nil
}

// SetLogger sets the logger used for placement tracing
func (t *Transformer) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	t.logger = logger
}

// WithLogger returns a copy of t that traces to logger. The copy shares the
// configuration, so one Transformer can serve calls tagged per request.
func (t *Transformer) WithLogger(logger *log.Logger) *Transformer {
	c := *t
	c.SetLogger(logger)
	return &c
}

// Config returns a copy of the placement configuration
func (t *Transformer) Config() Config {
	return t.config
}

// Place fits accessory to anchors inside a subject of the given bounds.
//
// The accessory is resized to the anchor span, lifted by the padding found
// on its top row, and rotated to follow the anchor line. When the rotated
// raster would extend past the bottom of the frame, rows are trimmed from
// the top of the resized (unrotated) raster and the fit is repeated.
func (t *Transformer) Place(subject image.Rectangle, anchors types.AnchorPair, accessory image.Image) (types.Placement, error) {
	if err := anchors.Validate(); err != nil {
		return types.Placement{}, err
	}
	span := anchors.Span()
	angle := geometry.TiltAngle(anchors)

	working := imaging.Clone(accessory)
	if working.Bounds().Empty() {
		return types.Placement{}, &types.AssetOverflowError{Height: working.Bounds().Dy()}
	}

	limit := t.config.MaxClipIterations
	for clips := 0; ; clips++ {
		resized := resizeToWidth(working, span)
		width, height := resized.Bounds().Dx(), resized.Bounds().Dy()
		if limit == 0 {
			limit = height/10 + 1
		}

		column := contentOffset(resized)
		offset := int(t.config.OffsetFactor * float64(span) * (float64(column) / float64(width)))
		y := anchors.Right.Y - offset

		rotated := imaging.Rotate(resized, angle, color.Transparent)

		available := subject.Max.Y - y
		extra := rotated.Bounds().Dy() - available
		if extra <= 0 {
			t.logger.Printf("placed %dx%d accessory at (%d,%d) angle=%.0f clips=%d",
				rotated.Bounds().Dx(), rotated.Bounds().Dy(), anchors.Right.X, y, angle, clips)
			return types.Placement{
				Asset:          rotated,
				At:             image.Point{X: anchors.Right.X, Y: y},
				Angle:          angle,
				VerticalOffset: offset,
				Iterations:     clips,
			}, nil
		}

		cut := extra + t.config.CropPadding
		if cut >= height || clips >= limit {
			return types.Placement{}, &types.AssetOverflowError{Iterations: clips + 1, Height: height - cut}
		}
		t.logger.Printf("accessory overflows frame by %d rows, trimming %d from the top", extra, cut)

		working = imaging.Crop(resized, image.Rect(0, cut, width, height))
		if working.Bounds().Dy() >= height {
			return types.Placement{}, &types.AssetOverflowError{Iterations: clips + 1, Height: working.Bounds().Dy()}
		}
	}
}

// resizeToWidth scales img uniformly so its width equals width
func resizeToWidth(img *image.NRGBA, width int) *image.NRGBA {
	b := img.Bounds()
	height := int(float64(b.Dy()) * float64(width) / float64(b.Dx()))
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, width, height, imaging.CatmullRom)
}

// contentOffset scans the top row for the first pixel whose gray level is
// neither pure black nor pure white. Those two levels mark padding around
// the accessory. The full width is returned when the row holds no content.
func contentOffset(img *image.NRGBA) int {
	b := img.Bounds()
	i := img.PixOffset(b.Min.X, b.Min.Y)
	for x := 0; x < b.Dx(); x++ {
		v := mask.Luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		if v != 0 && v != 255 {
			return x
		}
		i += 4
	}
	return b.Dx()
}
