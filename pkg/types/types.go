package types

import (
	"image"
)

// Landmark ids used as neckline proxies. The numbering follows the 33-point
// body pose topology.
const (
	MouthLeft     = 9
	MouthRight    = 10
	ShoulderLeft  = 11
	ShoulderRight = 12
)

// RequiredLandmarks lists the ids a LandmarkSet must contain.
var RequiredLandmarks = []int{MouthLeft, MouthRight, ShoulderLeft, ShoulderRight}

// LandmarkSet maps a landmark id to its pixel coordinate in the subject image
type LandmarkSet map[int]image.Point

// Missing returns the required ids absent from the set, in ascending order
func (l LandmarkSet) Missing() []int {
	var missing []int
	for _, id := range RequiredLandmarks {
		if _, ok := l[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// AnchorPair holds the two neckline points an accessory hangs from.
// Right is on the subject's right side (left of the image), Left on the
// subject's left side.
type AnchorPair struct {
	Right image.Point `json:"right"`
	Left  image.Point `json:"left"`
}

// Span returns the horizontal distance between the anchors
func (a AnchorPair) Span() int {
	return a.Left.X - a.Right.X
}

// Validate rejects pairs without a positive horizontal span
func (a AnchorPair) Validate() error {
	if a.Span() <= 0 {
		return &GeometryError{Anchors: a, Reason: "non-positive anchor span"}
	}
	return nil
}

// Placement is the accessory raster ready to be composited at At
type Placement struct {
	Asset          *image.NRGBA
	At             image.Point
	Angle          float64
	VerticalOffset int
	Iterations     int
}

// Bounds returns the rectangle the asset covers in subject coordinates
func (p Placement) Bounds() image.Rectangle {
	if p.Asset == nil {
		return image.Rectangle{Min: p.At, Max: p.At}
	}
	return p.Asset.Bounds().Sub(p.Asset.Bounds().Min).Add(p.At)
}

// TryOnResult contains the composite and the accessory footprint mask
type TryOnResult struct {
	Composite *image.NRGBA
	Mask      *image.Gray
	Anchors   AnchorPair
	Placement Placement
}

// PaletteSize is the number of regenerated variants per clothing try-on
const PaletteSize = 3

// Variant is one regenerated image together with its colour label
type Variant struct {
	Label string
	Image *image.NRGBA
}

// VariantSet holds exactly PaletteSize variants in palette order
type VariantSet [PaletteSize]Variant

// Images returns the variant images in palette order
func (v VariantSet) Images() []*image.NRGBA {
	out := make([]*image.NRGBA, 0, len(v))
	for _, variant := range v {
		out = append(out, variant.Image)
	}
	return out
}
