// Package geometry derives neckline anchor points from body landmarks.
package geometry

import (
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/menta2k/gemfit/pkg/types"
)

// DefaultAnchorDivisor places the anchor between shoulder and mouth corner,
// roughly where a necklace rests below the jawline.
const DefaultAnchorDivisor = 1.75

// ResolveAnchors interpolates a neckline anchor on each side of the subject
// from the shoulder and mouth-corner landmarks.
func ResolveAnchors(lm types.LandmarkSet, divisor float64) (types.AnchorPair, error) {
	if len(lm) == 0 {
		return types.AnchorPair{}, &types.DetectionError{Reason: "no subject detected", Missing: types.RequiredLandmarks}
	}
	if missing := lm.Missing(); len(missing) > 0 {
		return types.AnchorPair{}, &types.DetectionError{Reason: "incomplete landmark set", Missing: missing}
	}
	if divisor <= 0 || math.IsNaN(divisor) || math.IsInf(divisor, 0) {
		return types.AnchorPair{}, &types.ConfigError{Field: "anchor_divisor", Reason: "must be a positive number"}
	}

	shoulderRight := vec(lm[types.ShoulderRight])
	mouthRight := vec(lm[types.MouthRight])
	shoulderLeft := vec(lm[types.ShoulderLeft])
	mouthLeft := vec(lm[types.MouthLeft])

	right := r2.Add(shoulderRight, div(r2.Sub(mouthRight, shoulderRight), divisor))
	left := r2.Sub(shoulderLeft, div(r2.Sub(shoulderLeft, mouthLeft), divisor))

	return types.AnchorPair{Right: point(right), Left: point(left)}, nil
}

// TiltAngle returns the rotation in degrees (counter-clockwise positive) that
// aligns a horizontal accessory with the anchor line. The magnitude is the
// angle at the right anchor between the anchor line and the horizontal,
// rounded up to whole degrees.
func TiltAngle(a types.AnchorPair) float64 {
	origin := vec(a.Right)
	line := r2.Sub(vec(a.Left), origin)
	horizontal := r2.Sub(r2.Vec{X: float64(a.Left.X), Y: float64(a.Right.Y)}, origin)

	ln, hn := r2.Norm(line), r2.Norm(horizontal)
	if ln == 0 || hn == 0 {
		return 0
	}
	cos := r2.Dot(line, horizontal) / (ln * hn)
	cos = math.Max(-1, math.Min(1, cos))

	// float noise must not push an exact angle up a whole degree
	angle := math.Ceil(math.Acos(cos)*180/math.Pi - 1e-9)
	if angle <= 0 {
		// also folds -0 from the ceil
		return 0
	}
	if a.Left.Y >= a.Right.Y {
		angle = -angle
	}
	return angle
}

// div divides componentwise; scaling by the reciprocal would drift below
// whole numbers before truncation.
func div(v r2.Vec, d float64) r2.Vec {
	return r2.Vec{X: v.X / d, Y: v.Y / d}
}

func vec(p image.Point) r2.Vec {
	return r2.Vec{X: float64(p.X), Y: float64(p.Y)}
}

// point truncates toward zero
func point(v r2.Vec) image.Point {
	return image.Point{X: int(v.X), Y: int(v.Y)}
}
