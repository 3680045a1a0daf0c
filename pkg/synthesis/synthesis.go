// Package synthesis defines the inpainting collaborator used to regenerate
// garment regions.
package synthesis

import (
	"context"
	"image"
)

// Request describes one inpainting invocation. Only pixels where Mask is on
// are regenerated.
type Request struct {
	Prompt         string
	NegativePrompt string
	Image          image.Image
	Mask           *image.Gray
	Strength       float64
	Guidance       float64
	Steps          int
	// Seed fixes the sampler; negative lets the backend pick one.
	Seed int64
}

// Synthesizer regenerates the masked region of an image from a prompt
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (image.Image, error)
}

// Releaser is implemented by synthesizers that hold device memory or loaded
// weights which should be freed after a batch.
type Releaser interface {
	Release(ctx context.Context) error
}
