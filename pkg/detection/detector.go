// Package detection locates the body landmarks the try-on anchors are derived
// from.
package detection

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/gemfit/pkg/client"
	"github.com/menta2k/gemfit/pkg/processing"
	"github.com/menta2k/gemfit/pkg/types"
)

// LandmarkDetector finds body landmarks in a subject image. Implementations
// return a *types.DetectionError when no person is found.
type LandmarkDetector interface {
	Detect(ctx context.Context, img image.Image) (types.LandmarkSet, error)
}

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks a vision model for the four neckline keypoints
const DefaultPrompt = `You are a human pose keypoint locator.

Locate these keypoints of the main person in the photo:
- 9:  mouth_left      (corner of the mouth on the person's own left side)
- 10: mouth_right     (corner of the mouth on the person's own right side)
- 11: left_shoulder   (the person's own left shoulder joint)
- 12: right_shoulder  (the person's own right shoulder joint)

Return JSON only:
{
  "landmarks": [
    {"id": 9,  "name": "mouth_left",     "x": 0.0, "y": 0.0, "visibility": 0.0},
    {"id": 10, "name": "mouth_right",    "x": 0.0, "y": 0.0, "visibility": 0.0},
    {"id": 11, "name": "left_shoulder",  "x": 0.0, "y": 0.0, "visibility": 0.0},
    {"id": 12, "name": "right_shoulder", "x": 0.0, "y": 0.0, "visibility": 0.0}
  ]
}

HARD RULES
- x and y are normalized to [0,1] (NOT pixels); x grows to the right, y grows downward.
- A person facing the camera has their right side on the image left.
- visibility is your confidence in [0,1].
- If no person is visible, return {"landmarks": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Default image settings for the model request
const (
	DefaultSendFormat  = "jpg"
	DefaultSendMaxDim  = 1024
	DefaultSendQuality = 90
)

// VisionDetector handles landmark detection using vision models
type VisionDetector struct {
	client        client.VisionClient
	processor     *processing.Processor
	model         string
	prompt        string
	format        string
	maxDim        int
	quality       int
	minVisibility float64
}

// NewVisionDetector creates a new detector with a vision client
func NewVisionDetector(client client.VisionClient, model string) *VisionDetector {
	return &VisionDetector{
		client:    client,
		processor: processing.NewProcessor(),
		model:     model,
		prompt:    DefaultPrompt,
		format:    DefaultSendFormat,
		maxDim:    DefaultSendMaxDim,
		quality:   DefaultSendQuality,
	}
}

// SetPrompt replaces the keypoint prompt
func (d *VisionDetector) SetPrompt(prompt string) {
	d.prompt = prompt
}

// SetImageOptions controls how the subject is encoded for the model
func (d *VisionDetector) SetImageOptions(format string, maxDim, quality int) {
	d.format = format
	d.maxDim = maxDim
	d.quality = quality
}

// SetMinVisibility drops keypoints the model reports below v. Keypoints
// without a visibility field are kept.
func (d *VisionDetector) SetMinVisibility(v float64) {
	d.minVisibility = v
}

// Detect asks the model for keypoints and converts them to pixel coordinates
// of img.
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) (types.LandmarkSet, error) {
	b64, err := d.processor.PrepareImageForModel(img, d.format, d.maxDim, d.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	raw, err := d.client.QueryJSON(ctx, d.model, d.prompt, b64)
	if err != nil {
		return nil, &types.DetectionError{Reason: "vision model query failed", Err: err}
	}

	resp, err := ParseKeypoints(raw)
	if err != nil {
		return nil, &types.DetectionError{Reason: "unreadable model reply", Err: err}
	}

	kept := resp.Landmarks[:0]
	for _, kp := range resp.Landmarks {
		if kp.Visibility == nil || *kp.Visibility >= d.minVisibility {
			kept = append(kept, kp)
		}
	}
	resp.Landmarks = kept

	return resp.LandmarkSet(img.Bounds())
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *VisionDetector) TestVision(ctx context.Context, img image.Image) (string, error) {
	b64, err := d.processor.PrepareImageForModel(img, d.format, d.maxDim, d.quality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}
	return d.client.SimpleQuery(ctx, d.model, SimpleTestPrompt, b64)
}
