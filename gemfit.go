// Package gemfit places a jewellery accessory on a photographed person and
// optionally regenerates their garment in several colours.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/menta2k/gemfit"
//		"github.com/menta2k/gemfit/pkg/detection"
//		"github.com/menta2k/gemfit/pkg/ollama"
//		"github.com/menta2k/gemfit/pkg/processing"
//	)
//
//	func main() {
//		vc, err := ollama.NewClient("http://localhost:11434")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		opts := gemfit.DefaultOptions()
//		opts.Detector = detection.NewVisionDetector(vc, "llava:13b")
//		pipeline, err := gemfit.New(opts)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		proc := processing.NewProcessor()
//		subject, _ := proc.LoadImage("model.jpg")
//		necklace, _ := proc.LoadImage("necklace.png")
//
//		out, err := pipeline.NecklaceTryOn(context.Background(), subject, necklace)
//		if err != nil {
//			log.Fatal(err)
//		}
//		_ = proc.SaveImage(out, "model_tryon.jpg", "jpg", 90, false)
//	}
//
// The pipeline runs these components:
//
// 1. Detection (pkg/detection): finds mouth and shoulder landmarks
// 2. Geometry (pkg/geometry): derives the two neckline anchors
// 3. Overlay (pkg/overlay): fits, tilts and clips the accessory, then composites it
// 4. Mask (pkg/mask): turns the accessory footprint into the garment region
// 5. Variants (pkg/variants): regenerates the garment once per palette colour
//
// Every call returns a complete result or one of the typed errors in
// pkg/types; no partial result is ever returned.
package gemfit

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/gemfit/pkg/analyzer"
	"github.com/menta2k/gemfit/pkg/detection"
	"github.com/menta2k/gemfit/pkg/geometry"
	"github.com/menta2k/gemfit/pkg/inpaint"
	"github.com/menta2k/gemfit/pkg/mask"
	"github.com/menta2k/gemfit/pkg/overlay"
	"github.com/menta2k/gemfit/pkg/synthesis"
	"github.com/menta2k/gemfit/pkg/types"
	"github.com/menta2k/gemfit/pkg/variants"
)

// Version of the gemfit library
const Version = "1.0.0"

// Options configures a Pipeline. Start from DefaultOptions; zero values are
// taken literally.
type Options struct {
	Overlay       overlay.Config
	AnchorDivisor float64
	MaskThreshold uint8
	Analyzer      analyzer.Config

	Variants variants.Config
	// EraseRadius is the neighbourhood used to erase the accessory before
	// garment synthesis; 0 disables the pass
	EraseRadius int

	Detector detection.LandmarkDetector
	// Synthesizer is only needed for ClothingTryOn
	Synthesizer synthesis.Synthesizer
	Logger      *log.Logger
}

// DefaultOptions returns options with the documented defaults and no
// collaborators set
func DefaultOptions() Options {
	return Options{
		Overlay:       overlay.DefaultConfig(),
		AnchorDivisor: geometry.DefaultAnchorDivisor,
		MaskThreshold: mask.DefaultThreshold,
		Analyzer:      analyzer.Config{MinImageSize: 64, MinAccessorySize: 4},
		Variants:      variants.DefaultConfig(),
		EraseRadius:   inpaint.DefaultRadius,
	}
}

// Pipeline holds the long-lived collaborators of the try-on workflow. It is
// safe for concurrent use when its collaborators are; garment synthesis
// batches are serialized.
type Pipeline struct {
	analyzer    *analyzer.ImageAnalyzer
	detector    detection.LandmarkDetector
	transformer *overlay.Transformer
	variants    *variants.Orchestrator
	divisor     float64
	threshold   uint8
	logger      *log.Logger
}

// New creates a Pipeline
func New(opts Options) (*Pipeline, error) {
	if opts.Detector == nil {
		return nil, &types.ConfigError{Field: "detector", Reason: "is required"}
	}
	if opts.AnchorDivisor <= 0 {
		return nil, &types.ConfigError{Field: "anchor_divisor", Reason: fmt.Sprintf("must be positive, got %v", opts.AnchorDivisor)}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	transformer, err := overlay.NewWithConfig(opts.Overlay)
	if err != nil {
		return nil, err
	}
	transformer.SetLogger(logger)

	p := &Pipeline{
		analyzer:    analyzer.NewWithConfig(opts.Analyzer),
		detector:    opts.Detector,
		transformer: transformer,
		divisor:     opts.AnchorDivisor,
		threshold:   opts.MaskThreshold,
		logger:      logger,
	}

	if opts.Synthesizer != nil {
		orch, err := variants.New(opts.Variants, opts.Synthesizer)
		if err != nil {
			return nil, err
		}
		orch.SetLogger(logger)
		if opts.EraseRadius > 0 {
			orch.SetEraser(inpaint.New(opts.EraseRadius))
		}
		p.variants = orch
	}

	return p, nil
}

// NecklaceTryOn returns the subject wearing the accessory
func (p *Pipeline) NecklaceTryOn(ctx context.Context, subject, accessory image.Image) (image.Image, error) {
	res, err := p.Overlay(ctx, subject, accessory)
	if err != nil {
		return nil, err
	}
	return res.Composite, nil
}

// Overlay runs detection, placement and compositing and returns the
// composite together with the accessory footprint mask.
func (p *Pipeline) Overlay(ctx context.Context, subject, accessory image.Image) (types.TryOnResult, error) {
	logger := p.requestLogger()
	start := time.Now()

	res, err := p.overlay(ctx, logger, subject, accessory)
	if err != nil {
		logger.Printf("overlay failed: %v", err)
		return types.TryOnResult{}, err
	}
	logger.Printf("overlay done in %s", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// ClothingTryOn composites the accessory and regenerates the garment below
// it once per palette colour. Accessory pixels are identical across the
// returned variants.
func (p *Pipeline) ClothingTryOn(ctx context.Context, subject, accessory image.Image) (types.VariantSet, error) {
	if p.variants == nil {
		return types.VariantSet{}, errNoSynthesizer
	}

	logger := p.requestLogger()
	start := time.Now()

	res, err := p.overlay(ctx, logger, subject, accessory)
	if err == nil {
		var set types.VariantSet
		set, err = p.regenerate(ctx, logger, res)
		if err == nil {
			logger.Printf("clothing try-on done in %s", time.Since(start).Round(time.Millisecond))
			return set, nil
		}
	}
	logger.Printf("clothing try-on failed: %v", err)
	return types.VariantSet{}, err
}

// Regenerate produces the garment variants for a result returned by Overlay.
// Callers that also need the composite run Overlay once and pass its result
// here instead of calling ClothingTryOn.
func (p *Pipeline) Regenerate(ctx context.Context, res types.TryOnResult) (types.VariantSet, error) {
	if p.variants == nil {
		return types.VariantSet{}, errNoSynthesizer
	}
	if res.Composite == nil || res.Mask == nil {
		return types.VariantSet{}, fmt.Errorf("regenerate: result has no composite or mask")
	}

	logger := p.requestLogger()
	start := time.Now()

	set, err := p.regenerate(ctx, logger, res)
	if err != nil {
		logger.Printf("regenerate failed: %v", err)
		return types.VariantSet{}, err
	}
	logger.Printf("regenerate done in %s", time.Since(start).Round(time.Millisecond))
	return set, nil
}

var errNoSynthesizer = &types.ConfigError{Field: "synthesizer", Reason: "is required for clothing try-on"}

func (p *Pipeline) regenerate(ctx context.Context, logger *log.Logger, res types.TryOnResult) (types.VariantSet, error) {
	garment := mask.Refine(res.Mask)
	if mask.IsEmpty(garment) {
		return types.VariantSet{}, &types.GeometryError{Anchors: res.Anchors, Reason: "accessory footprint lies outside the frame"}
	}
	logger.Printf("garment region starts at row %d", mask.FirstRow(garment))

	return p.variants.Generate(ctx, res.Composite, res.Mask, garment)
}

func (p *Pipeline) overlay(ctx context.Context, logger *log.Logger, subject, accessory image.Image) (types.TryOnResult, error) {
	if err := p.analyzer.ValidateSubject(subject); err != nil {
		return types.TryOnResult{}, fmt.Errorf("invalid subject: %w", err)
	}
	if err := p.analyzer.ValidateAccessory(accessory); err != nil {
		return types.TryOnResult{}, fmt.Errorf("invalid accessory: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return types.TryOnResult{}, err
	}

	// Detection, placement and compositing share origin-anchored coordinates
	base := overlay.Opaque(subject)

	landmarks, err := p.detect(ctx, base)
	if err != nil {
		return types.TryOnResult{}, err
	}

	anchors, err := geometry.ResolveAnchors(landmarks, p.divisor)
	if err != nil {
		return types.TryOnResult{}, err
	}
	logger.Printf("anchors right=%v left=%v span=%d", anchors.Right, anchors.Left, anchors.Span())

	placement, err := p.transformer.WithLogger(logger).Place(base.Bounds(), anchors, accessory)
	if err != nil {
		return types.TryOnResult{}, err
	}

	res := overlay.Composite(base, placement, p.threshold)
	res.Anchors = anchors
	return res, nil
}

func (p *Pipeline) detect(ctx context.Context, img image.Image) (types.LandmarkSet, error) {
	landmarks, err := p.detector.Detect(ctx, img)
	if err != nil {
		var detErr *types.DetectionError
		if errors.As(err, &detErr) {
			return nil, err
		}
		return nil, &types.DetectionError{Reason: "landmark detector failed", Err: err}
	}
	if len(landmarks) == 0 {
		return nil, &types.DetectionError{Reason: "no person found"}
	}
	return landmarks, nil
}

// requestLogger tags every line of one call with a short request id
func (p *Pipeline) requestLogger() *log.Logger {
	id := uuid.NewString()[:8]
	return log.New(p.logger.Writer(), fmt.Sprintf("%s[%s] ", p.logger.Prefix(), id), p.logger.Flags())
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
