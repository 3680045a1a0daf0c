// Package variants regenerates the garment region of a try-on composite in
// several colours while keeping the accessory pixels untouched.
package variants

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/menta2k/gemfit/pkg/inpaint"
	"github.com/menta2k/gemfit/pkg/mask"
	"github.com/menta2k/gemfit/pkg/synthesis"
	"github.com/menta2k/gemfit/pkg/types"
)

// ColorPlaceholder is replaced by the palette label in PromptTemplate
const ColorPlaceholder = "{color}"

const (
	DefaultPromptTemplate = ColorPlaceholder + ", South Indian Saree, properly worn, natural setting, elegant, natural look, neckline without jewellery, simple"

	DefaultNegativePrompt = "necklaces, jewellery, jewelry, necklace, neckpiece, garland, chain, neck wear, " +
		"jewelled neck, jeweled neck, necklace on neck, jewellery on neck, accessories, " +
		"watermark, text, changed background, wider body, narrower body, bad proportions, " +
		"extra limbs, mutated hands, changed sizes, altered proportions, unnatural body proportions, " +
		"blurry, ugly"

	DefaultStrength = 0.95
	DefaultGuidance = 9.0
	DefaultSize     = 512
	DefaultSteps    = 30
	DefaultTimeout  = 5 * time.Minute
)

// DefaultPalette is the documented output order of ClothingTryOn
var DefaultPalette = [types.PaletteSize]string{"Red", "Blue", "Green"}

// Config holds configuration for variant generation
type Config struct {
	Palette        [types.PaletteSize]string
	PromptTemplate string
	NegativePrompt string
	Width          int
	Height         int
	Strength       float64
	Guidance       float64
	Steps          int
	Seed           int64
	// Timeout bounds each synthesis call when the caller's context has no deadline
	Timeout time.Duration
}

// DefaultConfig returns the saree regeneration settings
func DefaultConfig() Config {
	return Config{
		Palette:        DefaultPalette,
		PromptTemplate: DefaultPromptTemplate,
		NegativePrompt: DefaultNegativePrompt,
		Width:          DefaultSize,
		Height:         DefaultSize,
		Strength:       DefaultStrength,
		Guidance:       DefaultGuidance,
		Steps:          DefaultSteps,
		Seed:           -1,
		Timeout:        DefaultTimeout,
	}
}

// Validate checks the configuration ranges
func (c Config) Validate() error {
	for i, label := range c.Palette {
		if strings.TrimSpace(label) == "" {
			return &types.ConfigError{Field: fmt.Sprintf("palette[%d]", i), Reason: "must not be empty"}
		}
	}
	if c.PromptTemplate == "" {
		return &types.ConfigError{Field: "prompt_template", Reason: "must not be empty"}
	}
	if c.Width <= 0 || c.Height <= 0 {
		return &types.ConfigError{Field: "synthesis size", Reason: fmt.Sprintf("must be positive, got %dx%d", c.Width, c.Height)}
	}
	if c.Strength <= 0 || c.Strength > 1 {
		return &types.ConfigError{Field: "strength", Reason: fmt.Sprintf("must be in (0,1], got %v", c.Strength)}
	}
	if c.Guidance <= 0 {
		return &types.ConfigError{Field: "guidance", Reason: "must be positive"}
	}
	if c.Steps < 0 {
		return &types.ConfigError{Field: "steps", Reason: "must not be negative"}
	}
	if c.Timeout < 0 {
		return &types.ConfigError{Field: "timeout", Reason: "must not be negative"}
	}
	return nil
}

// Prompt renders the positive prompt for a palette label
func (c Config) Prompt(label string) string {
	return strings.ReplaceAll(c.PromptTemplate, ColorPlaceholder, label)
}

// Orchestrator drives the synthesis collaborator over the palette. Batches
// are serialized because the collaborator is not assumed to be reentrant.
type Orchestrator struct {
	mu     sync.Mutex
	config Config
	synth  synthesis.Synthesizer
	eraser inpaint.Eraser
	logger *log.Logger
}

// New creates an Orchestrator around a synthesizer
func New(config Config, synth synthesis.Synthesizer) (*Orchestrator, error) {
	if synth == nil {
		return nil, fmt.Errorf("variants: synthesizer is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		config: config,
		synth:  synth,
		logger: log.New(io.Discard, "", 0),
	}, nil
}

// SetLogger sets the logger used for batch tracing
func (o *Orchestrator) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	o.logger = logger
}

// SetEraser enables erasing the accessory from the working image before
// synthesis. A nil eraser disables the pass.
func (o *Orchestrator) SetEraser(eraser inpaint.Eraser) {
	o.eraser = eraser
}

// Config returns a copy of the generation configuration
func (o *Orchestrator) Config() Config {
	return o.config
}

// Generate produces one regenerated image per palette label.
//
// garment selects the pixels the synthesizer may repaint. After each
// result is scaled back, pixels inside occlusion are replaced by the
// composite's own pixels, so the accessory survives byte for byte. Any
// failed call aborts the batch without a partial result.
func (o *Orchestrator) Generate(ctx context.Context, composite *image.NRGBA, occlusion, garment *image.Gray) (types.VariantSet, error) {
	size := composite.Bounds().Size()
	if occlusion.Bounds().Size() != size || garment.Bounds().Size() != size {
		return types.VariantSet{}, fmt.Errorf("variants: composite %v, occlusion %v and garment %v sizes differ",
			size, occlusion.Bounds().Size(), garment.Bounds().Size())
	}

	preserved, err := mask.And(composite, occlusion)
	if err != nil {
		return types.VariantSet{}, err
	}

	working := composite
	if o.eraser != nil {
		working, err = o.eraser(composite, occlusion)
		if err != nil {
			return types.VariantSet{}, &types.SynthesisError{Err: fmt.Errorf("erase accessory: %w", err)}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.release(ctx)

	input := resize(working, o.config.Width, o.config.Height)
	inputMask := mask.Resize(garment, o.config.Width, o.config.Height)

	var set types.VariantSet
	for i, label := range o.config.Palette {
		start := time.Now()
		out, err := o.synthesize(ctx, label, input, inputMask)
		if err != nil {
			return types.VariantSet{}, &types.SynthesisError{Label: label, Err: err}
		}
		o.logger.Printf("%s variant generated in %s", label, time.Since(start).Round(time.Millisecond))

		restored := resize(out, size.X, size.Y)
		recovered, err := mask.AndNot(restored, occlusion)
		if err != nil {
			return types.VariantSet{}, &types.SynthesisError{Label: label, Err: err}
		}
		final, err := mask.Or(recovered, preserved)
		if err != nil {
			return types.VariantSet{}, &types.SynthesisError{Label: label, Err: err}
		}
		set[i] = types.Variant{Label: label, Image: final}
	}

	return set, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, label string, img *image.NRGBA, m *image.Gray) (image.Image, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	out, err := o.synth.Synthesize(ctx, synthesis.Request{
		Prompt:         o.config.Prompt(label),
		NegativePrompt: o.config.NegativePrompt,
		Image:          img,
		Mask:           m,
		Strength:       o.config.Strength,
		Guidance:       o.config.Guidance,
		Steps:          o.config.Steps,
		Seed:           o.config.Seed,
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Bounds().Empty() {
		return nil, fmt.Errorf("synthesizer returned an empty image")
	}
	return out, nil
}

// release frees collaborator resources after a batch, whatever its outcome
func (o *Orchestrator) release(ctx context.Context) {
	r, ok := o.synth.(synthesis.Releaser)
	if !ok {
		return
	}
	if err := r.Release(context.WithoutCancel(ctx)); err != nil {
		o.logger.Printf("release after variant batch failed: %v", err)
	}
}

// resize scales img with a Catmull-Rom kernel into a new origin-anchored NRGBA
func resize(img image.Image, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
