package gemfit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/gemfit/pkg/detection"
	"github.com/menta2k/gemfit/pkg/inpaint"
	"github.com/menta2k/gemfit/pkg/mask"
	"github.com/menta2k/gemfit/pkg/synthesis"
	"github.com/menta2k/gemfit/pkg/types"
)

var (
	skin = color.NRGBA{180, 140, 120, 255}
	gold = color.NRGBA{212, 175, 55, 255}
)

// createTestImage creates an opaque image of a single colour
func createTestImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// frontFacing is a person facing the camera in a 100x100 frame
var frontFacing = types.LandmarkSet{
	types.ShoulderRight: image.Pt(40, 30),
	types.ShoulderLeft:  image.Pt(60, 30),
	types.MouthRight:    image.Pt(40, 10),
	types.MouthLeft:     image.Pt(60, 10),
}

type errDetector struct{ err error }

func (d errDetector) Detect(context.Context, image.Image) (types.LandmarkSet, error) {
	return nil, d.err
}

// countingDetector counts calls into a static landmark set
type countingDetector struct {
	mu    sync.Mutex
	calls int
	set   types.LandmarkSet
}

func (d *countingDetector) Detect(context.Context, image.Image) (types.LandmarkSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.set, nil
}

type paintSynth struct {
	mu       sync.Mutex
	calls    int
	released int
	err      error
}

func (s *paintSynth) Synthesize(_ context.Context, req synthesis.Request) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	b := req.Image.Bounds()
	return createTestImage(b.Dx(), b.Dy(), color.NRGBA{uint8(60 * s.calls), 20, 90, 255}), nil
}

func (s *paintSynth) Release(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	return nil
}

func newPipeline(t *testing.T, det detection.LandmarkDetector, synth synthesis.Synthesizer) *Pipeline {
	t.Helper()
	opts := DefaultOptions()
	opts.Detector = det
	opts.Synthesizer = synth
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func TestNewRequiresDetector(t *testing.T) {
	_, err := New(DefaultOptions())
	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "detector", cfgErr.Field)
	assert.Equal(t, inpaint.DefaultRadius, DefaultOptions().EraseRadius)

	opts := DefaultOptions()
	opts.Detector = detection.NewStatic(frontFacing)
	opts.Overlay.OffsetFactor = 2
	_, err = New(opts)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNecklaceTryOnEndToEnd(t *testing.T) {
	p := newPipeline(t, detection.NewStatic(frontFacing), nil)
	subject := createTestImage(100, 100, skin)

	res, err := p.Overlay(context.Background(), subject, createTestImage(20, 10, gold))
	require.NoError(t, err)

	assert.Equal(t, 20, res.Anchors.Span())
	assert.Equal(t, image.Pt(40, 18), res.Anchors.Right)
	assert.Equal(t, 20, res.Placement.Asset.Bounds().Dx())

	changed := image.Rectangle{}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if res.Composite.NRGBAAt(x, y) != subject.NRGBAAt(x, y) {
				changed = changed.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	assert.Equal(t, image.Rect(40, 18, 60, 28), changed)
	assert.True(t, mask.IsBinary(res.Mask))
}

func TestNecklaceTryOnDeterministic(t *testing.T) {
	p := newPipeline(t, detection.NewStatic(frontFacing), nil)
	subject := createTestImage(100, 100, skin)
	accessory := createTestImage(30, 12, gold)
	accessory.SetNRGBA(0, 0, color.NRGBA{})

	first, err := p.NecklaceTryOn(context.Background(), subject, accessory)
	require.NoError(t, err)
	second, err := p.NecklaceTryOn(context.Background(), subject, accessory)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first.(*image.NRGBA).Pix, second.(*image.NRGBA).Pix))
}

func TestTryOnDegenerateLandmarks(t *testing.T) {
	mirrored := types.LandmarkSet{
		types.ShoulderRight: image.Pt(60, 30),
		types.ShoulderLeft:  image.Pt(40, 30),
		types.MouthRight:    image.Pt(60, 10),
		types.MouthLeft:     image.Pt(40, 10),
	}
	p := newPipeline(t, detection.NewStatic(mirrored), nil)

	_, err := p.NecklaceTryOn(context.Background(), createTestImage(100, 100, skin), createTestImage(20, 10, gold))
	var geoErr *types.GeometryError
	assert.ErrorAs(t, err, &geoErr)
}

func TestTryOnDetectionErrors(t *testing.T) {
	subject := createTestImage(100, 100, skin)
	accessory := createTestImage(20, 10, gold)

	partial := types.LandmarkSet{types.ShoulderRight: image.Pt(40, 30)}
	_, err := newPipeline(t, detection.NewStatic(partial), nil).NecklaceTryOn(context.Background(), subject, accessory)
	var detErr *types.DetectionError
	require.ErrorAs(t, err, &detErr)
	assert.NotEmpty(t, detErr.Missing)

	boom := errors.New("model unavailable")
	_, err = newPipeline(t, errDetector{err: boom}, nil).NecklaceTryOn(context.Background(), subject, accessory)
	require.ErrorAs(t, err, &detErr)
	assert.ErrorIs(t, err, boom)

	// A detector's own DetectionError is passed through, even when wrapped
	own := &types.DetectionError{Missing: []int{types.MouthLeft}, Reason: "face hidden"}
	_, err = newPipeline(t, errDetector{err: fmt.Errorf("vision: %w", own)}, nil).NecklaceTryOn(context.Background(), subject, accessory)
	require.ErrorAs(t, err, &detErr)
	assert.Same(t, own, detErr)
	assert.Equal(t, "vision: "+own.Error(), err.Error())
}

func TestTryOnRejectsInvalidInput(t *testing.T) {
	p := newPipeline(t, detection.NewStatic(frontFacing), nil)

	_, err := p.NecklaceTryOn(context.Background(), createTestImage(10, 10, skin), createTestImage(20, 10, gold))
	assert.Error(t, err)

	_, err = p.NecklaceTryOn(context.Background(), createTestImage(100, 100, skin), image.NewNRGBA(image.Rect(0, 0, 20, 10)))
	assert.Error(t, err)
}

func TestTryOnCanceledContext(t *testing.T) {
	p := newPipeline(t, detection.NewStatic(frontFacing), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.NecklaceTryOn(ctx, createTestImage(100, 100, skin), createTestImage(20, 10, gold))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClothingTryOn(t *testing.T) {
	synth := &paintSynth{}
	p := newPipeline(t, detection.NewStatic(frontFacing), synth)
	subject := createTestImage(100, 100, skin)

	overlay, err := p.Overlay(context.Background(), subject, createTestImage(20, 10, gold))
	require.NoError(t, err)

	set, err := p.ClothingTryOn(context.Background(), subject, createTestImage(20, 10, gold))
	require.NoError(t, err)

	assert.Equal(t, 3, synth.calls)
	assert.Equal(t, 1, synth.released)
	for i, v := range set {
		assert.Equal(t, []string{"Red", "Blue", "Green"}[i], v.Label)
		require.Equal(t, subject.Bounds(), v.Image.Bounds())
		for y := 0; y < 100; y++ {
			for x := 0; x < 100; x++ {
				if overlay.Mask.GrayAt(x, y).Y == mask.On {
					require.Equal(t, overlay.Composite.NRGBAAt(x, y), v.Image.NRGBAAt(x, y), "%s (%d,%d)", v.Label, x, y)
				}
			}
		}
		assert.NotEqual(t, skin, v.Image.NRGBAAt(50, 80), "garment below the accessory is regenerated")
	}
}

func TestClothingTryOnErrors(t *testing.T) {
	subject := createTestImage(100, 100, skin)
	accessory := createTestImage(20, 10, gold)

	_, err := newPipeline(t, detection.NewStatic(frontFacing), nil).ClothingTryOn(context.Background(), subject, accessory)
	var cfgErr *types.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	synth := &paintSynth{err: errors.New("CUDA out of memory")}
	_, err = newPipeline(t, detection.NewStatic(frontFacing), synth).ClothingTryOn(context.Background(), subject, accessory)
	var synthErr *types.SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Equal(t, "Red", synthErr.Label)
	assert.Equal(t, 1, synth.released)

	// A black accessory leaves no footprint above the threshold
	synth = &paintSynth{}
	black := createTestImage(20, 10, color.NRGBA{A: 255})
	_, err = newPipeline(t, detection.NewStatic(frontFacing), synth).ClothingTryOn(context.Background(), subject, black)
	var geoErr *types.GeometryError
	assert.ErrorAs(t, err, &geoErr)
	assert.Equal(t, 0, synth.calls)
}

func TestRequestLoggerPrefix(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Detector = detection.NewStatic(frontFacing)
	opts.Logger = log.New(&buf, "gemfit: ", 0)
	p, err := New(opts)
	require.NoError(t, err)

	_, err = p.NecklaceTryOn(context.Background(), createTestImage(100, 100, skin), createTestImage(20, 10, gold))
	require.NoError(t, err)
	out := buf.String()
	m := regexp.MustCompile(`gemfit: \[([0-9a-f]{8})\] overlay done`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	assert.Regexp(t, regexp.MustCompile(`gemfit: \[`+m[1]+`\] placed 20x`), out)
	assert.Regexp(t, regexp.MustCompile(`gemfit: \[`+m[1]+`\] anchors right=`), out)
}

func TestRegenerateReusesOverlay(t *testing.T) {
	det := &countingDetector{set: frontFacing}
	synth := &paintSynth{}
	p := newPipeline(t, det, synth)
	subject := createTestImage(100, 100, skin)

	res, err := p.Overlay(context.Background(), subject, createTestImage(20, 10, gold))
	require.NoError(t, err)
	set, err := p.Regenerate(context.Background(), res)
	require.NoError(t, err)

	assert.Equal(t, 1, det.calls)
	assert.Equal(t, 3, synth.calls)
	for _, v := range set {
		for y := 0; y < 100; y++ {
			for x := 0; x < 100; x++ {
				if res.Mask.GrayAt(x, y).Y == mask.On {
					require.Equal(t, res.Composite.NRGBAAt(x, y), v.Image.NRGBAAt(x, y), "%s (%d,%d)", v.Label, x, y)
				}
			}
		}
	}

	_, err = newPipeline(t, det, nil).Regenerate(context.Background(), res)
	var cfgErr *types.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = p.Regenerate(context.Background(), types.TryOnResult{})
	assert.Error(t, err)
}
