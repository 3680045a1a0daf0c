package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/menta2k/gemfit"
	"github.com/menta2k/gemfit/internal/config"
	"github.com/menta2k/gemfit/internal/utils"
	"github.com/menta2k/gemfit/pkg/analyzer"
	"github.com/menta2k/gemfit/pkg/client"
	"github.com/menta2k/gemfit/pkg/detection"
	"github.com/menta2k/gemfit/pkg/llamacpp"
	"github.com/menta2k/gemfit/pkg/ollama"
	"github.com/menta2k/gemfit/pkg/processing"
	"github.com/menta2k/gemfit/pkg/sdwebui"
	"github.com/menta2k/gemfit/pkg/synthesis"
)

func main() {
	var in, accessoryPath, landmarks, cfgPath, mode string
	var backend, url, model, sdURL, sdModel string
	var outDir, ext string
	var quality, erase int
	var lossless, debug bool

	flag.StringVar(&in, "in", "", "subject image path, URL or directory (jpg/png/webp)")
	flag.StringVar(&accessoryPath, "accessory", "", "accessory image with transparency (png/webp)")
	flag.StringVar(&landmarks, "landmarks", "", "landmarks JSON sidecar; skips model detection")
	flag.StringVar(&cfgPath, "config", "", "config file (.json or .yaml)")
	flag.StringVar(&mode, "mode", "necklace", "necklace | clothing | mask")

	flag.StringVar(&backend, "backend", "", "landmark backend: ollama | llamacpp | static")
	flag.StringVar(&url, "url", "", "landmark model server URL")
	flag.StringVar(&model, "model", "", "landmark model name")
	flag.StringVar(&sdURL, "sd-url", "", "Stable Diffusion web UI URL")
	flag.StringVar(&sdModel, "sd-model", "", "Stable Diffusion checkpoint override")
	flag.IntVar(&erase, "erase", -1, "erase the accessory with this radius before synthesis, 0 disables")

	flag.StringVar(&outDir, "out", "", "output directory")
	flag.StringVar(&ext, "ext", "", "output format: jpg|png|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.BoolVar(&debug, "debug", false, "write anchor and placement debug overlays")

	flag.Parse()
	if in == "" || accessoryPath == "" {
		log.Fatalf("usage: %s -in subject.jpg|URL|dir -accessory necklace.png [-mode necklace|clothing|mask] [-config gemfit.yaml] [-landmarks subject.landmarks.json] [-backend ollama|llamacpp] [-url server_url] [-sd-url webui_url] [-out outdir] [-ext jpg|png|webp]", filepath.Base(os.Args[0]))
	}

	switch mode {
	case "necklace", "clothing", "mask":
	default:
		log.Fatalf("unknown mode: %s (use necklace, clothing or mask)", mode)
	}

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.LoadFromFile(cfgPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	applyFlags(cfg, backend, url, model, sdURL, sdModel, outDir, ext, quality, erase)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger := log.New(os.Stderr, "gemfit: ", log.LstdFlags)
	processor := processing.NewProcessor()

	accessory, err := processor.LoadImageSmart(accessoryPath)
	if err != nil {
		log.Fatalf("failed to load accessory: %v", err)
	}

	inputs, err := utils.Inputs(in)
	if err != nil {
		log.Fatal(err)
	}
	if len(inputs) == 0 {
		log.Fatalf("no images found in %s", in)
	}
	if err := os.MkdirAll(cfg.Output.OutputDir, 0o755); err != nil {
		log.Fatal(err)
	}

	var synth synthesis.Synthesizer
	if mode == "clothing" {
		opts := []sdwebui.Option{}
		if cfg.Synthesis.Model != "" {
			opts = append(opts, sdwebui.WithModel(cfg.Synthesis.Model))
		}
		if cfg.Synthesis.ReleasePath != "" {
			opts = append(opts, sdwebui.WithReleasePath(cfg.Synthesis.ReleasePath))
		}
		synth, err = sdwebui.NewClient(cfg.Synthesis.URL, opts...)
		if err != nil {
			log.Fatalf("Failed to create Stable Diffusion client: %v", err)
		}
	}

	var vision detection.LandmarkDetector
	if cfg.Detection.Backend != config.BackendStatic {
		vision, err = newVisionDetector(cfg.Detection)
		if err != nil {
			log.Fatal(err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := runner{
		cfg: cfg,
		namer: utils.Namer{
			Dir:    cfg.Output.OutputDir,
			Prefix: cfg.Output.Prefix,
			Suffix: cfg.Output.Suffix,
			Format: cfg.Output.DefaultFormat,
		},
		mode:      mode,
		processor: processor,
		accessory: accessory,
		synth:     synth,
		logger:    logger,
		lossless:  lossless,
		debug:     debug,
	}

	failed := 0
	for _, input := range inputs {
		det, err := detectorFor(input, landmarks, vision)
		if err != nil {
			log.Printf("%s: %v", input, err)
			failed++
			continue
		}
		if err := r.process(ctx, input, det); err != nil {
			log.Printf("%s: %v", input, err)
			failed++
		}
	}
	if failed > 0 {
		log.Fatalf("%d of %d inputs failed", failed, len(inputs))
	}
}

func applyFlags(cfg *config.Config, backend, url, model, sdURL, sdModel, outDir, ext string, quality, erase int) {
	if backend != "" {
		cfg.Detection.Backend = backend
	}
	if url != "" {
		cfg.Detection.URL = url
	}
	if model != "" {
		cfg.Detection.Model = model
	}
	if sdURL != "" {
		cfg.Synthesis.URL = sdURL
	}
	if sdModel != "" {
		cfg.Synthesis.Model = sdModel
	}
	if erase >= 0 {
		cfg.Synthesis.EraseRadius = erase
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if ext != "" {
		cfg.Output.DefaultFormat = ext
	}
	if quality > 0 {
		cfg.Output.Quality = quality
	}
}

func newVisionDetector(dc config.DetectionConfig) (*detection.VisionDetector, error) {
	var visionClient client.VisionClient
	var err error

	switch dc.Backend {
	case config.BackendOllama:
		visionClient, err = ollama.NewClient(dc.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
	case config.BackendLlamaCpp:
		visionClient, err = llamacpp.NewClient(dc.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", dc.Backend)
	}

	d := detection.NewVisionDetector(visionClient, dc.Model)
	d.SetImageOptions(dc.SendFormat, dc.SendMaxDim, dc.SendQuality)
	d.SetMinVisibility(dc.MinVisibility)
	return d, nil
}

// detectorFor prefers an explicit or neighbouring landmarks sidecar over the
// vision model
func detectorFor(input, landmarks string, vision detection.LandmarkDetector) (detection.LandmarkDetector, error) {
	if landmarks == "" {
		if sidecar, ok := utils.LandmarksSidecar(input); ok {
			landmarks = sidecar
		}
	}
	if landmarks != "" {
		return detection.LoadStatic(landmarks)
	}
	if vision == nil {
		return nil, fmt.Errorf("no landmarks sidecar found and no detection backend configured")
	}
	return vision, nil
}

type runner struct {
	cfg       *config.Config
	namer     utils.Namer
	mode      string
	processor *processing.Processor
	accessory image.Image
	synth     synthesis.Synthesizer
	logger    *log.Logger
	lossless  bool
	debug     bool
}

func (r *runner) pipeline(det detection.LandmarkDetector) (*gemfit.Pipeline, error) {
	vc, err := r.cfg.VariantsConfig()
	if err != nil {
		return nil, err
	}
	opts := gemfit.Options{
		Overlay:       r.cfg.OverlayConfig(),
		AnchorDivisor: r.cfg.TryOn.AnchorDivisor,
		MaskThreshold: uint8(r.cfg.TryOn.MaskThreshold),
		Analyzer:      analyzer.Config{MinImageSize: r.cfg.TryOn.MinImageSize, MinAccessorySize: 4},
		Variants:      vc,
		EraseRadius:   r.cfg.Synthesis.EraseRadius,
		Detector:      det,
		Synthesizer:   r.synth,
		Logger:        r.logger,
	}
	return gemfit.New(opts)
}

func (r *runner) process(ctx context.Context, input string, det detection.LandmarkDetector) error {
	p, err := r.pipeline(det)
	if err != nil {
		return err
	}

	subject, err := r.processor.LoadImageSmart(input)
	if err != nil {
		return err
	}

	// every mode starts from one overlay so detection runs once per input
	res, err := p.Overlay(ctx, subject, r.accessory)
	if err != nil {
		return err
	}

	var saveErr error
	switch r.mode {
	case "necklace":
		saveErr = r.save(res.Composite, r.namer.Path(input))

	case "mask":
		saveErr = errors.Join(
			r.save(res.Composite, r.namer.Path(input)),
			r.save(res.Mask, r.namer.As("png").Path(input, "mask")),
		)

	case "clothing":
		set, err := p.Regenerate(ctx, res)
		if err != nil {
			return err
		}
		errs := make([]error, 0, len(set))
		for _, v := range set {
			errs = append(errs, r.save(v.Image, r.namer.Path(input, v.Label)))
		}
		saveErr = errors.Join(errs...)

	default:
		return fmt.Errorf("unknown mode: %s (use necklace, clothing or mask)", r.mode)
	}

	if r.debug {
		dbg := r.processor.CreateDebugOverlay(subject, res.Anchors, res.Placement.Bounds())
		saveErr = errors.Join(saveErr, r.save(dbg, r.namer.As("png").Path(input, "debug")))
	}
	return saveErr
}

// save writes img in the format named by the path's extension
func (r *runner) save(img image.Image, path string) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if err := r.processor.SaveImage(img, path, format, r.cfg.Output.Quality, r.lossless); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	r.logger.Printf("wrote %s", path)
	return nil
}
