package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/gemfit/pkg/geometry"
	"github.com/menta2k/gemfit/pkg/inpaint"
	"github.com/menta2k/gemfit/pkg/mask"
	"github.com/menta2k/gemfit/pkg/overlay"
	"github.com/menta2k/gemfit/pkg/types"
	"github.com/menta2k/gemfit/pkg/variants"
)

// Config holds the application configuration
type Config struct {
	TryOn     TryOnConfig     `json:"tryon" yaml:"tryon"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis"`
	Output    OutputConfig    `json:"output" yaml:"output"`
}

// TryOnConfig holds the geometry and compositing parameters
type TryOnConfig struct {
	// OffsetFactor has no fallback: a config file must set it
	OffsetFactor      *float64 `json:"offset_factor" yaml:"offset_factor"`
	AnchorDivisor     float64  `json:"anchor_divisor" yaml:"anchor_divisor"`
	MaskThreshold     int      `json:"mask_threshold" yaml:"mask_threshold"`
	CropPadding       int      `json:"crop_padding" yaml:"crop_padding"`
	MaxClipIterations int      `json:"max_clip_iterations" yaml:"max_clip_iterations"`
	MinImageSize      int      `json:"min_image_size" yaml:"min_image_size"`
}

// DetectionConfig selects the landmark detector backend
type DetectionConfig struct {
	Backend       string  `json:"backend" yaml:"backend"`
	URL           string  `json:"url" yaml:"url"`
	Model         string  `json:"model" yaml:"model"`
	SendFormat    string  `json:"send_format" yaml:"send_format"`
	SendMaxDim    int     `json:"send_max_dim" yaml:"send_max_dim"`
	SendQuality   int     `json:"send_quality" yaml:"send_quality"`
	MinVisibility float64 `json:"min_visibility" yaml:"min_visibility"`
}

// SynthesisConfig holds the garment regeneration settings
type SynthesisConfig struct {
	URL            string   `json:"url" yaml:"url"`
	Model          string   `json:"model" yaml:"model"`
	ReleasePath    string   `json:"release_path" yaml:"release_path"`
	Width          int      `json:"width" yaml:"width"`
	Height         int      `json:"height" yaml:"height"`
	Strength       float64  `json:"strength" yaml:"strength"`
	Guidance       float64  `json:"guidance" yaml:"guidance"`
	Steps          int      `json:"steps" yaml:"steps"`
	Seed           int64    `json:"seed" yaml:"seed"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds"`
	Palette        []string `json:"palette" yaml:"palette"`
	PromptTemplate string   `json:"prompt_template" yaml:"prompt_template"`
	NegativePrompt string   `json:"negative_prompt" yaml:"negative_prompt"`
	// EraseRadius sizes the accessory erase pass before synthesis; 0 disables it
	EraseRadius int `json:"erase_radius" yaml:"erase_radius"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format" yaml:"default_format"`
	Quality       int    `json:"quality" yaml:"quality"`
	OutputDir     string `json:"output_dir" yaml:"output_dir"`
	Prefix        string `json:"prefix" yaml:"prefix"`
	Suffix        string `json:"suffix" yaml:"suffix"`
}

// Detector backends
const (
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendStatic   = "static"
)

// Default returns a configuration with default values
func Default() *Config {
	v := variants.DefaultConfig()
	offset := overlay.DefaultOffsetFactor
	return &Config{
		TryOn: TryOnConfig{
			OffsetFactor:  &offset,
			AnchorDivisor: geometry.DefaultAnchorDivisor,
			MaskThreshold: int(mask.DefaultThreshold),
			CropPadding:   overlay.DefaultCropPadding,
			MinImageSize:  64,
		},
		Detection: DetectionConfig{
			Backend:     BackendOllama,
			URL:         "http://localhost:11434",
			Model:       "llava:13b",
			SendFormat:  "jpg",
			SendMaxDim:  1024,
			SendQuality: 90,
		},
		Synthesis: SynthesisConfig{
			URL:            "http://localhost:7860",
			Width:          v.Width,
			Height:         v.Height,
			Strength:       v.Strength,
			Guidance:       v.Guidance,
			Steps:          v.Steps,
			Seed:           v.Seed,
			TimeoutSeconds: int(v.Timeout / time.Second),
			Palette:        v.Palette[:],
			PromptTemplate: v.PromptTemplate,
			NegativePrompt: v.NegativePrompt,
			EraseRadius:    inpaint.DefaultRadius,
		},
		Output: OutputConfig{
			DefaultFormat: "jpg",
			Quality:       90,
			OutputDir:     "./output",
			Suffix:        "_tryon",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file. Keys absent
// from the file keep their default values, except tryon.offset_factor which
// stays unset so that Validate reports it.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	config.TryOn.OffsetFactor = nil
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.TryOn.OffsetFactor == nil {
		return &types.ConfigError{Field: "tryon.offset_factor", Reason: "is required"}
	}
	if c.TryOn.AnchorDivisor <= 0 {
		return &types.ConfigError{Field: "tryon.anchor_divisor", Reason: "must be positive"}
	}
	if c.TryOn.MaskThreshold < 0 || c.TryOn.MaskThreshold > 254 {
		return &types.ConfigError{Field: "tryon.mask_threshold", Reason: "must be between 0 and 254"}
	}
	if c.TryOn.MinImageSize < 1 {
		return &types.ConfigError{Field: "tryon.min_image_size", Reason: "must be positive"}
	}
	if err := c.OverlayConfig().Validate(); err != nil {
		return err
	}

	switch c.Detection.Backend {
	case BackendOllama, BackendLlamaCpp, BackendStatic:
	default:
		return &types.ConfigError{Field: "detection.backend", Reason: fmt.Sprintf("unknown backend %q", c.Detection.Backend)}
	}
	if c.Detection.MinVisibility < 0 || c.Detection.MinVisibility > 1 {
		return &types.ConfigError{Field: "detection.min_visibility", Reason: "must be between 0 and 1"}
	}

	if c.Synthesis.EraseRadius < 0 {
		return &types.ConfigError{Field: "synthesis.erase_radius", Reason: "must not be negative"}
	}
	vc, err := c.VariantsConfig()
	if err != nil {
		return err
	}
	if err := vc.Validate(); err != nil {
		return err
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return &types.ConfigError{Field: "output.quality", Reason: "must be between 1 and 100"}
	}

	return nil
}

// OverlayConfig maps the try-on section onto the placement configuration.
// An unset offset factor maps to NaN, which the placement config rejects.
func (c *Config) OverlayConfig() overlay.Config {
	offset := math.NaN()
	if c.TryOn.OffsetFactor != nil {
		offset = *c.TryOn.OffsetFactor
	}
	return overlay.Config{
		OffsetFactor:      offset,
		CropPadding:       c.TryOn.CropPadding,
		MaxClipIterations: c.TryOn.MaxClipIterations,
	}
}

// VariantsConfig maps the synthesis section onto the variant configuration
func (c *Config) VariantsConfig() (variants.Config, error) {
	if len(c.Synthesis.Palette) != types.PaletteSize {
		return variants.Config{}, &types.ConfigError{
			Field:  "synthesis.palette",
			Reason: fmt.Sprintf("must list exactly %d colours, got %d", types.PaletteSize, len(c.Synthesis.Palette)),
		}
	}

	v := variants.Config{
		PromptTemplate: c.Synthesis.PromptTemplate,
		NegativePrompt: c.Synthesis.NegativePrompt,
		Width:          c.Synthesis.Width,
		Height:         c.Synthesis.Height,
		Strength:       c.Synthesis.Strength,
		Guidance:       c.Synthesis.Guidance,
		Steps:          c.Synthesis.Steps,
		Seed:           c.Synthesis.Seed,
		Timeout:        time.Duration(c.Synthesis.TimeoutSeconds) * time.Second,
	}
	copy(v.Palette[:], c.Synthesis.Palette)
	return v, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "gemfit", "config.yaml")
}
