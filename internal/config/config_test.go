package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/gemfit/pkg/types"
	"github.com/menta2k/gemfit/pkg/variants"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1.75, cfg.TryOn.AnchorDivisor)
	assert.Equal(t, 5, cfg.TryOn.MaskThreshold)
	assert.Equal(t, 10, cfg.TryOn.CropPadding)
	assert.Equal(t, 0.95, cfg.Synthesis.Strength)
	assert.Equal(t, 9.0, cfg.Synthesis.Guidance)
	assert.Equal(t, []string{"Red", "Blue", "Green"}, cfg.Synthesis.Palette)
	require.NotNil(t, cfg.TryOn.OffsetFactor)
	assert.Equal(t, 0.5, *cfg.TryOn.OffsetFactor)
	assert.Equal(t, 15, cfg.Synthesis.EraseRadius)
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gemfit.yaml")
	doc := `
tryon:
  offset_factor: 0.3
synthesis:
  palette: [Maroon, Teal, Gold]
  erase_radius: 7
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.TryOn.OffsetFactor)
	assert.Equal(t, 0.3, *cfg.TryOn.OffsetFactor)
	assert.Equal(t, 0.3, cfg.OverlayConfig().OffsetFactor)
	assert.Equal(t, 1.75, cfg.TryOn.AnchorDivisor, "absent key keeps default")
	assert.Equal(t, 7, cfg.Synthesis.EraseRadius)

	vc, err := cfg.VariantsConfig()
	require.NoError(t, err)
	assert.Equal(t, [types.PaletteSize]string{"Maroon", "Teal", "Gold"}, vc.Palette)
	assert.Equal(t, variants.DefaultNegativePrompt, vc.NegativePrompt)
	assert.Equal(t, variants.DefaultTimeout, vc.Timeout)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gemfit.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tryon":{"offset_factor":0.5},"detection":{"backend":"llamacpp","url":"http://gpu:8080"}}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, BackendLlamaCpp, cfg.Detection.Backend)
	assert.Equal(t, "http://gpu:8080", cfg.Detection.URL)
	assert.Equal(t, "http://localhost:7860", cfg.Synthesis.URL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRequiresOffsetFactor(t *testing.T) {
	dir := t.TempDir()
	for name, doc := range map[string]string{
		"gemfit.yaml": "tryon:\n  anchor_divisor: 2\n",
		"gemfit.json": `{"tryon":{"anchor_divisor":2}}`,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err, name)
		assert.Nil(t, cfg.TryOn.OffsetFactor, name)

		var cfgErr *types.ConfigError
		require.ErrorAs(t, cfg.Validate(), &cfgErr, name)
		assert.Equal(t, "tryon.offset_factor", cfgErr.Field)
		assert.Equal(t, "is required", cfgErr.Reason)
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tryon":`), 0o644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidateReportsField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"offset factor", func(c *Config) { f := 1.5; c.TryOn.OffsetFactor = &f }, "offset_factor"},
		{"offset factor unset", func(c *Config) { c.TryOn.OffsetFactor = nil }, "tryon.offset_factor"},
		{"divisor", func(c *Config) { c.TryOn.AnchorDivisor = 0 }, "tryon.anchor_divisor"},
		{"threshold", func(c *Config) { c.TryOn.MaskThreshold = 300 }, "tryon.mask_threshold"},
		{"backend", func(c *Config) { c.Detection.Backend = "mediapipe" }, "detection.backend"},
		{"palette", func(c *Config) { c.Synthesis.Palette = []string{"Red"} }, "synthesis.palette"},
		{"strength", func(c *Config) { c.Synthesis.Strength = 0 }, "strength"},
		{"quality", func(c *Config) { c.Output.Quality = 0 }, "output.quality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			var cfgErr *types.ConfigError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSaveRoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gemfit.yml")
	cfg := Default()
	cfg.Synthesis.Steps = 42
	cfg.Synthesis.TimeoutSeconds = int((2 * time.Minute).Seconds())
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
