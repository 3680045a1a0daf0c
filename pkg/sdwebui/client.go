// Package sdwebui implements synthesis.Synthesizer against the Stable
// Diffusion web UI HTTP API (img2img with an inpainting mask).
package sdwebui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/gemfit/pkg/processing"
	"github.com/menta2k/gemfit/pkg/synthesis"
)

const img2imgEndpoint = "/sdapi/v1/img2img"

var (
	_ synthesis.Synthesizer = (*Client)(nil)
	_ synthesis.Releaser    = (*Client)(nil)
)

// Inpainting fill modes understood by the web UI
const (
	FillOriginal = 1
	FillLatent   = 2
)

type Client struct {
	baseURL     string
	model       string
	releasePath string
	httpClient  *http.Client
	processor   *processing.Processor
}

// Option customises a Client
type Option func(*Client)

// WithModel overrides the checkpoint used for every request
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithReleasePath sets an endpoint that is POSTed after each variant batch
// to unload weights or free device memory, e.g. /sdapi/v1/unload-checkpoint.
func WithReleasePath(path string) Option {
	return func(c *Client) { c.releasePath = path }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Img2ImgRequest is the subset of the web UI img2img payload used for inpainting
type Img2ImgRequest struct {
	InitImages        []string       `json:"init_images"`
	Mask              string         `json:"mask"`
	Prompt            string         `json:"prompt"`
	NegativePrompt    string         `json:"negative_prompt"`
	DenoisingStrength float64        `json:"denoising_strength"`
	CfgScale          float64        `json:"cfg_scale"`
	Steps             int            `json:"steps,omitempty"`
	Seed              int64          `json:"seed"`
	Width             int            `json:"width"`
	Height            int            `json:"height"`
	BatchSize         int            `json:"batch_size"`
	InpaintingFill    int            `json:"inpainting_fill"`
	InpaintFullRes    bool           `json:"inpaint_full_res"`
	MaskBlur          int            `json:"mask_blur"`
	OverrideSettings  map[string]any `json:"override_settings,omitempty"`
}

// Img2ImgResponse carries base64 encoded result images
type Img2ImgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func NewClient(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:7860"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid URL: %s", serverURL)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		processor: processing.NewProcessor(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Synthesize regenerates the masked region of req.Image
func (c *Client) Synthesize(ctx context.Context, req synthesis.Request) (image.Image, error) {
	if req.Image == nil || req.Mask == nil {
		return nil, fmt.Errorf("image and mask are required")
	}
	if req.Image.Bounds().Size() != req.Mask.Bounds().Size() {
		return nil, fmt.Errorf("mask size %v does not match image size %v", req.Mask.Bounds().Size(), req.Image.Bounds().Size())
	}

	initImage, err := c.processor.PrepareImageForModel(req.Image, "png", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	maskImage, err := c.processor.PrepareImageForModel(req.Mask, "png", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mask: %w", err)
	}

	size := req.Image.Bounds().Size()
	payload := Img2ImgRequest{
		InitImages:        []string{initImage},
		Mask:              maskImage,
		Prompt:            req.Prompt,
		NegativePrompt:    req.NegativePrompt,
		DenoisingStrength: req.Strength,
		CfgScale:          req.Guidance,
		Steps:             req.Steps,
		Seed:              req.Seed,
		Width:             size.X,
		Height:            size.Y,
		BatchSize:         1,
		InpaintingFill:    FillOriginal,
	}
	if c.model != "" {
		payload.OverrideSettings = map[string]any{"sd_model_checkpoint": c.model}
	}

	respBody, err := c.sendRequest(ctx, img2imgEndpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var resp Img2ImgResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("no images in response")
	}

	img, err := processing.DecodeBase64(resp.Images[0])
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Release asks the server to free resources when a release path is configured
func (c *Client) Release(ctx context.Context) error {
	if c.releasePath == "" {
		return nil
	}
	_, err := c.sendRequest(ctx, c.releasePath, struct{}{})
	return err
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && (e.Error != "" || e.Detail != "") {
			return nil, fmt.Errorf("server returned status %d: %s %s", resp.StatusCode, e.Error, e.Detail)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
