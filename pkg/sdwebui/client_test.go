package sdwebui

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/gemfit/pkg/processing"
	"github.com/menta2k/gemfit/pkg/synthesis"
)

func testRequest() synthesis.Request {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	m := image.NewGray(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		m.SetGray(x, 10, color.Gray{Y: 255})
	}
	return synthesis.Request{
		Prompt:         "Red, saree",
		NegativePrompt: "necklace",
		Image:          img,
		Mask:           m,
		Strength:       0.95,
		Guidance:       9,
		Steps:          30,
		Seed:           42,
	}
}

func encodedResult(t *testing.T) string {
	t.Helper()
	out := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range out.Pix {
		out.Pix[i] = 200
	}
	payload, err := processing.NewProcessor().PrepareImageForModel(out, "png", 0, 0)
	require.NoError(t, err)
	return payload
}

func TestSynthesize(t *testing.T) {
	result := encodedResult(t)
	var got Img2ImgRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, img2imgEndpoint, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Img2ImgResponse{Images: []string{result}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", WithModel("sd-inpaint"))
	require.NoError(t, err)

	img, err := c.Synthesize(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	assert.Equal(t, 0.95, got.DenoisingStrength)
	assert.Equal(t, 9.0, got.CfgScale)
	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, 16, got.Width)
	assert.Equal(t, "Red, saree", got.Prompt)
	assert.Equal(t, "necklace", got.NegativePrompt)
	assert.Equal(t, "sd-inpaint", got.OverrideSettings["sd_model_checkpoint"])
	require.Len(t, got.InitImages, 1)

	m, err := processing.DecodeBase64(got.Mask)
	require.NoError(t, err)
	r, _, _, _ := m.At(3, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"OutOfMemoryError","detail":"CUDA out of memory"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestSynthesizeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestSynthesizeRejectsMismatchedMask(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	require.NoError(t, err)

	req := testRequest()
	req.Mask = image.NewGray(image.Rect(0, 0, 8, 8))
	_, err = c.Synthesize(context.Background(), req)
	assert.Error(t, err)
}

func TestRelease(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdapi/v1/unload-checkpoint", r.URL.Path)
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	noop, err := NewClient(srv.URL)
	require.NoError(t, err)
	require.NoError(t, noop.Release(context.Background()))
	assert.Equal(t, int32(0), calls.Load())

	c, err := NewClient(srv.URL, WithReleasePath("/sdapi/v1/unload-checkpoint"))
	require.NoError(t, err)
	require.NoError(t, c.Release(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost:7860")
	assert.Error(t, err)
}
