package detection

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/gemfit/pkg/types"
)

type fakeClient struct {
	reply  string
	err    error
	prompt string
	image  string
}

func (f *fakeClient) SimpleQuery(_ context.Context, _, prompt, img string) (string, error) {
	f.prompt, f.image = prompt, img
	return f.reply, f.err
}

func (f *fakeClient) QueryJSON(ctx context.Context, model, prompt, img string) (string, error) {
	return f.SimpleQuery(ctx, model, prompt, img)
}

const fencedReply = "```json\n" + `{
  "landmarks": [
    {"id": 9,  "name": "mouth_left",     "x": 0.55, "y": 0.2, "visibility": 0.9},
    {"id": 10, "name": "mouth_right",    "x": 0.45, "y": 0.2, "visibility": 0.9},
    // shoulders
    {"id": 11, "name": "left_shoulder",  "x": 0.75, "y": 0.5, "visibility": 0.8},
    {"id": 12, "name": "right_shoulder", "x": 0.25, "y": 0.5, "visibility": 0.8},
  ]
}` + "\n```"

func TestVisionDetectorConvertsToPixels(t *testing.T) {
	fc := &fakeClient{reply: fencedReply}
	d := NewVisionDetector(fc, "llava")

	set, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 200, 100)))
	require.NoError(t, err)

	want := types.LandmarkSet{
		types.MouthLeft:     image.Pt(110, 20),
		types.MouthRight:    image.Pt(90, 20),
		types.ShoulderLeft:  image.Pt(150, 50),
		types.ShoulderRight: image.Pt(50, 50),
	}
	if diff := cmp.Diff(want, set); diff != "" {
		t.Errorf("landmarks mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, DefaultPrompt, fc.prompt)
	assert.NotEmpty(t, fc.image)
}

func TestVisionDetectorNoPerson(t *testing.T) {
	d := NewVisionDetector(&fakeClient{reply: `{"landmarks": []}`}, "llava")

	_, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 20, 20)))
	var detErr *types.DetectionError
	require.ErrorAs(t, err, &detErr)
	assert.Empty(t, detErr.Missing)
}

func TestVisionDetectorMissingLandmark(t *testing.T) {
	reply := `{"landmarks":[{"id":9,"x":0.5,"y":0.2},{"id":10,"x":0.4,"y":0.2},{"id":11,"x":0.7,"y":0.5}]}`
	d := NewVisionDetector(&fakeClient{reply: reply}, "llava")

	_, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 20, 20)))
	var detErr *types.DetectionError
	require.ErrorAs(t, err, &detErr)
	assert.Equal(t, []int{types.ShoulderRight}, detErr.Missing)
}

func TestVisionDetectorDropsLowVisibility(t *testing.T) {
	d := NewVisionDetector(&fakeClient{reply: fencedReply}, "llava")
	d.SetMinVisibility(0.85)

	_, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 20, 20)))
	var detErr *types.DetectionError
	require.ErrorAs(t, err, &detErr)
	assert.ElementsMatch(t, []int{types.ShoulderLeft, types.ShoulderRight}, detErr.Missing)
}

func TestVisionDetectorClientError(t *testing.T) {
	boom := errors.New("connection refused")
	d := NewVisionDetector(&fakeClient{err: boom}, "llava")

	_, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 20, 20)))
	var detErr *types.DetectionError
	require.ErrorAs(t, err, &detErr)
	assert.ErrorIs(t, err, boom)
}

func TestParseKeypointsByName(t *testing.T) {
	k, err := ParseKeypoints(`Sure! {"landmarks":[{"name":"Right_Shoulder","x":2,"y":-1}]}`)
	require.NoError(t, err)
	require.Len(t, k.Landmarks, 1)

	k.Landmarks = append(k.Landmarks,
		Keypoint{ID: 9, X: 0.5, Y: 0.5}, Keypoint{ID: 10, X: 0.5, Y: 0.5}, Keypoint{ID: 11, X: 0.5, Y: 0.5})
	set, err := k.LandmarkSet(image.Rect(0, 0, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 0), set[types.ShoulderRight], "clamped to the frame")

	_, err = ParseKeypoints("I cannot see a person")
	assert.Error(t, err)
}

func TestStaticDetector(t *testing.T) {
	set := types.LandmarkSet{
		types.MouthLeft:     image.Pt(45, 10),
		types.MouthRight:    image.Pt(55, 10),
		types.ShoulderLeft:  image.Pt(80, 20),
		types.ShoulderRight: image.Pt(20, 20),
	}
	got, err := NewStatic(set).Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 100, 100)))
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subject.landmarks.json")
	doc := `{"pixels": true, "landmarks": [
		{"id": 9, "x": 45, "y": 10}, {"id": 10, "x": 55, "y": 10},
		{"id": 11, "x": 80, "y": 20}, {"id": 12, "x": 20, "y": 20}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	set, err := s.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 100, 100)))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 20), set[types.ShoulderRight])

	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
