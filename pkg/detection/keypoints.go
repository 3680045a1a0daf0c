package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"regexp"
	"strings"

	"github.com/menta2k/gemfit/pkg/types"
)

var (
	_ LandmarkDetector = (*VisionDetector)(nil)
	_ LandmarkDetector = (*Static)(nil)
)

var landmarkNames = map[string]int{
	"mouth_left":     types.MouthLeft,
	"mouth_right":    types.MouthRight,
	"left_shoulder":  types.ShoulderLeft,
	"right_shoulder": types.ShoulderRight,
}

// Keypoint is one landmark as reported by a model or a sidecar file
type Keypoint struct {
	ID         int      `json:"id"`
	Name       string   `json:"name,omitempty"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// Keypoints is the JSON document exchanged with models and sidecar files.
// Coordinates are normalized to [0,1] unless Pixels is set.
type Keypoints struct {
	Landmarks []Keypoint `json:"landmarks"`
	Pixels    bool       `json:"pixels,omitempty"`
}

// LandmarkSet converts the keypoints to pixel coordinates inside bounds
func (k Keypoints) LandmarkSet(bounds image.Rectangle) (types.LandmarkSet, error) {
	if len(k.Landmarks) == 0 {
		return nil, &types.DetectionError{Reason: "no person found"}
	}

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	set := make(types.LandmarkSet, len(k.Landmarks))
	for _, kp := range k.Landmarks {
		id := kp.ID
		if id == 0 {
			var ok bool
			if id, ok = landmarkNames[strings.ToLower(kp.Name)]; !ok {
				continue
			}
		}

		var p image.Point
		if k.Pixels {
			p = image.Pt(int(kp.X), int(kp.Y)).Add(bounds.Min)
		} else {
			p = image.Pt(int(clamp(kp.X, 0, 1)*w), int(clamp(kp.Y, 0, 1)*h)).Add(bounds.Min)
		}
		set[id] = p
	}

	if missing := set.Missing(); len(missing) > 0 {
		return nil, &types.DetectionError{Missing: missing, Reason: "required landmarks not reported"}
	}
	return set, nil
}

// ParseKeypoints reads a model reply, tolerating fences and comments
func ParseKeypoints(raw string) (Keypoints, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return Keypoints{}, fmt.Errorf("no JSON object in reply")
	}

	var k Keypoints
	if err := json.Unmarshal([]byte(raw), &k); err != nil {
		return Keypoints{}, fmt.Errorf("failed to parse keypoints: %w", err)
	}
	return k, nil
}

// Static is a LandmarkDetector that always reports the same keypoints
type Static struct {
	Keypoints Keypoints
}

// NewStatic returns a detector reporting set as pixel coordinates
func NewStatic(set types.LandmarkSet) *Static {
	s := &Static{Keypoints: Keypoints{Pixels: true}}
	for _, id := range types.RequiredLandmarks {
		if p, ok := set[id]; ok {
			s.Keypoints.Landmarks = append(s.Keypoints.Landmarks, Keypoint{ID: id, X: float64(p.X), Y: float64(p.Y)})
		}
	}
	return s
}

// LoadStatic reads a landmarks sidecar JSON file
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read landmarks file: %w", err)
	}
	var k Keypoints
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("failed to parse landmarks file: %w", err)
	}
	return &Static{Keypoints: k}, nil
}

// Detect implements LandmarkDetector
func (s *Static) Detect(_ context.Context, img image.Image) (types.LandmarkSet, error) {
	return s.Keypoints.LandmarkSet(img.Bounds())
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
