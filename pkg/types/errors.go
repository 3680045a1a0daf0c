package types

import (
	"fmt"
	"strings"
)

// DetectionError reports an empty landmark set or one missing required ids
type DetectionError struct {
	Missing []int
	Reason  string
	Err     error
}

func (e *DetectionError) Error() string {
	var b strings.Builder
	b.WriteString("detection failed")
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (missing landmarks %v)", e.Missing)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DetectionError) Unwrap() error { return e.Err }

// GeometryError reports anchors that cannot carry an accessory
type GeometryError struct {
	Anchors AnchorPair
	Reason  string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry error: %s (right=%v left=%v)", e.Reason, e.Anchors.Right, e.Anchors.Left)
}

// AssetOverflowError reports an accessory consumed entirely by frame clipping
type AssetOverflowError struct {
	Iterations int
	Height     int
}

func (e *AssetOverflowError) Error() string {
	return fmt.Sprintf("accessory does not fit in frame after %d clip iterations (remaining height %d)", e.Iterations, e.Height)
}

// SynthesisError wraps a failed synthesis invocation
type SynthesisError struct {
	Label string
	Err   error
}

func (e *SynthesisError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("synthesis failed: %v", e.Err)
	}
	return fmt.Sprintf("synthesis failed for %s variant: %v", e.Label, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ConfigError reports a missing or out-of-range configuration value
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}
