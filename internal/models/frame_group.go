package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// FrameField is the record field that holds the frame index in chart output,
// so no tag may use it as a name.
const FrameField = "frame"

var ErrInvalidFrameGroup = errors.New("invalid frame group")

// ValidationError describes the first malformed entry found in a frame group.
type ValidationError struct {
	Frame  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("frame %q: %s", e.Frame, e.Reason)
	}
	return fmt.Sprintf("frame %q detection %d: %s", e.Frame, e.Index, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFrameGroup
}

// FrameGroup maps a frame index to the detections found in that frame.
// Iteration for output purposes always goes through Indices.
type FrameGroup map[int][]Detection

// Indices returns the frame indices in ascending order.
func (fg FrameGroup) Indices() []int {
	indices := make([]int, 0, len(fg))
	for frame := range fg {
		indices = append(indices, frame)
	}
	sort.Ints(indices)
	return indices
}

func (fg FrameGroup) Validate() error {
	for _, frame := range fg.Indices() {
		key := strconv.Itoa(frame)
		if frame < 0 {
			return &ValidationError{Frame: key, Index: -1, Reason: "frame index must be non-negative"}
		}
		if err := validateDetections(key, fg[frame]); err != nil {
			return err
		}
	}
	return nil
}

// ParseFrameGroup converts a frame group keyed by decimal strings, as found in
// annotation payloads, into a FrameGroup. It rejects the whole group on the
// first malformed key or detection.
func ParseFrameGroup(raw map[string][]Detection) (FrameGroup, error) {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fg := make(FrameGroup, len(raw))
	seen := make(map[int]string, len(raw))
	for _, key := range keys {
		frame, err := strconv.Atoi(key)
		if err != nil {
			return nil, &ValidationError{Frame: key, Index: -1, Reason: "frame key is not an integer"}
		}
		if frame < 0 {
			return nil, &ValidationError{Frame: key, Index: -1, Reason: "frame index must be non-negative"}
		}
		if prev, ok := seen[frame]; ok {
			return nil, &ValidationError{Frame: key, Index: -1, Reason: fmt.Sprintf("duplicates frame key %q", prev)}
		}
		seen[frame] = key

		detections := raw[key]
		if err := validateDetections(key, detections); err != nil {
			return nil, err
		}
		fg[frame] = append([]Detection(nil), detections...)
	}
	return fg, nil
}

func validateDetections(key string, detections []Detection) error {
	for i, d := range detections {
		switch {
		case d.Tag.Name == "":
			return &ValidationError{Frame: key, Index: i, Reason: "tag name is empty"}
		case d.Tag.Name == FrameField:
			return &ValidationError{Frame: key, Index: i, Reason: fmt.Sprintf("tag name %q is reserved", FrameField)}
		case math.IsNaN(d.Confidence):
			return &ValidationError{Frame: key, Index: i, Reason: "confidence is NaN"}
		}
	}
	return nil
}

func (fg *FrameGroup) UnmarshalJSON(data []byte) error {
	var raw map[string][]Detection
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding frames: %w", err)
	}
	parsed, err := ParseFrameGroup(raw)
	if err != nil {
		return err
	}
	*fg = parsed
	return nil
}
