package models

import (
	"time"

	"github.com/google/uuid"
)

type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Detection is one tagged region within a single frame. Only Tag and
// Confidence take part in aggregation; the rest is carried through.
type Detection struct {
	Tag          Tag         `json:"tag"`
	Confidence   float64     `json:"confidence"`
	Bound        [][]float64 `json:"bound,omitempty"`
	BoundType    string      `json:"boundType,omitempty"`
	AnnotationID string      `json:"annotationID,omitempty"`
}

type Annotation struct {
	ID        string     `json:"annotationID"`
	VideoID   string     `json:"videoID,omitempty"`
	Title     string     `json:"title,omitempty"`
	FPS       float64    `json:"fps"`
	Frames    FrameGroup `json:"frames"`
	CreatedAt time.Time  `json:"createdAt"`
}

func NewAnnotation(videoID, title string, fps float64, frames FrameGroup) *Annotation {
	if frames == nil {
		frames = FrameGroup{}
	}
	return &Annotation{
		ID:        uuid.New().String(),
		VideoID:   videoID,
		Title:     title,
		FPS:       fps,
		Frames:    frames,
		CreatedAt: time.Now(),
	}
}

// Seconds converts a frame index to a playback offset. Zero when FPS is unknown.
func (a *Annotation) Seconds(frame int) float64 {
	if a.FPS <= 0 {
		return 0
	}
	return float64(frame) / a.FPS
}
