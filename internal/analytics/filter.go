// Package analytics turns per-frame tag detections into the tidy table and
// series list that a multi-line chart is drawn from.
package analytics

import "github.com/kdimtricp/framechart/internal/models"

// FilterTags returns the tag of every detection whose confidence meets the
// threshold, in input order. Repeated tags are kept.
func FilterTags(detections []models.Detection, threshold float64) []models.Tag {
	tags := make([]models.Tag, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= threshold {
			tags = append(tags, d.Tag)
		}
	}
	return tags
}
