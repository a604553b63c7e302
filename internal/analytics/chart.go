package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kdimtricp/framechart/internal/models"
)

// Series is one line of the chart. ColorIndex is the position of the name in
// the series catalog, which does not depend on the threshold, so a series
// keeps its color when the threshold changes.
type Series struct {
	Name       string `json:"name"`
	ColorIndex int    `json:"colorIndex"`
}

// SeriesRecord is one frame's row of the tidy table handed to the chart.
type SeriesRecord struct {
	Frame  int
	Counts map[string]int
}

// MarshalJSON flattens the record into {"frame": N, "<tag>": count, ...}.
func (r SeriesRecord) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(r.Counts))
	for name := range r.Counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{%q:%d`, models.FrameField, r.Frame)
	for _, name := range names {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", r.Counts[name])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Chart struct {
	Threshold float64        `json:"threshold"`
	Series    []Series       `json:"series"`
	Records   []SeriesRecord `json:"records"`
}

// Build filters and counts every frame in a single pass over the frame group,
// producing both the series list and one dense record per frame.
func Build(frames models.FrameGroup, threshold float64) (*Chart, error) {
	if err := frames.Validate(); err != nil {
		return nil, fmt.Errorf("building chart: %w", err)
	}

	catalog := make(map[string]int)
	survived := make(map[string]bool)
	records := make([]SeriesRecord, 0, len(frames))

	for _, frame := range frames.Indices() {
		for _, d := range frames[frame] {
			if _, ok := catalog[d.Tag.Name]; !ok {
				catalog[d.Tag.Name] = len(catalog)
			}
		}

		counts := make(map[string]int)
		for _, tag := range FilterTags(frames[frame], threshold) {
			counts[tag.Name]++
			survived[tag.Name] = true
		}
		records = append(records, SeriesRecord{Frame: frame, Counts: counts})
	}

	series := make([]Series, 0, len(survived))
	for name := range survived {
		series = append(series, Series{Name: name, ColorIndex: catalog[name]})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].ColorIndex < series[j].ColorIndex
	})

	// every record carries every series so each line is continuous
	for _, r := range records {
		for _, s := range series {
			if _, ok := r.Counts[s.Name]; !ok {
				r.Counts[s.Name] = 0
			}
		}
	}

	return &Chart{Threshold: threshold, Series: series, Records: records}, nil
}

// CollectSeriesNames returns the distinct tag names meeting the threshold in
// catalog order.
func CollectSeriesNames(frames models.FrameGroup, threshold float64) ([]string, error) {
	chart, err := Build(frames, threshold)
	if err != nil {
		return nil, err
	}
	return chart.Names(), nil
}

// Aggregate returns one record per frame, ascending by frame index, counting
// the detections of each tag that meet the threshold.
func Aggregate(frames models.FrameGroup, threshold float64) ([]SeriesRecord, error) {
	chart, err := Build(frames, threshold)
	if err != nil {
		return nil, err
	}
	return chart.Records, nil
}

func (c *Chart) Names() []string {
	names := make([]string, len(c.Series))
	for i, s := range c.Series {
		names[i] = s.Name
	}
	return names
}

// Record returns the record for a frame index.
func (c *Chart) Record(frame int) (SeriesRecord, bool) {
	i := sort.Search(len(c.Records), func(i int) bool {
		return c.Records[i].Frame >= frame
	})
	if i < len(c.Records) && c.Records[i].Frame == frame {
		return c.Records[i], true
	}
	return SeriesRecord{}, false
}

// Frames returns the frame index of every record, in record order.
func (c *Chart) Frames() []int {
	frames := make([]int, len(c.Records))
	for i, r := range c.Records {
		frames[i] = r.Frame
	}
	return frames
}
