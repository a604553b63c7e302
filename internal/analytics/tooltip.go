package analytics

import (
	"html/template"
	"strconv"
	"strings"
)

// TooltipEntry is one line of the tooltip shown for the active point.
type TooltipEntry struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// FormatTooltip renders the active payload as a small HTML list, one
// "name: value" item per entry. It renders nothing when inactive or empty.
func FormatTooltip(active bool, entries []TooltipEntry) string {
	if !active || len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<ul class="chart-tooltip">`)
	for _, e := range entries {
		b.WriteString(`<li style="color: `)
		b.WriteString(template.HTMLEscapeString(e.Color))
		b.WriteString(`">`)
		b.WriteString(template.HTMLEscapeString(e.Name))
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(e.Value))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// TooltipAt builds the tooltip payload for a hovered frame, one entry per
// series in draw order.
func (c *Chart) TooltipAt(frame int, palette Palette) ([]TooltipEntry, bool) {
	record, ok := c.Record(frame)
	if !ok {
		return nil, false
	}
	entries := make([]TooltipEntry, 0, len(c.Series))
	for _, s := range c.Series {
		entries = append(entries, TooltipEntry{
			Name:  s.Name,
			Value: record.Counts[s.Name],
			Color: palette.Color(s.ColorIndex),
		})
	}
	return entries, true
}
