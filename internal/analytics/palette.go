package analytics

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrEmptyPalette = errors.New("palette has no colors")

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

var defaultColors = []string{
	"#2965CC", "#29A634", "#D99E0B", "#D13913", "#8F398F",
	"#00B3A4", "#DB2C6F", "#9BBF30", "#96622D", "#7157D9",
}

// Palette is a fixed, ordered color table. Series colors come from it by
// index with wraparound.
type Palette struct {
	colors []string
}

func NewPalette(colors []string) (Palette, error) {
	if len(colors) == 0 {
		return Palette{}, ErrEmptyPalette
	}
	normalized := make([]string, len(colors))
	for i, c := range colors {
		c = strings.TrimSpace(c)
		if !strings.HasPrefix(c, "#") {
			c = "#" + c
		}
		if !hexColor.MatchString(c) {
			return Palette{}, fmt.Errorf("palette color %d %q is not a hex color", i, colors[i])
		}
		normalized[i] = c
	}
	return Palette{colors: normalized}, nil
}

func DefaultPalette() Palette {
	return Palette{colors: append([]string(nil), defaultColors...)}
}

func (p Palette) Len() int {
	return len(p.colors)
}

// Color returns the color for a series index, wrapping in both directions.
// The zero Palette falls back to the default table.
func (p Palette) Color(index int) string {
	colors := p.colors
	if len(colors) == 0 {
		colors = defaultColors
	}
	n := len(colors)
	return colors[((index%n)+n)%n]
}

func (p Palette) Colors() []string {
	return append([]string(nil), p.colors...)
}
