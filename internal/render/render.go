// Package render draws an analytics chart as a multi-line image.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/kdimtricp/framechart/internal/analytics"
)

type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 240

	padTop    = 14
	padLeft   = 16
	padRight  = 12
	padBottom = 8
)

type Options struct {
	Width  int
	Height int
	Title  string
	Format Format
}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", PNG:
		return PNG, nil
	case SVG:
		return SVG, nil
	default:
		return "", fmt.Errorf("unsupported chart format: %s", s)
	}
}

func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) Ext() string {
	if f == SVG {
		return ".svg"
	}
	return ".png"
}

// Render draws one line per series of c, colored from palette by each
// series' color index, and writes the image to w.
func Render(w io.Writer, c *analytics.Chart, palette analytics.Palette, opts Options) error {
	ch := buildChart(c, palette, opts)

	if err := ch.Render(providerFor(opts.Format), w); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}

func providerFor(f Format) chart.RendererProvider {
	if f == SVG {
		return chart.SVG
	}
	return chart.PNG
}

func buildChart(c *analytics.Chart, palette analytics.Palette, opts Options) chart.Chart {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	xs := make([]float64, len(c.Records))
	for i, r := range c.Records {
		xs[i] = float64(r.Frame)
	}

	maxCount := highestCount(c)
	series := make([]chart.Series, 0, len(c.Series))
	for _, s := range c.Series {
		ys := make([]float64, len(c.Records))
		for i, r := range c.Records {
			ys[i] = float64(r.Counts[s.Name])
		}
		series = append(series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: hexToColor(palette.Color(s.ColorIndex)),
				StrokeWidth: 2,
			},
		})
	}

	// go-chart refuses to draw without a visible series, and hidden ones do not
	// count, so a transparent line keeps the axes
	if len(series) == 0 {
		px, py := []float64{0}, []float64{0}
		if len(xs) > 0 {
			px, py = xs, make([]float64, len(xs))
		}
		series = append(series, chart.ContinuousSeries{
			XValues: px,
			YValues: py,
			Style: chart.Style{
				StrokeColor: drawing.ColorTransparent,
				StrokeWidth: 1,
			},
		})
	}

	ch := chart.Chart{
		Title:      opts.Title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: padTop, Left: padLeft, Right: padRight, Bottom: padBottom}},
		XAxis: chart.XAxis{
			Name:           "frame",
			Range:          xRange(xs),
			ValueFormatter: intFormatter,
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: float64(max(maxCount, 1))},
			Ticks:          countTicks(maxCount),
			ValueFormatter: intFormatter,
		},
		Series: series,
	}
	if len(c.Series) > 0 {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}
	return ch
}

// highestCount is the largest count of any series in any frame.
func highestCount(c *analytics.Chart) int {
	top := 0
	for _, r := range c.Records {
		for _, s := range c.Series {
			if n := r.Counts[s.Name]; n > top {
				top = n
			}
		}
	}
	return top
}

// xRange spans the frames, widened by one frame when there is only one so
// the range is never empty.
func xRange(xs []float64) *chart.ContinuousRange {
	if len(xs) == 0 {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	lo, hi := xs[0], xs[len(xs)-1]
	if hi <= lo {
		hi = lo + 1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func countTicks(maxCount int) []chart.Tick {
	top := max(maxCount, 1)
	step := 1
	for top/step > 5 {
		step *= 2
	}
	var ticks []chart.Tick
	for v := 0; v <= top; v += step {
		ticks = append(ticks, chart.Tick{Value: float64(v), Label: strconv.Itoa(v)})
	}
	if ticks[len(ticks)-1].Value != float64(top) {
		ticks = append(ticks, chart.Tick{Value: float64(top), Label: strconv.Itoa(top)})
	}
	return ticks
}

func intFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.Itoa(int(f))
	}
	return ""
}

func hexToColor(hex string) drawing.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	return drawing.ColorFromHex(hex)
}
