package render

import (
	"fmt"
	"math"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/kdimtricp/framechart/internal/analytics"
)

// PlotArea measures the box go-chart draws the lines of c into, repeating the
// two-pass axis layout of chart.Chart.Render. It returns the box together with
// the x range whose Translate maps a frame to its offset from box.Left.
func PlotArea(c *analytics.Chart, opts Options) (chart.Box, chart.Range, error) {
	ch := buildChart(c, analytics.Palette{}, opts)

	r, err := chart.PNG(ch.GetWidth(), ch.GetHeight())
	if err != nil {
		return chart.Box{}, nil, fmt.Errorf("creating renderer: %w", err)
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return chart.Box{}, nil, fmt.Errorf("loading chart font: %w", err)
	}
	r.SetDPI(ch.GetDPI(chart.DefaultDPI))

	axisStyle := chart.Style{
		Font:        font,
		FontSize:    chart.DefaultAxisFontSize,
		StrokeWidth: chart.DefaultAxisLineWidth,
	}

	xr, yr := ch.XAxis.Range, ch.YAxis.Range
	box := ch.Box()
	for pass := 0; pass < 2; pass++ {
		xr.SetDomain(box.Width())
		yr.SetDomain(box.Height())

		xt := ch.XAxis.GetTicks(r, xr, axisStyle, ch.XAxis.ValueFormatter)
		yt := ch.YAxis.GetTicks(r, yr, axisStyle, ch.YAxis.ValueFormatter)

		outer := box.Clone().
			Grow(ch.XAxis.Measure(r, box, xr, axisStyle, xt)).
			Grow(ch.YAxis.Measure(r, box, yr, axisStyle, yt))
		box = box.OuterConstrain(ch.Box(), outer)
	}
	xr.SetDomain(box.Width())

	return box, xr, nil
}

// NearestFrame maps a click at pixel x on the rendered image of c to the
// label of the closest frame, the way the chart reports its active label.
// opts must match the options the image was rendered with. It returns false
// when there are no frames or x falls outside the image.
func NearestFrame(c *analytics.Chart, x float64, opts Options) (string, bool) {
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	if len(c.Records) == 0 || x < 0 || x > float64(width) {
		return "", false
	}

	box, xr, err := PlotArea(c, opts)
	if err != nil {
		return "", false
	}

	best := c.Records[0].Frame
	bestD := math.MaxFloat64
	for _, f := range c.Frames() {
		px := float64(box.Left + xr.Translate(float64(f)))
		if d := math.Abs(px - x); d < bestD {
			bestD = d
			best = f
		}
	}
	return strconv.Itoa(best), true
}
