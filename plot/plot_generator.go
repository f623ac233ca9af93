package plot

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2"
)

var ErrNoData = errors.New("nothing to plot")

const (
	barWidth     = 60
	minBarSlot   = 100
	fontSize     = 17
	titlePadding = 50
	// labelCharWidth approximates the pixel width of one rotated label character.
	labelCharWidth = 8
)

// DrawBarChart renders data as a PNG bar chart.
func DrawBarChart(data chartData) ([]byte, error) {
	bars := data.generateBarValues()
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	bottom := labelPadding(bars)
	width, height := data.calculateChartDimensions(minBarSlot)
	top, ticks := yTicks(maxOf(data.yValues()))

	graph := chart.BarChart{
		Title: data.Title(),
		Background: chart.Style{
			StrokeColor: chart.ColorBlack,
			Padding:     chart.Box{Top: titlePadding, Bottom: bottom},
		},
		Width:    width + bottom + titlePadding,
		Height:   height + titlePadding,
		BarWidth: barWidth,
		Bars:     bars,
		XAxis: chart.Style{
			StrokeWidth:         2,
			StrokeColor:         chart.ColorBlack,
			TextRotationDegrees: 88,
			FontSize:            fontSize,
		},
		YAxis: valueAxis(data.yAxisName(), top, ticks),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %q: %w", data.Title(), err)
	}
	return buf.Bytes(), nil
}

func valueAxis(name string, top float64, ticks []chart.Tick) chart.YAxis {
	return chart.YAxis{
		Name:  name,
		Range: &chart.ContinuousRange{Min: 0, Max: top},
		Ticks: ticks,
		Style: chart.Style{
			StrokeWidth: 2,
			StrokeColor: chart.ColorBlack,
			FontSize:    fontSize,
		},
		GridMajorStyle: chart.Style{
			StrokeColor:     chart.ColorBlack,
			StrokeWidth:     1,
			DotWidth:        1,
			StrokeDashArray: []float64{5, 5},
		},
	}
}

// yTicks rounds max up to a whole grid step and lays ticks along it.
func yTicks(max float64) (float64, []chart.Tick) {
	if max <= 0 {
		max = 1
	}
	step := gridStep(max)
	top := math.Ceil(max/step) * step

	var ticks []chart.Tick
	for i := 0; float64(i)*step <= top+step/2; i++ {
		v := float64(i) * step
		ticks = append(ticks, chart.Tick{Value: v, Label: fmt.Sprintf("%.1f", v)})
	}
	return top, ticks
}

// gridSteps maps the leading part of a value, scaled into [1, 10), to a
// grid step at the same scale.
var gridSteps = []struct{ upTo, step float64 }{
	{1, 0.2},
	{2, 0.5},
	{5, 1},
	{10, 2},
}

// gridStep picks a 1-2-5 style step giving roughly five grid lines up to max.
func gridStep(max float64) float64 {
	if max <= 0 {
		return 0
	}
	scale := math.Pow(10, math.Floor(math.Log10(max)))
	lead := max / scale

	step := gridSteps[len(gridSteps)-1].step
	for _, s := range gridSteps {
		if lead <= s.upTo {
			step = s.step
			break
		}
	}
	step *= scale
	if step >= 1 {
		return math.Round(step)
	}
	return step
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}

// labelPadding leaves room under the axis for the longest rotated label.
func labelPadding(bars []chart.Value) int {
	longest := 0
	for _, b := range bars {
		longest = max(longest, len(b.Label))
	}
	return longest * labelCharWidth
}
