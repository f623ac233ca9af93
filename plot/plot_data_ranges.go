package plot

import (
	"fmt"
	"math"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RangeData is a histogram: bar i counts values in [start[i], end[i]).
type RangeData struct {
	start, end []float64
	counts     []float64
	title      string
}

// NewHistogram splits values into equal width bins. Values equal to the
// maximum fall into the last bin.
func NewHistogram(title string, values []float64, bins int) RangeData {
	d := RangeData{title: title}
	if len(values) == 0 || bins <= 0 {
		return d
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		bins = 1
	}
	width := (hi - lo) / float64(bins)

	d.start = make([]float64, bins)
	d.end = make([]float64, bins)
	d.counts = make([]float64, bins)
	for i := 0; i < bins; i++ {
		d.start[i] = lo + float64(i)*width
		d.end[i] = lo + float64(i+1)*width
	}
	d.end[bins-1] = hi
	for _, v := range sorted {
		i := bins - 1
		if width > 0 {
			i = int(math.Floor((v - lo) / width))
		}
		if i >= bins {
			i = bins - 1
		}
		d.counts[i]++
	}
	return d
}

func (d RangeData) Title() string {
	return d.title
}

func (d RangeData) yAxisName() string {
	return "count"
}

func (d RangeData) yValues() []float64 {
	return d.counts
}

// Counts returns the number of values in each bin.
func (d RangeData) Counts() []float64 {
	return d.counts
}

func (d RangeData) calculateChartDimensions(minBarWidth float64) (int, int) {
	return chartDimensions(len(d.start), minBarWidth)
}

func (d RangeData) generateBarValues() []chart.Value {
	bars := make([]chart.Value, 0, len(d.start))
	for i := range d.start {
		bars = append(bars, chart.Value{
			Value: d.counts[i],
			Label: fmt.Sprintf("%.f-%.f", d.start[i], d.end[i]),
			Style: chart.Style{
				FillColor: drawing.ColorPurple.WithAlpha(100),
			},
		})
	}
	return bars
}
