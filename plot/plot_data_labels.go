package plot

import (
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// LabelledData is one bar per label, e.g. page metrics or top values.
type LabelledData struct {
	labels []string
	values []float64
	yName  string
	title  string
}

// NewLabelledData pairs labels with values. Extra entries on either side
// are dropped.
func NewLabelledData(title, yName string, labels []string, values []float64) LabelledData {
	n := len(labels)
	if len(values) < n {
		n = len(values)
	}
	return LabelledData{
		labels: labels[:n],
		values: values[:n],
		yName:  yName,
		title:  title,
	}
}

func (d LabelledData) Title() string {
	return d.title
}

func (d LabelledData) yAxisName() string {
	return d.yName
}

func (d LabelledData) yValues() []float64 {
	return d.values
}

func (d LabelledData) calculateChartDimensions(minBarWidth float64) (int, int) {
	return chartDimensions(len(d.labels), minBarWidth)
}

func (d LabelledData) generateBarValues() []chart.Value {
	bars := make([]chart.Value, 0, len(d.labels))
	for i, label := range d.labels {
		bars = append(bars, chart.Value{
			Value: d.values[i],
			Label: label,
			Style: chart.Style{
				FillColor: drawing.ColorPurple.WithAlpha(100),
			},
		})
	}
	return bars
}

// chartDimensions sizes the canvas from the number of bars.
func chartDimensions(bars int, minBarWidth float64) (width, height int) {
	if bars <= 0 || minBarWidth <= 0 {
		return 0, 0
	}
	x := 1.1
	if bars < 2 {
		x = 10.0
	} else if bars < 10 {
		x = 3.0
	}

	const (
		paddingY     = 100        // отступ для оси Y и подписей
		spacingRatio = 0.2        // соотношение отступа между столбцами к ширине столбца
		aspectRatio  = 9.0 / 16.0 // соотношение сторон по умолчанию
	)

	barSpacing := minBarWidth * spacingRatio
	totalWidth := (minBarWidth+barSpacing)*float64(bars) + paddingY
	width = int(totalWidth*x) + paddingY
	height = int(float64(width) * aspectRatio)
	return width, height
}
