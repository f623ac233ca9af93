package plot

import "github.com/wcharczuk/go-chart/v2"

type chartData interface {
	Title() string
	yAxisName() string
	yValues() []float64
	calculateChartDimensions(float64) (int, int)
	generateBarValues() []chart.Value
}
