package summary

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pivolan/textile_dashboard/domain/models"
)

// NumberStats profiles the numeric cells of one column. Figures are rounded
// to two decimals.
type NumberStats struct {
	Average   float64
	Median    float64
	Min       float64
	Max       float64
	Count     int
	Quantiles map[float64]float64
	IQR       float64   // Q3 - Q1
	Outliers  []float64 // outside Q1 - 1.5*IQR .. Q3 + 1.5*IQR, in row order
}

var quantileLevels = []float64{0.01, 0.025, 0.1, 0.25, 0.75, 0.9, 0.975, 0.99}

// Describe profiles the numeric values of column. It returns nil when the
// column holds no numeric value.
func Describe(table *models.Table, column string) *NumberStats {
	var s sample
	for _, row := range rowsOf(table) {
		if f, ok := Numeric(row[column]); ok {
			s.values = append(s.values, f)
		}
	}
	if len(s.values) == 0 {
		return nil
	}
	s.sorted = append([]float64(nil), s.values...)
	sort.Float64s(s.sorted)

	st := &NumberStats{
		Average:   RoundTo2(s.mean()),
		Median:    RoundTo2(s.quantile(0.5)),
		Min:       RoundTo2(s.sorted[0]),
		Max:       RoundTo2(s.sorted[len(s.sorted)-1]),
		Count:     len(s.values),
		Quantiles: make(map[float64]float64, len(quantileLevels)),
	}
	for _, p := range quantileLevels {
		st.Quantiles[p] = RoundTo2(s.quantile(p))
	}
	q1, q3 := st.Quantiles[0.25], st.Quantiles[0.75]
	st.IQR = RoundTo2(q3 - q1)
	st.Outliers = s.outside(q1-1.5*st.IQR, q3+1.5*st.IQR)
	return st
}

// sample keeps values in row order next to a sorted copy.
type sample struct {
	values []float64
	sorted []float64
}

func (s sample) mean() float64 {
	var total float64
	for _, v := range s.values {
		total += v
	}
	return total / float64(len(s.values))
}

// quantile interpolates linearly between the closest ranks.
func (s sample) quantile(p float64) float64 {
	pos := p * float64(len(s.sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return s.sorted[lo] + (pos-float64(lo))*(s.sorted[hi]-s.sorted[lo])
}

func (s sample) outside(lo, hi float64) []float64 {
	out := []float64{}
	for _, v := range s.values {
		if v < lo || v > hi {
			out = append(out, v)
		}
	}
	return out
}

// TopValues returns the n most frequent non-null values of column.
// Ties keep first-appearance order. n <= 0 returns all values.
func TopValues(table *models.Table, column string, n int) []models.ValueCount {
	counts := make(map[string]int64)
	var order []string
	var total int64
	for _, row := range rowsOf(table) {
		v, ok := row[column]
		if !ok || v.IsNull {
			continue
		}
		if _, seen := counts[v.Formatted]; !seen {
			order = append(order, v.Formatted)
		}
		counts[v.Formatted]++
		total++
	}

	out := make([]models.ValueCount, 0, len(order))
	for _, val := range order {
		out = append(out, models.ValueCount{
			Value:   val,
			Count:   counts[val],
			Percent: RoundTo2(float64(counts[val]) * 100 / float64(total)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// RoundTo2 rounds to 2 decimal places.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int64) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", FormatInt(n/1000), n%1000)
}

// FormatAmount formats a number with two decimals and comma separators.
func FormatAmount(amount float64) string {
	s := fmt.Sprintf("%.2f", math.Abs(amount))
	intPart, decPart, _ := strings.Cut(s, ".")
	var parts []string
	for len(intPart) > 3 {
		parts = append([]string{intPart[len(intPart)-3:]}, parts...)
		intPart = intPart[:len(intPart)-3]
	}
	parts = append([]string{intPart}, parts...)
	result := strings.Join(parts, ",") + "." + decPart
	if amount < 0 && result != "0.00" {
		result = "-" + result
	}
	return result
}
