package summary

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pivolan/textile_dashboard/domain/models"
)

// RenderTable draws up to limit rows of t as a text table. limit <= 0
// renders every row.
func RenderTable(t *models.Table, limit int) string {
	w := tableWriter(t, limit)
	w.SetStyle(table.StyleLight)
	return w.Render()
}

// RenderMarkdown is RenderTable in markdown form.
func RenderMarkdown(t *models.Table, limit int) string {
	return tableWriter(t, limit).RenderMarkdown()
}

func tableWriter(t *models.Table, limit int) table.Writer {
	w := table.NewWriter()
	if t == nil || len(t.Columns) == 0 {
		w.AppendHeader(table.Row{"(no data)"})
		return w
	}

	header := make(table.Row, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	w.AppendHeader(header)

	rows := t.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for _, r := range rows {
		line := make(table.Row, len(t.Columns))
		for i, c := range t.Columns {
			line[i] = r[c].Formatted
		}
		w.AppendRow(line)
	}
	if len(rows) < t.Len() {
		w.AppendFooter(table.Row{fmt.Sprintf("%d of %d rows", len(rows), t.Len())})
	}
	return w
}

// RenderSummary draws metric results as a two column table.
func RenderSummary(s Summary) string {
	w := table.NewWriter()
	w.AppendHeader(table.Row{"Metric", "Value"})
	for _, m := range s {
		w.AppendRow(table.Row{m.Name, m.Result.String()})
	}
	w.SetStyle(table.StyleLight)
	return w.Render()
}

// RenderStats draws a numeric profile.
func RenderStats(column string, st *NumberStats) string {
	if st == nil {
		return fmt.Sprintf("%s: no numeric values", column)
	}
	w := table.NewWriter()
	w.SetTitle(column)
	w.AppendRows([]table.Row{
		{"Count", st.Count},
		{"Average", FormatAmount(st.Average)},
		{"Median", FormatAmount(st.Median)},
		{"Min", FormatAmount(st.Min)},
		{"Max", FormatAmount(st.Max)},
		{"Q1 (25%)", FormatAmount(st.Quantiles[0.25])},
		{"Q3 (75%)", FormatAmount(st.Quantiles[0.75])},
		{"IQR", FormatAmount(st.IQR)},
		{"Outliers", len(st.Outliers)},
	})
	w.SetStyle(table.StyleLight)
	return w.Render()
}
