package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/domain/models"
	"github.com/pivolan/textile_dashboard/pages"
	"github.com/pivolan/textile_dashboard/plot"
	"github.com/pivolan/textile_dashboard/summary"
)

type navItem struct {
	Title   string
	Href    string
	Current bool
}

type pageData struct {
	Page    pages.Page
	Nav     []navItem
	Query   string
	Warning string
	Metrics summary.Summary
	Columns []string
	Rows    [][]models.Value
	Shown   int
	Matched int
	Total   int
	Active  bool
}

func navigation(current pages.Page) []navItem {
	var out []navItem
	for _, p := range pages.All() {
		href := "/page/" + p.Slug
		if p.IsHome() {
			href = "/"
		}
		out = append(out, navItem{Title: p.Title, Href: href, Current: p.Slug == current.Slug})
	}
	return out
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	state := s.session(w, r)
	s.render(w, r, "home", pageData{
		Page:   pages.Home,
		Nav:    navigation(pages.Home),
		Active: state.Active(),
	})
}

// lookupPage resolves {name}, writing 404 when it is unknown.
func lookupPage(w http.ResponseWriter, r *http.Request) (pages.Page, bool) {
	p, ok := pages.Lookup(r.PathValue("name"))
	if !ok {
		sendErrorResponse(w, "Unknown page "+r.PathValue("name"), http.StatusNotFound)
		return pages.Page{}, false
	}
	return p, true
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	p, ok := lookupPage(w, r)
	if !ok {
		return
	}
	if p.IsHome() {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	v := pages.Render(r.Context(), s.loader, p, r.URL.Query().Get("q"))

	data := pageData{
		Page:    p,
		Nav:     navigation(p),
		Query:   v.Query,
		Warning: v.Warning,
		Metrics: v.Summary,
		Columns: v.Table.Columns,
		Matched: v.Table.Len(),
		Total:   v.Total,
	}
	rows := v.Table.Rows
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for _, row := range rows {
		line := make([]models.Value, len(v.Table.Columns))
		for i, c := range v.Table.Columns {
			if cell, ok := row[c]; ok {
				line[i] = cell
			} else {
				line[i] = models.NullValue()
			}
		}
		data.Rows = append(data.Rows, line)
	}
	data.Shown = len(data.Rows)
	s.render(w, r, "page", data)
}

// PageResponse is the JSON form of a page view.
type PageResponse struct {
	Page    string              `json:"page"`
	Query   string              `json:"query"`
	Warning string              `json:"warning,omitempty"`
	Total   int                 `json:"total"`
	Matched int                 `json:"matched"`
	Columns []string            `json:"columns"`
	Metrics []MetricResponse    `json:"metrics"`
	Stats   *StatsResponse      `json:"stats,omitempty"`
	Top     []models.ValueCount `json:"top,omitempty"`
	Rows    []map[string]any    `json:"rows"`
}

type MetricResponse struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Value      float64 `json:"value"`
	Applicable bool    `json:"applicable"`
	Display    string  `json:"display"`
}

type StatsResponse struct {
	Column    string             `json:"column"`
	Count     int                `json:"count"`
	Average   float64            `json:"average"`
	Median    float64            `json:"median"`
	Min       float64            `json:"min"`
	Max       float64            `json:"max"`
	IQR       float64            `json:"iqr"`
	Quantiles map[string]float64 `json:"quantiles"`
	Outliers  int                `json:"outliers"`
}

func newStatsResponse(column string, st *summary.NumberStats) *StatsResponse {
	q := make(map[string]float64, len(st.Quantiles))
	for p, v := range st.Quantiles {
		q[strconv.FormatFloat(p*100, 'f', -1, 64)+"%"] = v
	}
	return &StatsResponse{
		Column:    column,
		Count:     st.Count,
		Average:   st.Average,
		Median:    st.Median,
		Min:       st.Min,
		Max:       st.Max,
		IQR:       st.IQR,
		Quantiles: q,
		Outliers:  len(st.Outliers),
	}
}

func (s *Server) handlePageJSON(w http.ResponseWriter, r *http.Request) {
	p, ok := lookupPage(w, r)
	if !ok {
		return
	}
	if p.IsHome() {
		sendErrorResponse(w, "home has no dataset", http.StatusNotFound)
		return
	}
	v := pages.Render(r.Context(), s.loader, p, r.URL.Query().Get("q"))

	resp := PageResponse{
		Page:    p.Slug,
		Query:   v.Query,
		Warning: v.Warning,
		Total:   v.Total,
		Matched: v.Table.Len(),
		Columns: v.Table.Columns,
		Metrics: make([]MetricResponse, 0, len(v.Summary)),
		Top:     v.Top,
		Rows:    v.Records(0),
	}
	if resp.Columns == nil {
		resp.Columns = []string{}
	}
	if v.Stats != nil {
		resp.Stats = newStatsResponse(p.DescribeColumn, v.Stats)
	}
	for _, m := range v.Summary {
		resp.Metrics = append(resp.Metrics, MetricResponse{
			Name:       m.Name,
			Kind:       string(m.Kind),
			Value:      m.Result.Value,
			Applicable: m.Result.Applicable,
			Display:    m.Result.String(),
		})
	}
	sendJSON(w, resp)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	p, ok := lookupPage(w, r)
	if !ok {
		return
	}
	column := r.URL.Query().Get("column")
	if column == "" {
		column = p.ChartColumn
	}
	v := pages.Render(r.Context(), s.loader, p, r.URL.Query().Get("q"))
	if !v.Table.HasColumn(column) {
		sendErrorResponse(w, "Unknown column "+column, http.StatusNotFound)
		return
	}

	var data []byte
	var err error
	if r.URL.Query().Get("kind") == "histogram" {
		data, err = histogramChart(v, column)
	} else {
		data, err = topValuesChart(v, column)
	}
	if errors.Is(err, plot.ErrNoData) {
		sendErrorResponse(w, "No values to plot in "+column, http.StatusNotFound)
		return
	}
	if err != nil {
		core.Errorf(r.Context(), "chart %s/%s: %v", p.Slug, column, err)
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func topValuesChart(v pages.View, column string) ([]byte, error) {
	top := summary.TopValues(v.Table, column, 20)
	labels := make([]string, 0, len(top))
	values := make([]float64, 0, len(top))
	for _, vc := range top {
		labels = append(labels, vc.Value)
		values = append(values, float64(vc.Count))
	}
	return plot.DrawBarChart(plot.NewLabelledData(v.Page.Title+": "+column, "rows", labels, values))
}

func histogramChart(v pages.View, column string) ([]byte, error) {
	var values []float64
	for _, row := range v.Table.Rows {
		if f, ok := summary.Numeric(row[column]); ok {
			values = append(values, f)
		}
	}
	return plot.DrawBarChart(plot.NewHistogram(v.Page.Title+": "+column, values, 10))
}

// handleMetricsChart draws the applicable page metrics with go-echarts.
func (s *Server) handleMetricsChart(w http.ResponseWriter, r *http.Request) {
	p, ok := lookupPage(w, r)
	if !ok {
		return
	}
	v := pages.Render(r.Context(), s.loader, p, r.URL.Query().Get("q"))

	names := make([]string, 0, len(v.Summary))
	items := make([]opts.BarData, 0, len(v.Summary))
	for _, m := range v.Summary {
		if !m.Result.Applicable {
			continue
		}
		names = append(names, m.Name)
		items = append(items, opts.BarData{Value: summary.RoundTo2(m.Result.Value)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title:    p.Title,
		Subtitle: v.Warning,
	}))
	bar.SetXAxis(names).AddSeries("value", items)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := bar.Render(w); err != nil {
		core.Errorf(r.Context(), "metrics chart %s: %v", p.Slug, err)
	}
}
