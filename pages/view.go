package pages

import (
	"context"
	"errors"
	"fmt"

	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/domain/models"
	"github.com/pivolan/textile_dashboard/search"
	"github.com/pivolan/textile_dashboard/summary"
)

const topValuesLimit = 10

// TableLoader is the part of dataset.Loader pages need.
type TableLoader interface {
	Load(ctx context.Context, name string) (*models.Table, error)
}

// View is a rendered page: the filtered table with its metrics.
type View struct {
	Page    Page
	Query   string
	Table   *models.Table
	Total   int
	Summary summary.Summary
	Stats   *summary.NumberStats
	Top     []models.ValueCount
	Warning string
}

// Render loads the page dataset, applies query over the page scope and
// computes metrics on the filtered rows. A missing dataset renders as an
// empty table with a warning.
func Render(ctx context.Context, loader TableLoader, page Page, query string) View {
	v := View{Page: page, Query: query}
	if page.IsHome() {
		return v
	}

	table, err := loader.Load(ctx, page.Dataset)
	switch {
	case errors.Is(err, models.ErrNotFound):
		v.Warning = fmt.Sprintf("Dataset %q was not found. Showing an empty table.", page.Dataset)
	case err != nil:
		core.Errorf(ctx, "page %s: %v", page.Slug, err)
		v.Warning = fmt.Sprintf("Dataset %q could not be loaded: %v", page.Dataset, err)
	}
	if table == nil {
		table = models.EmptyTable(page.Dataset)
	}
	if err == nil {
		if mismatch := summary.Check(table, page.Rules); mismatch != nil {
			core.Debugf(ctx, "page %s: %v", page.Slug, mismatch)
		}
	}

	v.Total = table.Len()
	v.Table = search.Filter(table, query, scopeFor(table, page.Scope)...)
	v.Summary = summary.Summarize(v.Table, page.Rules)
	if page.DescribeColumn != "" {
		v.Stats = summary.Describe(v.Table, page.DescribeColumn)
	}
	if page.ChartColumn != "" {
		v.Top = summary.TopValues(v.Table, page.ChartColumn, topValuesLimit)
	}
	return v
}

// scopeFor keeps the scope columns the table has. When it has none of them
// every column is searched.
func scopeFor(table *models.Table, scope []string) []string {
	var out []string
	for _, c := range scope {
		if table.HasColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

// Records returns up to limit filtered rows as column to value maps with
// null cells as nil. limit <= 0 returns every row.
func (v View) Records(limit int) []map[string]any {
	if v.Table == nil {
		return []map[string]any{}
	}
	rows := v.Table.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		rec := make(map[string]any, len(v.Table.Columns))
		for _, c := range v.Table.Columns {
			cell, ok := r[c]
			if !ok || cell.IsNull {
				rec[c] = nil
				continue
			}
			rec[c] = cell.Raw
		}
		out = append(out, rec)
	}
	return out
}
