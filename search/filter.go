package search

import (
	"strings"

	"github.com/pivolan/textile_dashboard/domain/models"
)

// Filter returns the rows of table where at least one scoped column holds
// query as a case-insensitive substring of its text. An empty scope means
// every column of the table. An empty query or table returns table itself.
//
// Matching is literal containment. Null and absent cells never match.
// Row order is preserved and the source table is never modified.
func Filter(table *models.Table, query string, scope ...string) *models.Table {
	if table.IsEmpty() || query == "" {
		return table
	}
	if len(scope) == 0 {
		scope = table.Columns
	}

	needle := strings.ToLower(query)
	rows := make([]models.Row, 0, len(table.Rows))
	for _, row := range table.Rows {
		if Matches(row, needle, scope) {
			rows = append(rows, row)
		}
	}
	return table.WithRows(rows)
}

// Matches reports whether any scoped cell of row contains the lowercased needle.
func Matches(row models.Row, needle string, scope []string) bool {
	for _, column := range scope {
		v, ok := row[column]
		if !ok || v.IsNull {
			continue
		}
		if strings.Contains(strings.ToLower(v.Formatted), needle) {
			return true
		}
	}
	return false
}
