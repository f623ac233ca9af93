package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pivolan/textile_dashboard/domain/models"
)

// missing cell markers, compared after trimming
var nullMarkers = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// ParseCSV reads a CSV stream into a table. Column kinds are inferred over
// all rows: a column is Bool or Number only if every non-missing cell parses
// as such, otherwise it is String.
func ParseCSV(r io.Reader, name string) (*models.Table, error) {
	br := bufio.NewReader(r)
	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(br)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if err == io.EOF {
		return models.EmptyTable(name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	var records [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue // skip malformed rows
			}
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		records = append(records, rec)
	}

	var next []string
	if len(records) > 0 {
		next = records[0]
	}
	header := DetectHeader(first, next)
	headers := header.Columns
	if header.Data {
		records = append([][]string{first}, records...)
	}

	kinds := inferKinds(headers, records)

	table := &models.Table{Name: name, Columns: headers, Rows: make([]models.Row, 0, len(records))}
	for _, rec := range records {
		row := make(models.Row, len(headers))
		for i, h := range headers {
			if i >= len(rec) {
				break
			}
			row[h] = convertCell(rec[i], kinds[i])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// WriteCSV serializes a table using Formatted cell text. Null and absent
// cells are written empty.
func WriteCSV(w io.Writer, table *models.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	rec := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, c := range table.Columns {
			rec[i] = row[c].Formatted
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// sniffDelimiter picks the most frequent of , ; and tab in the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(4096)
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(string(line), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

var kindWeight = map[models.Kind]int{
	models.KindNull:   0,
	models.KindBool:   1,
	models.KindNumber: 2,
	models.KindString: 3,
}

func inferKinds(headers []string, records [][]string) []models.Kind {
	kinds := make([]models.Kind, len(headers))
	for i := range headers {
		k := models.KindNull
		for _, rec := range records {
			if i >= len(rec) {
				continue
			}
			k = widen(k, cellKind(rec[i]))
			if k == models.KindString {
				break
			}
		}
		kinds[i] = k
	}
	return kinds
}

func widen(current, next models.Kind) models.Kind {
	if next == models.KindNull || current == next {
		return current
	}
	if current == models.KindNull {
		return next
	}
	// bool and number never mix
	if (current == models.KindBool) != (next == models.KindBool) {
		return models.KindString
	}
	if kindWeight[next] > kindWeight[current] {
		return next
	}
	return current
}

func cellKind(cell string) models.Kind {
	s := strings.TrimSpace(cell)
	if nullMarkers[s] {
		return models.KindNull
	}
	if _, ok := parseBool(s); ok {
		return models.KindBool
	}
	if _, ok := parseNumber(s); ok {
		return models.KindNumber
	}
	return models.KindString
}

func convertCell(cell string, kind models.Kind) models.Value {
	s := strings.TrimSpace(cell)
	if nullMarkers[s] {
		return models.NullValue()
	}
	switch kind {
	case models.KindBool:
		if b, ok := parseBool(s); ok {
			return models.NewValue(b)
		}
	case models.KindNumber:
		if f, ok := parseNumber(s); ok {
			return models.NewValue(f)
		}
	}
	return models.NewValue(cell)
}

func parseBool(s string) (bool, bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
