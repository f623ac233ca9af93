package dataset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Header is the outcome of inspecting the first CSV record.
type Header struct {
	Columns []string
	// Data is set when the first record holds values rather than names.
	// Columns are then generated as column_1, column_2...
	Data bool
}

var dateCell = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}(\s\d{2}:\d{2}:\d{2}(\.\d+)?)?|\d{2}[/.]\d{2}[/.]\d{4})$`)

type cellClass int

const (
	classBlank cellClass = iota
	classText
	classNumber
	classDate
)

func classify(cell string) cellClass {
	cell = trimCell(cell)
	switch {
	case cell == "":
		return classBlank
	case dateCell.MatchString(cell):
		return classDate
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return classNumber
	}
	return classText
}

// DetectHeader turns the first record into column names. Blank names become
// column_N and repeats get a numeric suffix. The record is taken as data only
// when every cell is a number or a date and next, the second record, has the
// same shape cell by cell. A header such as Customer,2023,2024 keeps its
// names because Customer is text.
func DetectHeader(first, next []string) *Header {
	if len(first) == 0 {
		return nil
	}

	h := &Header{Columns: make([]string, len(first))}
	if valuesOnly(first, next) {
		h.Data = true
		for i := range first {
			h.Columns[i] = placeholderColumn(i)
		}
		return h
	}
	for i, cell := range first {
		cell = trimCell(cell)
		if cell == "" {
			cell = placeholderColumn(i)
		}
		h.Columns[i] = cell
	}
	h.Columns = UniqueColumns(h.Columns)
	return h
}

func valuesOnly(first, next []string) bool {
	if len(next) != len(first) {
		return false
	}
	for i, cell := range first {
		c := classify(cell)
		if c != classNumber && c != classDate {
			return false
		}
		if n := classify(next[i]); n != c && n != classBlank {
			return false
		}
	}
	return true
}

func trimCell(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
}

func placeholderColumn(i int) string {
	return fmt.Sprintf("column_%d", i+1)
}

// UniqueColumns suffixes repeated names with _1, _2... in order of appearance.
func UniqueColumns(names []string) []string {
	taken := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		candidate := name
		for n := 1; taken[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}
