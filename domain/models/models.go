package models

import (
	"fmt"
	"strconv"
)

// Kind is the data type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindString:
		return "String"
	case KindNumber:
		return "Number"
	case KindBool:
		return "Bool"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Value is a typed cell. Formatted is the text used for search and display.
type Value struct {
	Raw       interface{}
	Kind      Kind
	IsNull    bool
	Formatted string
}

// NewValue wraps a raw Go value. Ints are stored as float64.
func NewValue(raw interface{}) Value {
	switch v := raw.(type) {
	case nil:
		return NullValue()
	case Value:
		return v
	case string:
		return Value{Raw: v, Kind: KindString, Formatted: v}
	case bool:
		return Value{Raw: v, Kind: KindBool, Formatted: strconv.FormatBool(v)}
	case float64:
		return numberValue(v)
	case float32:
		return numberValue(float64(v))
	case int:
		return numberValue(float64(v))
	case int32:
		return numberValue(float64(v))
	case int64:
		return numberValue(float64(v))
	case uint64:
		return numberValue(float64(v))
	case []byte:
		return Value{Raw: string(v), Kind: KindString, Formatted: string(v)}
	default:
		return Value{Raw: v, Kind: KindString, Formatted: fmt.Sprintf("%v", v)}
	}
}

func numberValue(f float64) Value {
	return Value{Raw: f, Kind: KindNumber, Formatted: strconv.FormatFloat(f, 'f', -1, 64)}
}

// NullValue is a missing cell.
func NullValue() Value {
	return Value{Kind: KindNull, IsNull: true}
}

// Float returns the numeric value for KindNumber cells.
func (v Value) Float() (float64, bool) {
	if v.IsNull || v.Kind != KindNumber {
		return 0, false
	}
	f, ok := v.Raw.(float64)
	return f, ok
}

// Bool returns the boolean value for KindBool cells.
func (v Value) Bool() (bool, bool) {
	if v.IsNull || v.Kind != KindBool {
		return false, false
	}
	b, ok := v.Raw.(bool)
	return b, ok
}

func (v Value) String() string {
	return v.Formatted
}

// Row maps column name to value. A column missing from the map is absent.
type Row map[string]Value

// Table is an ordered set of rows sharing the Columns schema.
// Tables handed out by the loader are shared and must not be mutated.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// NewTable builds a table from column names and raw row values in column order.
func NewTable(name string, columns []string, rows ...[]interface{}) *Table {
	t := &Table{Name: name, Columns: append([]string(nil), columns...)}
	for _, raw := range rows {
		row := make(Row, len(columns))
		for i, c := range columns {
			if i < len(raw) {
				row[c] = NewValue(raw[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// EmptyTable is the placeholder shown when a dataset is missing.
func EmptyTable(name string) *Table {
	return &Table{Name: name}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// HasColumn reports whether the schema contains column.
func (t *Table) HasColumn(column string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// WithRows returns a table sharing t's schema with the given rows.
func (t *Table) WithRows(rows []Row) *Table {
	return &Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    rows,
	}
}

type ValueCount struct {
	Value   string
	Count   int64
	Percent float64
}
