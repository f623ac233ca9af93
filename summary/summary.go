package summary

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pivolan/go_utils"
	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/domain/models"
)

type Kind string

const (
	Count            Kind = "count"
	ConditionalCount Kind = "conditional_count"
	Sum              Kind = "sum"
	Mean             Kind = "mean"
	DistinctCount    Kind = "distinct_count"
)

var kindNames = []string{string(Count), string(ConditionalCount), string(Sum), string(Mean), string(DistinctCount)}

var ErrUnknownKind = errors.New("unknown metric kind")

// Known reports whether Summarize can evaluate rules of kind k.
func (k Kind) Known() bool {
	return go_utils.InArray(string(k), kindNames)
}

// Predicate decides whether a present, non-null cell is counted.
type Predicate func(models.Value) bool

// IsTrue accepts boolean true and the text "true" in any case.
func IsTrue(v models.Value) bool {
	if b, ok := v.Bool(); ok {
		return b
	}
	return v.Kind == models.KindString && strings.EqualFold(strings.TrimSpace(v.Formatted), "true")
}

// Rule is a named aggregation shown on a page.
type Rule struct {
	Name      string
	Kind      Kind
	Column    string
	Predicate Predicate
}

func CountRule(name string) Rule { return Rule{Name: name, Kind: Count} }

func ConditionalCountRule(name, column string, p Predicate) Rule {
	return Rule{Name: name, Kind: ConditionalCount, Column: column, Predicate: p}
}

func SumRule(name, column string) Rule { return Rule{Name: name, Kind: Sum, Column: column} }

func MeanRule(name, column string) Rule { return Rule{Name: name, Kind: Mean, Column: column} }

func DistinctCountRule(name, column string) Rule {
	return Rule{Name: name, Kind: DistinctCount, Column: column}
}

// Result is a metric value. Applicable is false when there was no data
// to aggregate; it renders as "N/A".
type Result struct {
	Value      float64 `json:"value"`
	Applicable bool    `json:"applicable"`
}

func NotApplicable() Result { return Result{} }

func value(v float64) Result { return Result{Value: v, Applicable: true} }

func (r Result) String() string {
	if !r.Applicable {
		return "N/A"
	}
	if r.Value == math.Trunc(r.Value) && math.Abs(r.Value) < 1e15 {
		return FormatInt(int64(r.Value))
	}
	return FormatAmount(r.Value)
}

type Metric struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Result Result `json:"result"`
}

// Summary holds metric results in rule order.
type Summary []Metric

// Get returns the result for the named metric.
func (s Summary) Get(name string) (Result, bool) {
	for _, m := range s {
		if m.Name == name {
			return m.Result, true
		}
	}
	return Result{}, false
}

// Summarize evaluates rules over table without modifying it.
//
// Counting rules yield 0 when their column is absent. Sum and mean yield
// not applicable when no numeric value is present, which covers absent
// columns and empty tables.
func Summarize(table *models.Table, rules []Rule) Summary {
	out := make(Summary, 0, len(rules))
	for _, r := range rules {
		out = append(out, Metric{Name: r.Name, Kind: r.Kind, Result: evaluate(table, r)})
	}
	return out
}

func evaluate(table *models.Table, r Rule) Result {
	switch r.Kind {
	case Count:
		return value(float64(table.Len()))
	case ConditionalCount:
		return value(float64(countWhere(table, r.Column, r.Predicate)))
	case Sum:
		total, n := numericTotal(table, r.Column)
		if n == 0 {
			return NotApplicable()
		}
		return value(total)
	case Mean:
		total, n := numericTotal(table, r.Column)
		if n == 0 {
			return NotApplicable()
		}
		return value(total / float64(n))
	case DistinctCount:
		return value(float64(distinct(table, r.Column)))
	}
	core.Warnf(context.Background(), "metric %q: unknown kind %q", r.Name, r.Kind)
	return NotApplicable()
}

// Check reports rules of an unknown kind and rules whose column is missing
// from the table schema.
func Check(table *models.Table, rules []Rule) error {
	var errs []error
	for _, r := range rules {
		if !r.Kind.Known() {
			errs = append(errs, fmt.Errorf("%s: %q: %w", r.Name, r.Kind, ErrUnknownKind))
			continue
		}
		if r.Kind == Count || r.Column == "" {
			continue
		}
		if !table.HasColumn(r.Column) {
			errs = append(errs, fmt.Errorf("%s: %q: %w", r.Name, r.Column, models.ErrSchemaMismatch))
		}
	}
	return errors.Join(errs...)
}

func countWhere(table *models.Table, column string, p Predicate) int {
	if p == nil {
		p = IsTrue
	}
	n := 0
	for _, row := range rowsOf(table) {
		v, ok := row[column]
		if ok && !v.IsNull && p(v) {
			n++
		}
	}
	return n
}

func numericTotal(table *models.Table, column string) (float64, int) {
	var total float64
	n := 0
	for _, row := range rowsOf(table) {
		if f, ok := Numeric(row[column]); ok {
			total += f
			n++
		}
	}
	return total, n
}

func distinct(table *models.Table, column string) int {
	seen := make(map[string]struct{})
	for _, row := range rowsOf(table) {
		v, ok := row[column]
		if !ok || v.IsNull {
			continue
		}
		seen[v.Formatted] = struct{}{}
	}
	return len(seen)
}

func rowsOf(table *models.Table) []models.Row {
	if table == nil {
		return nil
	}
	return table.Rows
}

var amountReplacer = strings.NewReplacer(",", "", "$", "", " ", "")

// Numeric coerces a cell to a number. Text such as "$1,200.50" is accepted.
func Numeric(v models.Value) (float64, bool) {
	if v.IsNull {
		return 0, false
	}
	if f, ok := v.Float(); ok {
		return f, true
	}
	if v.Kind != models.KindString {
		return 0, false
	}
	s := amountReplacer.Replace(strings.TrimSpace(v.Formatted))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
