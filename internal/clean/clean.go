// Package clean applies missing-value strategies to a working table.
package clean

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/gradecast/internal/table"
)

// Strategy names a missing-value treatment.
type Strategy string

const (
	// DropAll removes every row with a missing cell in any column.
	DropAll Strategy = "drop-all"
	// DropRows removes rows missing a value in the chosen column.
	DropRows Strategy = "drop-rows"
	// ForwardFill copies the previous present value down.
	ForwardFill Strategy = "ffill"
	// BackwardFill copies the next present value up.
	BackwardFill Strategy = "bfill"
	// MeanFill replaces gaps with the column mean. Numeric columns only.
	MeanFill Strategy = "mean"
	// ModeFill replaces gaps with the most frequent value.
	ModeFill Strategy = "mode"
)

var (
	// ErrNotNumeric is returned by MeanFill on an object column.
	ErrNotNumeric = errors.New("column is not numeric")
	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown cleaning strategy")
	// ErrNoValues is returned when a fill has no present value to draw from.
	ErrNoValues = errors.New("column has no present values")
)

// Strategies lists every strategy in menu order.
func Strategies() []Strategy {
	return []Strategy{DropAll, DropRows, ForwardFill, BackwardFill, MeanFill, ModeFill}
}

// ParseStrategy accepts a strategy name, ignoring case and '_' vs '-'.
func ParseStrategy(s string) (Strategy, error) {
	norm := Strategy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	for _, st := range Strategies() {
		if st == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// NeedsColumn reports whether the strategy targets a single column.
func (s Strategy) NeedsColumn() bool { return s != DropAll }

// MissingColumn is a column with at least one missing cell.
type MissingColumn struct {
	Name    string     `json:"name"`
	Kind    table.Kind `json:"dtype"`
	Missing int        `json:"missing"`
}

// MissingColumns lists the columns that have gaps, in table order.
func MissingColumns(t *table.Table) []MissingColumn {
	var out []MissingColumn
	for _, c := range t.Columns() {
		if n := c.Missing(); n > 0 {
			out = append(out, MissingColumn{Name: c.Name, Kind: c.Kind, Missing: n})
		}
	}
	return out
}

// Apply runs one strategy and returns the successor table. The input table
// is never modified; on error it remains the authoritative table.
func Apply(t *table.Table, column string, s Strategy) (*table.Table, error) {
	if s == DropAll {
		return t.Filter(func(i int) bool {
			for _, c := range t.Columns() {
				if c.IsNull(i) {
					return false
				}
			}
			return true
		}), nil
	}
	col, ok := t.Column(column)
	if !ok {
		return nil, fmt.Errorf("%w: %s", table.ErrUnknownColumn, column)
	}
	switch s {
	case DropRows:
		return t.Filter(func(i int) bool { return !col.IsNull(i) }), nil
	case ForwardFill, BackwardFill, MeanFill, ModeFill:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(s))
	}

	filled, err := fillColumn(col, s)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", s, column, err)
	}
	out := t.Clone()
	if err := out.ReplaceColumn(filled); err != nil {
		return nil, err
	}
	return out, nil
}

func fillColumn(col *table.Column, s Strategy) (*table.Column, error) {
	out := col.Clone()
	n := out.Len()
	switch s {
	case ForwardFill:
		last := -1
		for i := 0; i < n; i++ {
			if !col.IsNull(i) {
				last = i
			} else if last >= 0 {
				copyValue(out, i, col, last)
			}
		}
	case BackwardFill:
		next := -1
		for i := n - 1; i >= 0; i-- {
			if !col.IsNull(i) {
				next = i
			} else if next >= 0 {
				copyValue(out, i, col, next)
			}
		}
	case MeanFill:
		if !col.Kind.Numeric() {
			return nil, ErrNotNumeric
		}
		if col.Missing() == 0 {
			return out, nil
		}
		vals := col.Present()
		if len(vals) == 0 {
			return nil, ErrNoValues
		}
		mean := stat.Mean(vals, nil)
		if col.Kind == table.KindInt && mean != math.Trunc(mean) {
			conv, err := out.Convert(table.KindFloat)
			if err != nil {
				return nil, err
			}
			out = conv
		}
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				out.SetFloat(i, mean)
			}
		}
	case ModeFill:
		idx, ok := modeIndex(col)
		if !ok {
			return nil, ErrNoValues
		}
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				copyValue(out, i, col, idx)
			}
		}
	}
	return out, nil
}

func copyValue(dst *table.Column, i int, src *table.Column, j int) {
	if src.Kind.Numeric() {
		v, _ := src.Float(j)
		dst.SetFloat(i, v)
		return
	}
	dst.SetText(i, src.Text(j))
}

// modeIndex returns a row holding the most frequent present value. Ties go
// to the smallest value (numeric order for numbers, lexical for text).
func modeIndex(col *table.Column) (int, bool) {
	type entry struct {
		row   int
		count int
		num   float64
		text  string
	}
	counts := map[string]*entry{}
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			continue
		}
		key := col.Text(i)
		e, ok := counts[key]
		if !ok {
			e = &entry{row: i, text: key}
			e.num, _ = col.Float(i)
			counts[key] = e
		}
		e.count++
	}
	if len(counts) == 0 {
		return 0, false
	}
	entries := make([]*entry, 0, len(counts))
	for _, e := range counts {
		entries = append(entries, e)
	}
	numeric := col.Kind.Numeric()
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].count != entries[b].count {
			return entries[a].count > entries[b].count
		}
		if numeric {
			return entries[a].num < entries[b].num
		}
		return entries[a].text < entries[b].text
	})
	return entries[0].row, true
}
