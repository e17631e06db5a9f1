// Package table holds the in-memory working table: ordered, uniquely named
// columns of equal length, each typed as int64, float64 or object.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrDuplicateColumn is returned when a column name is already taken.
	ErrDuplicateColumn = errors.New("duplicate column name")
	// ErrLengthMismatch is returned when a column's length differs from the table's row count.
	ErrLengthMismatch = errors.New("column length does not match row count")
	// ErrUnknownColumn is returned when a named column does not exist.
	ErrUnknownColumn = errors.New("unknown column")
)

// Table is an ordered set of named columns sharing one row count.
type Table struct {
	Name  string
	cols  []*Column
	index map[string]int
}

// New returns an empty table.
func New(name string) *Table {
	return &Table{Name: name, index: make(map[string]int)}
}

// FromRecords builds a table from a header and string rows, inferring the
// dtype of every column. Short rows are padded with missing cells.
func FromRecords(name string, header []string, rows [][]string, decimalComma bool) (*Table, error) {
	t := New(name)
	names := uniqueHeader(header)
	for j, colName := range names {
		raw := make([]string, len(rows))
		for i, r := range rows {
			if j < len(r) {
				raw[i] = r[j]
			}
		}
		if err := t.AddColumn(InferColumn(colName, raw, decimalComma)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// uniqueHeader trims names, fills blanks and suffixes repeats (".1", ".2").
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for {
			if _, dup := seen[name]; !dup {
				break
			}
			seen[base]++
			name = fmt.Sprintf("%s.%d", base, seen[base])
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

// AddColumn appends c. Names must be unique and lengths must match.
func (t *Table) AddColumn(c *Column) error {
	if _, ok := t.index[c.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, c.Name)
	}
	if len(t.cols) > 0 && c.Len() != t.NumRows() {
		return fmt.Errorf("%w: %s has %d rows, table has %d", ErrLengthMismatch, c.Name, c.Len(), t.NumRows())
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// ReplaceColumn swaps in c for the existing column of the same name.
func (t *Table) ReplaceColumn(c *Column) error {
	i, ok := t.index[c.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, c.Name)
	}
	if c.Len() != t.NumRows() {
		return fmt.Errorf("%w: %s has %d rows, table has %d", ErrLengthMismatch, c.Name, c.Len(), t.NumRows())
	}
	t.cols[i] = c
	return nil
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column { return t.cols }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// Empty reports whether the table has no rows or no columns.
func (t *Table) Empty() bool { return t == nil || len(t.cols) == 0 || t.NumRows() == 0 }

// NumericColumns lists the names of int64 and float64 columns.
func (t *Table) NumericColumns() []string {
	var out []string
	for _, c := range t.cols {
		if c.Kind.Numeric() {
			out = append(out, c.Name)
		}
	}
	return out
}

// MissingTotal counts missing cells across the table.
func (t *Table) MissingTotal() int {
	n := 0
	for _, c := range t.cols {
		n += c.Missing()
	}
	return n
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := New(t.Name)
	for _, c := range t.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.Clone())
	}
	return out
}

// Take returns a new table holding the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	out := New(t.Name)
	for _, c := range t.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.take(rows))
	}
	return out
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	rows := make([]int, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return t.Take(rows)
}

// Row returns the string cells of row i.
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.cols))
	for j, c := range t.cols {
		out[j] = c.Text(i)
	}
	return out
}

// Head returns up to n rows as strings.
func (t *Table) Head(n int) [][]string {
	if n > t.NumRows() || n < 0 {
		n = t.NumRows()
	}
	out := make([][]string, n)
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

// WriteCSV writes the header and every row as UTF-8 CSV. Missing cells are empty.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < t.NumRows(); i++ {
		if err := cw.Write(t.Row(i)); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
