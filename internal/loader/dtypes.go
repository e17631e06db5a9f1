package loader

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/gradecast/internal/table"
)

// DtypeChange requests a new dtype for one column.
type DtypeChange struct {
	Column string     `json:"column" validate:"required"`
	Kind   table.Kind `json:"dtype"`
}

// ConversionResult reports the outcome of one DtypeChange.
type ConversionResult struct {
	Column  string     `json:"column"`
	Kind    table.Kind `json:"dtype"`
	Changed bool       `json:"changed"`
	Err     error      `json:"-"`
}

// Message returns the failure text, or "" on success.
func (r ConversionResult) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ParseDtypeChange parses "column=dtype".
func ParseDtypeChange(s string) (DtypeChange, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return DtypeChange{}, fmt.Errorf("invalid dtype change %q (want column=dtype)", s)
	}
	k, err := table.ParseKind(s[i+1:])
	if err != nil {
		return DtypeChange{}, err
	}
	return DtypeChange{Column: strings.TrimSpace(s[:i]), Kind: k}, nil
}

// ApplyDtypes converts columns in place, one change at a time. A failed
// change leaves its column untouched and does not stop the others.
func ApplyDtypes(t *table.Table, changes []DtypeChange) []ConversionResult {
	out := make([]ConversionResult, 0, len(changes))
	for _, ch := range changes {
		res := ConversionResult{Column: ch.Column, Kind: ch.Kind}
		col, ok := t.Column(ch.Column)
		switch {
		case !ok:
			res.Err = fmt.Errorf("%w: %s", table.ErrUnknownColumn, ch.Column)
		case col.Kind == ch.Kind:
		default:
			conv, err := col.Convert(ch.Kind)
			if err != nil {
				res.Err = fmt.Errorf("convert %s to %s: %w", ch.Column, ch.Kind, err)
				break
			}
			if err := t.ReplaceColumn(conv); err != nil {
				res.Err = err
				break
			}
			res.Changed = true
		}
		out = append(out, res)
	}
	return out
}

// Failed returns the results that carry an error.
func Failed(results []ConversionResult) []ConversionResult {
	var out []ConversionResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
