package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column is a named, homogeneously typed sequence of cells. Numeric kinds
// keep their values in nums, object columns in strs; valid marks present cells.
type Column struct {
	Name  string
	Kind  Kind
	nums  []float64
	strs  []string
	valid []bool
}

// NewFloatColumn builds a numeric column. NaN values are stored as missing.
func NewFloatColumn(name string, kind Kind, vals []float64) *Column {
	if !kind.Numeric() {
		kind = KindFloat
	}
	c := &Column{Name: name, Kind: kind, nums: make([]float64, len(vals)), valid: make([]bool, len(vals))}
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		c.nums[i] = v
		c.valid[i] = true
	}
	return c
}

// NewTextColumn builds an object column. Cells listed in missing are stored as missing.
func NewTextColumn(name string, vals []string, missing []bool) *Column {
	c := &Column{Name: name, Kind: KindText, strs: make([]string, len(vals)), valid: make([]bool, len(vals))}
	for i, v := range vals {
		if i < len(missing) && missing[i] {
			continue
		}
		c.strs[i] = v
		c.valid[i] = true
	}
	return c
}

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.valid) }

// IsNull reports whether cell i is missing.
func (c *Column) IsNull(i int) bool { return !c.valid[i] }

// Missing counts missing cells.
func (c *Column) Missing() int {
	n := 0
	for _, ok := range c.valid {
		if !ok {
			n++
		}
	}
	return n
}

// Float returns the numeric value of cell i. ok is false for missing cells
// and for object columns.
func (c *Column) Float(i int) (v float64, ok bool) {
	if !c.Kind.Numeric() || !c.valid[i] {
		return 0, false
	}
	return c.nums[i], true
}

// Floats copies a numeric column into a slice, with NaN for missing cells.
func (c *Column) Floats() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		if v, ok := c.Float(i); ok {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Present returns the non-missing numeric values.
func (c *Column) Present() []float64 {
	out := make([]float64, 0, c.Len())
	for i := range c.valid {
		if v, ok := c.Float(i); ok {
			out = append(out, v)
		}
	}
	return out
}

// Text returns the string form of cell i ("" when missing).
func (c *Column) Text(i int) string {
	if !c.valid[i] {
		return ""
	}
	switch c.Kind {
	case KindInt:
		return strconv.FormatInt(int64(c.nums[i]), 10)
	case KindFloat:
		return strconv.FormatFloat(c.nums[i], 'f', -1, 64)
	default:
		return c.strs[i]
	}
}

// SetFloat stores v in cell i of a numeric column.
func (c *Column) SetFloat(i int, v float64) {
	if math.IsNaN(v) {
		c.valid[i] = false
		c.nums[i] = 0
		return
	}
	c.nums[i] = v
	c.valid[i] = true
}

// SetText stores s in cell i of an object column.
func (c *Column) SetText(i int, s string) {
	c.strs[i] = s
	c.valid[i] = true
}

// copyCell copies cell src of from into cell dst of c. Both columns share a kind.
func (c *Column) copyCell(dst int, from *Column, src int) {
	c.valid[dst] = from.valid[src]
	if c.Kind.Numeric() {
		c.nums[dst] = from.nums[src]
	} else {
		c.strs[dst] = from.strs[src]
	}
}

// Clone returns a deep copy.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, valid: append([]bool(nil), c.valid...)}
	if c.nums != nil {
		out.nums = append([]float64(nil), c.nums...)
	}
	if c.strs != nil {
		out.strs = append([]string(nil), c.strs...)
	}
	return out
}

// take returns a new column holding the given rows in order.
func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, valid: make([]bool, len(rows))}
	if c.Kind.Numeric() {
		out.nums = make([]float64, len(rows))
	} else {
		out.strs = make([]string, len(rows))
	}
	for j, r := range rows {
		out.copyCell(j, c, r)
	}
	return out
}

// Convert returns a copy of the column with the requested kind. The receiver
// is never modified, so a failed conversion leaves the table intact.
func (c *Column) Convert(kind Kind) (*Column, error) {
	if kind == c.Kind {
		return c.Clone(), nil
	}
	n := c.Len()
	out := &Column{Name: c.Name, Kind: kind, valid: make([]bool, n)}
	switch kind {
	case KindText:
		out.strs = make([]string, n)
		for i := 0; i < n; i++ {
			if c.valid[i] {
				out.strs[i] = c.Text(i)
				out.valid[i] = true
			}
		}
		return out, nil
	case KindFloat, KindInt:
		out.nums = make([]float64, n)
		for i := 0; i < n; i++ {
			if !c.valid[i] {
				if kind == KindInt {
					return nil, fmt.Errorf("cannot convert missing value at row %d to %s", i, kind)
				}
				continue
			}
			var v float64
			if c.Kind.Numeric() {
				v = c.nums[i]
			} else {
				f, ok := ParseNumber(c.strs[i])
				if !ok {
					return nil, fmt.Errorf("value %q at row %d is not a number", c.strs[i], i)
				}
				if kind == KindInt && !isIntegral(f) {
					return nil, fmt.Errorf("value %q at row %d is not an integer", c.strs[i], i)
				}
				v = f
			}
			if kind == KindInt {
				if math.IsInf(v, 0) {
					return nil, fmt.Errorf("cannot convert infinite value at row %d to %s", i, kind)
				}
				v = math.Trunc(v)
				if !fitsInt64(v) {
					return nil, fmt.Errorf("value %g at row %d is out of range for %s", v, i, kind)
				}
			}
			out.nums[i] = v
			out.valid[i] = true
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %s", kind)
	}
}

// missingTokens are cell spellings read as missing values.
var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "#n/a": {}, "nan": {}, "null": {}, "none": {}, "<na>": {}, "-nan": {},
}

// IsMissingToken reports whether a raw cell should be read as missing.
func IsMissingToken(s string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseNumber parses a plain finite decimal number, tolerating surrounding
// spaces and a leading '+'. Spellings of infinity and NaN are not numbers.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// fitsInt64 reports whether f lies inside the int64 range. 2^63 itself is
// exactly representable as a float64 but overflows int64.
func fitsInt64(f float64) bool {
	return f >= -(1<<63) && f < 1<<63
}

// InferColumn builds a column from raw cell strings, choosing int64 when every
// present cell is an integer, float64 when every present cell is numeric, and
// object otherwise. With decimalComma, "3,5" reads as 3.5.
func InferColumn(name string, raw []string, decimalComma bool) *Column {
	n := len(raw)
	missing := make([]bool, n)
	nums := make([]float64, n)
	numeric, integral, present := true, true, 0
	for i, s := range raw {
		if IsMissingToken(s) {
			missing[i] = true
			continue
		}
		present++
		if !numeric {
			continue
		}
		txt := s
		if decimalComma {
			txt = strings.ReplaceAll(strings.ReplaceAll(txt, ".", ""), ",", ".")
		}
		f, ok := ParseNumber(txt)
		if !ok {
			numeric = false
			continue
		}
		nums[i] = f
		if !isIntegral(f) || !fitsInt64(f) {
			integral = false
		}
	}
	if present == 0 || !numeric {
		return NewTextColumn(name, raw, missing)
	}
	kind := KindFloat
	if integral && present == n {
		kind = KindInt
	}
	c := &Column{Name: name, Kind: kind, nums: nums, valid: make([]bool, n)}
	for i := range raw {
		c.valid[i] = !missing[i]
		if missing[i] {
			c.nums[i] = 0
		}
	}
	return c
}
