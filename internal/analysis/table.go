// Package analysis summarizes a working table for the terminal and the API:
// shape, per-column dtype and gap counts, descriptive statistics, head rows
// and notes about missing data.
package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/gradecast/internal/table"
)

// Options controls what Describe computes.
type Options struct {
	// SampleRows is how many head rows to include.
	SampleRows int
	// TopValues caps the value counts listed for categorical columns.
	TopValues int
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// OutlierThreshold counts values with robust |z| above it; 0 disables.
	OutlierThreshold float64
}

// DefaultOptions returns the options used by the CLI and the API.
func DefaultOptions() Options {
	return Options{SampleRows: 5, TopValues: 5, OutlierThreshold: 3.5}
}

// Report is a markdown-friendly summary of a table.
type Report struct {
	Name         string          `json:"name"`
	Rows         int             `json:"rows"`
	Cols         []ColumnSummary `json:"columns"`
	Samples      [][]string      `json:"head"`
	MissingTotal int             `json:"missing_total"`
	Warnings     []string        `json:"notes,omitempty"`
	Corr         *CorrMatrix     `json:"correlations,omitempty"`
}

// ColumnSummary captures dtype, gap counts and statistics per column.
type ColumnSummary struct {
	Name    string `json:"name"`
	Dtype   string `json:"dtype"`
	Role    string `json:"role"` // numeric|categorical|text
	NonNull int    `json:"non_null"`
	Missing int    `json:"missing"`
	Unique  int    `json:"unique"`

	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Mean float64 `json:"mean,omitempty"`
	Std  float64 `json:"std,omitempty"`

	OutliersCount    int     `json:"outliers,omitempty"`
	OutlierThreshold float64 `json:"-"`

	TopValues    []CategoryCount `json:"top_values,omitempty"`
	ExampleTexts []string        `json:"examples,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// MarshalJSON writes undefined coefficients as null.
func (m *CorrMatrix) MarshalJSON() ([]byte, error) {
	vals := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		vals[i] = make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) {
				vals[i][j] = &row[j]
			}
		}
	}
	return json.Marshal(struct {
		Columns []string     `json:"columns"`
		Values  [][]*float64 `json:"values"`
	}{m.Columns, vals})
}

const categoricalMaxUnique = 20

// Describe summarizes t. A nil or empty table yields a report with zero rows.
func Describe(t *table.Table, opt Options) *Report {
	r := &Report{}
	if t == nil {
		return r
	}
	r.Name = t.Name
	r.Rows = t.NumRows()
	for _, c := range t.Columns() {
		r.Cols = append(r.Cols, summarize(c, opt))
	}
	r.Samples = t.Head(opt.SampleRows)
	r.MissingTotal = t.MissingTotal()
	if r.MissingTotal > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("The dataset has %d missing values; fill or drop them with clean before forecasting.", r.MissingTotal))
	}
	if r.Rows == 0 && len(r.Cols) > 0 {
		r.Warnings = append(r.Warnings, "The table has a header but no data rows.")
	}
	if opt.Correlations {
		r.Corr = correlations(t)
	}
	return r
}

func summarize(c *table.Column, opt Options) ColumnSummary {
	s := ColumnSummary{Name: c.Name, Dtype: c.Kind.String(), Missing: c.Missing()}
	s.NonNull = c.Len() - s.Missing
	if c.Kind.Numeric() {
		s.Role = "numeric"
		vals := c.Present()
		s.Unique = countUnique(vals)
		if len(vals) == 0 {
			return s
		}
		s.Min, s.Max = floats.Min(vals), floats.Max(vals)
		if len(vals) == 1 {
			s.Mean = vals[0]
		} else {
			s.Mean, s.Std = stat.MeanStdDev(vals, nil)
		}
		if opt.OutlierThreshold > 0 {
			s.OutlierThreshold = opt.OutlierThreshold
			s.OutliersCount = countOutliers(vals, opt.OutlierThreshold)
		}
		return s
	}

	counts := map[string]int{}
	var order []string
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		v := c.Text(i)
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}
	s.Unique = len(counts)
	if s.Unique <= categoricalMaxUnique || s.Unique*2 <= s.NonNull {
		s.Role = "categorical"
		top := make([]CategoryCount, 0, len(counts))
		for _, v := range order {
			top = append(top, CategoryCount{Value: v, Count: counts[v]})
		}
		sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
		if opt.TopValues > 0 && len(top) > opt.TopValues {
			top = top[:opt.TopValues]
		}
		s.TopValues = top
		return s
	}
	s.Role = "text"
	s.ExampleTexts = order[:min(3, len(order))]
	return s
}

func countUnique(vals []float64) int {
	seen := make(map[float64]struct{}, len(vals))
	for _, v := range vals {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// countOutliers counts values whose robust z-score (median/MAD) exceeds threshold.
func countOutliers(vals []float64, threshold float64) int {
	median, mad := medianMAD(vals)
	if mad == 0 {
		return 0
	}
	n := 0
	for _, v := range vals {
		if math.Abs(0.6745*(v-median)/mad) > threshold {
			n++
		}
	}
	return n
}

func medianMAD(vals []float64) (median, mad float64) {
	cp := append([]float64(nil), vals...)
	sort.Float64s(cp)
	median = stat.Quantile(0.5, stat.Empirical, cp, nil)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = stat.Quantile(0.5, stat.Empirical, dev, nil)
	return median, mad
}

// correlations uses pairwise-complete rows; undefined pairs are NaN.
func correlations(t *table.Table) *CorrMatrix {
	names := t.NumericColumns()
	if len(names) < 2 {
		return nil
	}
	cols := make([][]float64, len(names))
	for i, n := range names {
		c, _ := t.Column(n)
		cols[i] = c.Floats()
	}
	m := &CorrMatrix{Columns: names, Values: make([][]float64, len(names))}
	for i := range names {
		m.Values[i] = make([]float64, len(names))
		m.Values[i][i] = 1
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			var x, y []float64
			for k := range cols[i] {
				if math.IsNaN(cols[i][k]) || math.IsNaN(cols[j][k]) {
					continue
				}
				x = append(x, cols[i][k])
				y = append(y, cols[j][k])
			}
			r := math.NaN()
			if len(x) >= 2 {
				r = stat.Correlation(x, y, nil)
			}
			m.Values[i][j], m.Values[j][i] = r, r
		}
	}
	return m
}

// Markdown renders the report as plain sectioned text.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	fmt.Fprintf(&b, "Columns: %d\n", len(r.Cols))
	fmt.Fprintf(&b, "Missing values: %d\n\n", r.MissingTotal)

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %d)", safeName(c.Name), c.Dtype, c.NonNull, c.Missing)
		switch c.Role {
		case "numeric":
			if c.NonNull > 0 {
				fmt.Fprintf(&b, "; min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std)
			}
			if c.OutliersCount > 0 {
				fmt.Fprintf(&b, "; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold)
			}
		case "categorical":
			if len(c.TopValues) > 0 {
				b.WriteString("; top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
				}
				if c.Unique > len(c.TopValues) {
					fmt.Fprintf(&b, "; unique=%d", c.Unique)
				}
			}
		case "text":
			if len(c.ExampleTexts) > 0 {
				b.WriteString("; e.g., ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}

	if r.Corr != nil {
		type pair struct {
			A, B string
			R    float64
		}
		var pairs []pair
		for i := range r.Corr.Columns {
			for j := i + 1; j < len(r.Corr.Columns); j++ {
				if v := r.Corr.Values[i][j]; !math.IsNaN(v) {
					pairs = append(pairs, pair{r.Corr.Columns[i], r.Corr.Columns[j], v})
				}
			}
		}
		sort.SliceStable(pairs, func(i, j int) bool { return math.Abs(pairs[i].R) > math.Abs(pairs[j].R) })
		if len(pairs) > 0 {
			b.WriteString("\n[CORRELATIONS]\n")
			for _, p := range pairs[:min(10, len(pairs))] {
				fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", p.A, p.B, p.R)
			}
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n| ")
		for i := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
