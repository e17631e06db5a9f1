package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/gradecast/internal/table"
)

var (
	// ErrMissingFeature is returned when a numeric feature column has gaps.
	ErrMissingFeature = errors.New("feature column has missing values")
	// ErrNoFeatures is returned when nothing is left once the target is removed.
	ErrNoFeatures = errors.New("no feature columns besides the target")
	// ErrNonFinite is returned when a numeric column holds an infinite value.
	ErrNonFinite = errors.New("column contains infinite values")
)

// Features is the numeric design matrix derived from a table.
type Features struct {
	Names []string
	X     [][]float64
}

// Encode builds the design matrix from every column except target. Numeric
// columns pass through; each distinct value of an object column becomes a
// 0/1 column named "<column>_<value>", values in sorted order. Missing object
// cells encode as all zeros.
func Encode(t *table.Table, target string) (*Features, error) {
	n := t.NumRows()
	f := &Features{X: make([][]float64, n)}
	for _, c := range t.Columns() {
		if c.Name == target {
			continue
		}
		if c.Kind.Numeric() {
			if c.Missing() > 0 {
				return nil, fmt.Errorf("%w: %q has %d; clean it before forecasting", ErrMissingFeature, c.Name, c.Missing())
			}
			f.Names = append(f.Names, c.Name)
			for i := 0; i < n; i++ {
				v, _ := c.Float(i)
				if math.IsInf(v, 0) {
					return nil, fmt.Errorf("%w: %q at row %d", ErrNonFinite, c.Name, i)
				}
				f.X[i] = append(f.X[i], v)
			}
			continue
		}
		levels := distinct(c)
		pos := make(map[string]int, len(levels))
		for j, lv := range levels {
			pos[lv] = j
			f.Names = append(f.Names, c.Name+"_"+lv)
		}
		for i := 0; i < n; i++ {
			row := make([]float64, len(levels))
			if !c.IsNull(i) {
				row[pos[c.Text(i)]] = 1
			}
			f.X[i] = append(f.X[i], row...)
		}
	}
	if len(f.Names) == 0 {
		return nil, ErrNoFeatures
	}
	return f, nil
}

// Rows returns the design-matrix rows at the given indices.
func (f *Features) Rows(idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, r := range idx {
		out[i] = f.X[r]
	}
	return out
}

func distinct(c *table.Column) []string {
	seen := map[string]struct{}{}
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			seen[c.Text(i)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
