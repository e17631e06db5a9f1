package analysis

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/gradecast/internal/table"
)

func gradesTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.FromRecords("grades.csv",
		[]string{"student", "gender", "hours", "score"},
		[][]string{
			{"ann", "f", "1", "50"},
			{"bob", "m", "2", ""},
			{"cid", "m", "3", "70"},
			{"dee", "f", "4", "80"},
			{"eve", "f", "", "90"},
		}, false)
	require.NoError(t, err)
	return tbl
}

func TestDescribeSchema(t *testing.T) {
	r := Describe(gradesTable(t), DefaultOptions())
	assert.Equal(t, "grades.csv", r.Name)
	assert.Equal(t, 5, r.Rows)
	assert.Equal(t, 2, r.MissingTotal)
	require.Len(t, r.Cols, 4)

	gender := r.Cols[1]
	assert.Equal(t, "object", gender.Dtype)
	assert.Equal(t, "categorical", gender.Role)
	assert.Equal(t, 2, gender.Unique)
	assert.Equal(t, []CategoryCount{{"f", 3}, {"m", 2}}, gender.TopValues)

	hours := r.Cols[2]
	assert.Equal(t, "float64", hours.Dtype, "a gap forces float64")
	assert.Equal(t, 4, hours.NonNull)
	assert.Equal(t, 1, hours.Missing)
	assert.Equal(t, 1.0, hours.Min)
	assert.Equal(t, 4.0, hours.Max)
	assert.InDelta(t, 2.5, hours.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(5.0/3.0), hours.Std, 1e-9)

	require.Len(t, r.Samples, 5)
	assert.Equal(t, []string{"bob", "m", "2", ""}, r.Samples[1])
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "2 missing values")
}

func TestDescribeNoGaps(t *testing.T) {
	tbl, err := table.FromRecords("x", []string{"a"}, [][]string{{"1"}, {"2"}}, false)
	require.NoError(t, err)
	r := Describe(tbl, Options{SampleRows: 1})
	assert.Empty(t, r.Warnings)
	assert.Len(t, r.Samples, 1)
	assert.Equal(t, "int64", r.Cols[0].Dtype)
}

func TestDescribeNilAndHeaderOnly(t *testing.T) {
	r := Describe(nil, DefaultOptions())
	assert.Zero(t, r.Rows)
	assert.Empty(t, r.Cols)

	tbl, err := table.FromRecords("h", []string{"a", "b"}, nil, false)
	require.NoError(t, err)
	r = Describe(tbl, DefaultOptions())
	assert.Len(t, r.Cols, 2)
	assert.Contains(t, r.Warnings, "The table has a header but no data rows.")
}

func TestOutliersAndCorrelations(t *testing.T) {
	rows := [][]string{}
	for i, v := range []string{"10", "11", "9", "10", "12", "10", "11", "9", "10", "500"} {
		rows = append(rows, []string{v, string(rune('0' + i))})
	}
	tbl, err := table.FromRecords("o", []string{"x", "y"}, rows, false)
	require.NoError(t, err)

	r := Describe(tbl, Options{Correlations: true, OutlierThreshold: 3.5})
	assert.Equal(t, 1, r.Cols[0].OutliersCount)
	require.NotNil(t, r.Corr)
	assert.Equal(t, []string{"x", "y"}, r.Corr.Columns)
	assert.Equal(t, 1.0, r.Corr.Values[0][0])
	assert.Equal(t, r.Corr.Values[0][1], r.Corr.Values[1][0])
	assert.Contains(t, r.Markdown(), "[CORRELATIONS]")
}

func TestTextRole(t *testing.T) {
	var rows [][]string
	for i := 0; i < 30; i++ {
		rows = append(rows, []string{strings.Repeat("n", i+1)})
	}
	tbl, err := table.FromRecords("t", []string{"note"}, rows, false)
	require.NoError(t, err)
	c := Describe(tbl, DefaultOptions()).Cols[0]
	assert.Equal(t, "text", c.Role)
	assert.Equal(t, []string{"n", "nn", "nnn"}, c.ExampleTexts)
}

func TestMarkdownSections(t *testing.T) {
	md := Describe(gradesTable(t), DefaultOptions()).Markdown()
	for _, want := range []string{
		"[DATASET SUMMARY]",
		"File: grades.csv",
		"Rows: 5",
		"Columns: 4",
		"Missing values: 2",
		"[SCHEMA]",
		"- gender: object (non-null 5, missing 0); top: f(3), m(2)",
		"- score: float64 (non-null 4, missing 1); min 50, max 90",
		"[HEAD AND SAMPLE ROWS]",
		"| student | gender | hours | score |",
		"| ann | f | 1 | 50 |",
		"[NOTES]",
	} {
		assert.Contains(t, md, want)
	}
	assert.NotContains(t, md, "[CORRELATIONS]")
}

func TestCorrelationJSONNullsUndefined(t *testing.T) {
	tbl, err := table.FromRecords("c", []string{"x", "k"}, [][]string{{"1", "5"}, {"2", "5"}, {"3", "5"}}, false)
	require.NoError(t, err)
	r := Describe(tbl, Options{Correlations: true})
	require.NotNil(t, r.Corr)
	assert.True(t, math.IsNaN(r.Corr.Values[0][1]))

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"values":[[1,null],[null,1]]`)
}
