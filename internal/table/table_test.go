package table_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/gradecast/internal/table"
)

func TestFromRecords_InfersKinds(t *testing.T) {
	header := []string{"\ufeffstudent", "age", "score", "absences", "notes"}
	rows := [][]string{
		{"ann", "16", "81.5", "2", "ok"},
		{"bob", "17", "64", "", "n/a"},
		{"cid", "16", "90", "0"},
	}
	tb, err := table.FromRecords("grades.csv", header, rows, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"student", "age", "score", "absences", "notes"}, tb.Names())
	assert.Equal(t, 3, tb.NumRows())

	kinds := map[string]table.Kind{}
	for _, c := range tb.Columns() {
		kinds[c.Name] = c.Kind
	}
	assert.Equal(t, table.KindText, kinds["student"])
	assert.Equal(t, table.KindInt, kinds["age"])
	assert.Equal(t, table.KindFloat, kinds["score"])
	// a gap forces float64 even when every present value is integral
	assert.Equal(t, table.KindFloat, kinds["absences"])
	assert.Equal(t, table.KindText, kinds["notes"])

	notes, _ := tb.Column("notes")
	assert.Equal(t, 2, notes.Missing())
	assert.Equal(t, 3, tb.MissingTotal())
	assert.ElementsMatch(t, []string{"age", "score", "absences"}, tb.NumericColumns())
}

func TestFromRecords_DecimalComma(t *testing.T) {
	tb, err := table.FromRecords("x", []string{"g"}, [][]string{{"3,5"}, {"1.200,25"}}, true)
	require.NoError(t, err)
	c, _ := tb.Column("g")
	require.Equal(t, table.KindFloat, c.Kind)
	assert.Equal(t, []float64{3.5, 1200.25}, c.Floats())
}

func TestUniqueHeader(t *testing.T) {
	tb, err := table.FromRecords("x", []string{"a", "", "a", "a"}, [][]string{{"1", "2", "3", "4"}}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "Unnamed: 1", "a.1", "a.2"}, tb.Names())
}

func TestAddColumn_Errors(t *testing.T) {
	tb := table.New("x")
	require.NoError(t, tb.AddColumn(table.NewFloatColumn("a", table.KindFloat, []float64{1, 2})))
	err := tb.AddColumn(table.NewFloatColumn("a", table.KindFloat, []float64{1, 2}))
	assert.ErrorIs(t, err, table.ErrDuplicateColumn)
	err = tb.AddColumn(table.NewFloatColumn("b", table.KindFloat, []float64{1}))
	assert.ErrorIs(t, err, table.ErrLengthMismatch)
	err = tb.ReplaceColumn(table.NewFloatColumn("zz", table.KindFloat, []float64{1, 2}))
	assert.ErrorIs(t, err, table.ErrUnknownColumn)
}

func TestConvert(t *testing.T) {
	text := table.NewTextColumn("t", []string{"1", "2.5", ""}, []bool{false, false, true})

	f, err := text.Convert(table.KindFloat)
	require.NoError(t, err)
	assert.Equal(t, table.KindFloat, f.Kind)
	v, ok := f.Float(1)
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)
	assert.True(t, f.IsNull(2))

	_, err = text.Convert(table.KindInt)
	assert.Error(t, err, "non-integral text must not become int64")

	// receiver untouched after failure
	assert.Equal(t, table.KindText, text.Kind)
	assert.Equal(t, "2.5", text.Text(1))

	fl := table.NewFloatColumn("f", table.KindFloat, []float64{1.9, -2.7})
	i, err := fl.Convert(table.KindInt)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "-2"}, []string{i.Text(0), i.Text(1)})

	withGap := table.NewFloatColumn("g", table.KindFloat, []float64{1, math.NaN()})
	_, err = withGap.Convert(table.KindInt)
	assert.Error(t, err)

	obj, err := withGap.Convert(table.KindText)
	require.NoError(t, err)
	assert.Equal(t, "1", obj.Text(0))
	assert.True(t, obj.IsNull(1))

	bad := table.NewTextColumn("b", []string{"x"}, nil)
	_, err = bad.Convert(table.KindFloat)
	assert.Error(t, err)
}

func TestInfinityIsNotANumber(t *testing.T) {
	for _, s := range []string{"inf", "+Inf", "-infinity", "NaN", "1e999"} {
		_, ok := table.ParseNumber(s)
		assert.False(t, ok, s)
	}
	v, ok := table.ParseNumber(" +2.5 ")
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	tb, err := table.FromRecords("x", []string{"hours", "score"},
		[][]string{{"1", "50"}, {"inf", "60"}, {"3", "-Infinity"}}, false)
	require.NoError(t, err)
	for _, name := range []string{"hours", "score"} {
		c, _ := tb.Column(name)
		assert.Equal(t, table.KindText, c.Kind, name)
		assert.Zero(t, c.Missing(), name)
	}
	assert.Empty(t, tb.NumericColumns())

	_, err = table.NewTextColumn("h", []string{"1", "inf"}, nil).Convert(table.KindFloat)
	assert.ErrorContains(t, err, "not a number")
}

func TestInt64Range(t *testing.T) {
	tb, err := table.FromRecords("x", []string{"big", "ok"}, [][]string{{"1e20", "9007199254740992"}, {"2", "-5"}}, false)
	require.NoError(t, err)
	big, _ := tb.Column("big")
	assert.Equal(t, table.KindFloat, big.Kind, "too large for int64")
	ok, _ := tb.Column("ok")
	assert.Equal(t, table.KindInt, ok.Kind)

	_, err = big.Convert(table.KindInt)
	assert.ErrorContains(t, err, "out of range")
	_, err = table.NewTextColumn("t", []string{"1e20"}, nil).Convert(table.KindInt)
	assert.ErrorContains(t, err, "out of range")
	_, err = table.NewFloatColumn("edge", table.KindFloat, []float64{math.Exp2(63)}).Convert(table.KindInt)
	assert.Error(t, err)

	small, err := table.NewFloatColumn("s", table.KindFloat, []float64{-math.Exp2(62)}).Convert(table.KindInt)
	require.NoError(t, err)
	assert.Equal(t, "-4611686018427387904", small.Text(0))
}

func TestTakeFilterClone(t *testing.T) {
	tb, err := table.FromRecords("x", []string{"n", "s"}, [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}}, false)
	require.NoError(t, err)

	sub := tb.Take([]int{2, 0})
	assert.Equal(t, [][]string{{"3", "c"}, {"1", "a"}}, sub.Head(-1))

	odd := tb.Filter(func(i int) bool { return i%2 == 0 })
	assert.Equal(t, 2, odd.NumRows())

	cp := tb.Clone()
	c, _ := cp.Column("n")
	c.SetFloat(0, 99)
	orig, _ := tb.Column("n")
	v, _ := orig.Float(0)
	assert.Equal(t, 1.0, v)
}

func TestWriteCSV(t *testing.T) {
	tb, err := table.FromRecords("x", []string{"name", "score"}, [][]string{{"ann", "81.5"}, {"bob", ""}}, false)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, tb.WriteCSV(&buf))
	assert.Equal(t, "name,score\nann,81.5\nbob,\n", buf.String())
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]table.Kind{"int64": table.KindInt, "Float": table.KindFloat, "object": table.KindText, "string": table.KindText} {
		got, err := table.ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := table.ParseKind("datetime")
	assert.Error(t, err)
	assert.Equal(t, "float64", table.KindFloat.String())
}

func TestEmpty(t *testing.T) {
	var nilTable *table.Table
	assert.True(t, nilTable.Empty())
	assert.True(t, table.New("x").Empty())
}
