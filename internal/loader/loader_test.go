package loader_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/gradecast/internal/loader"
	"github.com/KaramelBytes/gradecast/internal/table"
)

func buildWorkbook(t *testing.T, sheets map[string][][]any, order []string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(name, cell, v))
			}
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestLoadCSV(t *testing.T) {
	src := "student,gender,study_hours,score\n" +
		"ann,f,4,81.5\n" +
		"bob,m,2,\n" +
		"\n" +
		"cid,m,6,90\n"
	tb, err := loader.Load("grades.csv", strings.NewReader(src), loader.Options{})
	require.NoError(t, err)
	assert.Equal(t, "grades.csv", tb.Name)
	assert.Equal(t, 3, tb.NumRows())
	hours, ok := tb.Column("study_hours")
	require.True(t, ok)
	assert.Equal(t, table.KindInt, hours.Kind)
	score, _ := tb.Column("score")
	assert.Equal(t, table.KindFloat, score.Kind)
	assert.Equal(t, 1, score.Missing())
}

func TestLoadCSV_SemicolonSniffed(t *testing.T) {
	src := "a;b\n1;x\n2;y\n"
	tb, err := loader.Load("data.csv", strings.NewReader(src), loader.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tb.Names())
}

func TestLoadCSV_RowsWiderThanHeader(t *testing.T) {
	tb, err := loader.Load("wide.csv", strings.NewReader("a,b\n1,2,3\n4,5,6\n"), loader.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "Unnamed: 2"}, tb.Names())
	assert.Equal(t, []string{"1", "2", "3"}, tb.Row(0))
	assert.Equal(t, []string{"4", "5", "6"}, tb.Row(1))

	ragged, err := loader.Load("ragged.csv", strings.NewReader("a,b\n1,2\n3,4,5\n"), loader.Options{})
	require.NoError(t, err)
	extra, ok := ragged.Column("Unnamed: 2")
	require.True(t, ok)
	assert.True(t, extra.IsNull(0))
	assert.Equal(t, "5", extra.Text(1))

	data := buildWorkbook(t, map[string][][]any{"S": {{"a", "b"}, {1, 2, 3}}}, []string{"S"})
	wide, err := loader.Load("wide.xlsx", bytes.NewReader(data), loader.Options{})
	require.NoError(t, err)
	assert.Equal(t, tb.Names(), wide.Names())
}

func TestLoadTSVAndMaxRows(t *testing.T) {
	src := "a\tb\n1\tx\n2\ty\n3\tz\n"
	tb, err := loader.Load("data.tsv", strings.NewReader(src), loader.Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, tb.NumRows())
}

func TestLoadEmptyCSV(t *testing.T) {
	tb, err := loader.Load("empty.csv", strings.NewReader(""), loader.Options{})
	require.NoError(t, err)
	assert.True(t, tb.Empty())
}

func TestLoadUnsupported(t *testing.T) {
	for _, name := range []string{"notes.txt", "legacy.xls", "noext"} {
		_, err := loader.Load(name, strings.NewReader("x"), loader.Options{})
		assert.ErrorIs(t, err, loader.ErrUnsupported, name)
	}
}

func TestLoadXLSX_FirstSheetAndNamedSheet(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Grades": {
			{"student", "study_hours", "score"},
			{"ann", 4, 81.5},
			{"bob", 2, 55},
		},
		"Other": {
			{"k"},
			{"v"},
		},
	}, []string{"Grades", "Other"})

	tb, err := loader.Load("book.xlsx", bytes.NewReader(data), loader.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"student", "study_hours", "score"}, tb.Names())
	assert.Equal(t, 2, tb.NumRows())
	score, _ := tb.Column("score")
	assert.True(t, score.Kind.Numeric())

	other, err := loader.Load("book.xlsx", bytes.NewReader(data), loader.Options{Sheet: "Other"})
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, other.Names())

	_, err = loader.Load("book.xlsx", bytes.NewReader(data), loader.Options{Sheet: "Missing"})
	assert.Error(t, err)
}

func TestLoadXLSX_Corrupt(t *testing.T) {
	_, err := loader.Load("bad.xlsx", strings.NewReader("not a zip"), loader.Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, loader.ErrUnsupported)
}

func TestDiscoverSamples(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.csv", "a.xlsx", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	got, err := loader.DiscoverSamples(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.xlsx", got[0].Name)
	assert.Equal(t, "b.csv", got[1].Name)

	s, err := loader.FindSample(dir, "b.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.csv"), s.Path)
	_, err = loader.FindSample(dir, "readme.md")
	assert.ErrorIs(t, err, loader.ErrSampleNotFound)

	none, err := loader.DiscoverSamples(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "g.csv")
	require.NoError(t, os.WriteFile(p, []byte("x,y\n1,2\n"), 0o644))
	tb, err := loader.LoadFile(p, loader.Options{})
	require.NoError(t, err)
	assert.Equal(t, "g.csv", tb.Name)

	_, err = loader.LoadFile(filepath.Join(t.TempDir(), "missing.csv"), loader.Options{})
	assert.Error(t, err)
}

func TestApplyDtypes_IsolatesFailures(t *testing.T) {
	tb, err := table.FromRecords("x", []string{"name", "hours", "grade"},
		[][]string{{"abc", "1.5", "3"}, {"def", "2.0", "4"}}, false)
	require.NoError(t, err)

	results := loader.ApplyDtypes(tb, []loader.DtypeChange{
		{Column: "name", Kind: table.KindInt},
		{Column: "grade", Kind: table.KindFloat},
		{Column: "nope", Kind: table.KindText},
		{Column: "hours", Kind: table.KindFloat},
	})
	require.Len(t, results, 4)

	assert.Error(t, results[0].Err)
	assert.Contains(t, results[0].Message(), "name")
	assert.False(t, results[0].Changed)

	assert.NoError(t, results[1].Err)
	assert.True(t, results[1].Changed)

	assert.ErrorIs(t, results[2].Err, table.ErrUnknownColumn)

	assert.NoError(t, results[3].Err)
	assert.False(t, results[3].Changed, "already float64")

	name, _ := tb.Column("name")
	assert.Equal(t, table.KindText, name.Kind)
	grade, _ := tb.Column("grade")
	assert.Equal(t, table.KindFloat, grade.Kind)
	assert.Len(t, loader.Failed(results), 2)
}

func TestParseDtypeChange(t *testing.T) {
	ch, err := loader.ParseDtypeChange("study hours=float")
	require.NoError(t, err)
	assert.Equal(t, "study hours", ch.Column)
	assert.Equal(t, table.KindFloat, ch.Kind)

	_, err = loader.ParseDtypeChange("nodtype")
	assert.Error(t, err)
	_, err = loader.ParseDtypeChange("x=date")
	assert.Error(t, err)
}
