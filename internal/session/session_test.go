package session_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/gradecast/internal/clean"
	"github.com/KaramelBytes/gradecast/internal/forecast"
	"github.com/KaramelBytes/gradecast/internal/loader"
	"github.com/KaramelBytes/gradecast/internal/session"
	"github.com/KaramelBytes/gradecast/internal/table"
)

const gradesCSV = "hours,score\n1,50\n2,\n3,70\n4,80\n5,90\n6,60\n"

func upload() session.Source {
	return session.Source{Name: "grades.csv", Data: []byte(gradesCSV)}
}

func TestSelectIsLazy(t *testing.T) {
	s := session.New()
	_, err := s.Current()
	assert.ErrorIs(t, err, session.ErrNoData)

	s.Select(upload())
	assert.Equal(t, session.PendingReload, s.State())
	assert.Zero(t, s.Info().Rows)

	tb, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, 6, tb.NumRows())
	assert.Equal(t, session.Fresh, s.State())
	assert.Equal(t, "grades.csv", s.Info().Source)
}

func TestCleanThenReloadKeepsEdit(t *testing.T) {
	s := session.New()
	_, err := s.Open(upload())
	require.NoError(t, err)

	cleaned, err := s.Update(func(t *table.Table) (*table.Table, error) {
		return clean.Apply(t, "score", clean.MeanFill)
	})
	require.NoError(t, err)
	assert.Equal(t, session.JustTransformed, s.State())

	tb, reloaded, err := s.Reload()
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Same(t, cleaned, tb)
	assert.Equal(t, session.Fresh, s.State())

	// a second reload goes back to the source
	tb, reloaded, err = s.Reload()
	require.NoError(t, err)
	assert.True(t, reloaded)
	score, _ := tb.Column("score")
	assert.Equal(t, 1, score.Missing())
}

func TestUpdateFailureKeepsTable(t *testing.T) {
	s := session.New()
	before, err := s.Open(upload())
	require.NoError(t, err)

	_, err = s.Update(func(t *table.Table) (*table.Table, error) {
		return clean.Apply(t, "nope", clean.MeanFill)
	})
	require.Error(t, err)
	after, err := s.Current()
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Equal(t, session.Fresh, s.State())
}

func TestOpenFailureKeepsPrevious(t *testing.T) {
	s := session.New()
	_, err := s.Open(upload())
	require.NoError(t, err)
	_, err = s.Open(session.Source{Name: "notes.txt", Data: []byte("x")})
	assert.ErrorIs(t, err, loader.ErrUnsupported)
	assert.Equal(t, "grades.csv", s.Info().Source)
}

func TestPathSource(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sample.csv")
	require.NoError(t, os.WriteFile(p, []byte(gradesCSV), 0o644))
	s := session.New()
	s.Select(session.Source{Name: "sample.csv", Path: p})
	tb, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, []string{"hours", "score"}, tb.Names())
}

func TestForecastStoredAndClearedOnEdit(t *testing.T) {
	s := session.New()
	_, err := s.Open(upload())
	require.NoError(t, err)
	_, err = s.Update(func(t *table.Table) (*table.Table, error) {
		return clean.Apply(t, "score", clean.MeanFill)
	})
	require.NoError(t, err)

	cfg := forecast.DefaultConfig()
	cfg.Estimators = 3
	res, err := s.Forecast(context.Background(), forecast.New(cfg, nil), forecast.Request{Target: "score", Threshold: 4})
	require.NoError(t, err)
	assert.Same(t, res, s.LastForecast())
	assert.True(t, s.Info().HasForecast)

	// handing back the same table is a no-op
	state := s.State()
	before, err := s.Current()
	require.NoError(t, err)
	same, err := s.Update(func(t *table.Table) (*table.Table, error) { return t, nil })
	require.NoError(t, err)
	assert.Same(t, before, same)
	assert.Equal(t, state, s.State())
	assert.Same(t, res, s.LastForecast())

	_, err = s.Update(func(t *table.Table) (*table.Table, error) { return clean.Apply(t, "", clean.DropAll) })
	require.NoError(t, err)
	assert.Nil(t, s.LastForecast())
}

func TestStore(t *testing.T) {
	st := session.NewStore()
	a := st.Create()
	b := st.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, st.Len())

	got, err := st.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, st.Delete(a.ID))
	_, err = st.Get(a.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, st.Delete(a.ID), session.ErrNotFound)
	assert.Equal(t, []string{b.ID}, st.IDs())
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	s := session.New()
	_, err := s.Open(upload())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(func(t *table.Table) (*table.Table, error) {
				return t.Filter(func(int) bool { return true }), nil
			})
		}()
	}
	wg.Wait()
	tb, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, 6, tb.NumRows())
}
