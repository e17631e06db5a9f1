// Package session keeps one user's working table, where it came from, and
// whether the next reload should re-read the source.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/gradecast/internal/forecast"
	"github.com/KaramelBytes/gradecast/internal/loader"
	"github.com/KaramelBytes/gradecast/internal/table"
)

// ErrNoData is returned when no source has been selected yet.
var ErrNoData = errors.New("no data loaded")

// State is the reload state of a session's table.
type State int

const (
	// Fresh means the table matches what was last read or written.
	Fresh State = iota
	// PendingReload means a new source was selected and has not been read.
	PendingReload
	// JustTransformed means the table was edited in place; the next reload
	// keeps the edit instead of re-reading the source.
	JustTransformed
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case PendingReload:
		return "pending-reload"
	case JustTransformed:
		return "just-transformed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets State appear as its name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Source is where a table is (re)loaded from: an uploaded payload or a file path.
type Source struct {
	Name    string
	Path    string
	Data    []byte
	Options loader.Options
}

func (src *Source) load() (*table.Table, error) {
	if src.Data != nil {
		return loader.Load(src.Name, bytes.NewReader(src.Data), src.Options)
	}
	return loader.LoadFile(src.Path, src.Options)
}

// Session serializes every operation on its table behind one mutex.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	updatedAt time.Time
	source    *Source
	table     *table.Table
	state     State
	result    *forecast.Result
}

// New returns an empty session with a fresh id.
func New() *Session {
	now := time.Now()
	return &Session{ID: uuid.NewString(), CreatedAt: now, updatedAt: now}
}

// Select records a new source. It is read lazily by the next Current call.
func (s *Session) Select(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = &src
	s.state = PendingReload
	s.result = nil
	s.touch()
}

// Open selects src and reads it immediately. On failure the previous table
// and source stay in place.
func (s *Session) Open(src Source) (*table.Table, error) {
	t, err := src.load()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = &src
	s.table = t
	s.state = Fresh
	s.result = nil
	s.touch()
	return t, nil
}

// Current returns the working table, reading the source first if a reload is pending.
func (s *Session) Current() (*table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

func (s *Session) current() (*table.Table, error) {
	if s.source == nil {
		return nil, ErrNoData
	}
	if s.state == PendingReload || s.table == nil {
		t, err := s.source.load()
		if err != nil {
			return nil, err
		}
		s.table = t
		s.state = Fresh
		s.touch()
	}
	return s.table, nil
}

// Reload re-reads the source, unless the table was just transformed: then the
// edit is kept, the state returns to Fresh, and reloaded is false.
func (s *Session) Reload() (t *table.Table, reloaded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil, false, ErrNoData
	}
	if s.state == JustTransformed {
		s.state = Fresh
		s.touch()
		return s.table, false, nil
	}
	s.state = PendingReload
	t, err = s.current()
	if err != nil {
		return nil, false, err
	}
	s.result = nil
	return t, true, nil
}

// Update applies fn to the current table and stores its successor. fn must not
// modify its argument; on error the current table is kept. Returning the
// argument itself means nothing changed: state and last forecast are kept.
func (s *Session) Update(fn func(*table.Table) (*table.Table, error)) (*table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current()
	if err != nil {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == cur {
		return cur, nil
	}
	s.table = next
	s.state = JustTransformed
	s.result = nil
	s.touch()
	return next, nil
}

// View runs fn against the current table while holding the session lock.
func (s *Session) View(fn func(*table.Table) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current()
	if err != nil {
		return err
	}
	return fn(cur)
}

// Forecast runs p on the current table and keeps the result for downloads.
func (s *Session) Forecast(ctx context.Context, p *forecast.Pipeline, req forecast.Request) (*forecast.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current()
	if err != nil {
		return nil, err
	}
	res, err := p.Run(ctx, cur, req)
	if err != nil {
		return nil, err
	}
	s.result = res
	s.touch()
	return res, nil
}

// LastForecast returns the most recent forecast, or nil if the table changed since.
func (s *Session) LastForecast() *forecast.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// State returns the current reload state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info is a JSON-friendly snapshot of a session.
type Info struct {
	ID          string    `json:"id"`
	Source      string    `json:"source,omitempty"`
	State       State     `json:"state"`
	Rows        int       `json:"rows"`
	Columns     int       `json:"columns"`
	HasForecast bool      `json:"has_forecast"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Info snapshots the session without triggering a pending reload.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := Info{ID: s.ID, State: s.state, HasForecast: s.result != nil, CreatedAt: s.CreatedAt, UpdatedAt: s.updatedAt}
	if s.source != nil {
		in.Source = s.source.Name
	}
	if s.table != nil && s.state != PendingReload {
		in.Rows, in.Columns = s.table.NumRows(), s.table.NumCols()
	}
	return in
}

func (s *Session) touch() { s.updatedAt = time.Now() }
