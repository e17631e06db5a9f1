package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/KaramelBytes/gradecast/internal/analysis"
	"github.com/KaramelBytes/gradecast/internal/clean"
	"github.com/KaramelBytes/gradecast/internal/forecast"
	"github.com/KaramelBytes/gradecast/internal/loader"
	"github.com/KaramelBytes/gradecast/internal/session"
	"github.com/KaramelBytes/gradecast/internal/table"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "ok", "sessions": s.store.Len()})
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := loader.DiscoverSamples(s.opt.SampleDir)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if samples == nil {
		samples = []loader.Sample{}
	}
	render.JSON(w, r, samples)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Create()
	s.metrics.SetSessions(s.store.Len())
	s.logger.InfoContext(r.Context(), "session created", slog.String("session_id", sess.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sess.Info())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, sessionFrom(r).Info())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(sessionFrom(r).ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.SetSessions(s.store.Len())
	w.WriteHeader(http.StatusNoContent)
}

// loadOptions reads parser options from the query string.
func loadOptions(r *http.Request) (loader.Options, error) {
	q := r.URL.Query()
	opt := loader.Options{Sheet: q.Get("sheet")}
	if v := q.Get("decimal_comma"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opt, badRequest("decimal_comma: %v", err)
		}
		opt.DecimalComma = b
	}
	switch d := q.Get("delimiter"); d {
	case "":
	case "tab", `\t`:
		opt.Delimiter = '\t'
	default:
		if len([]rune(d)) != 1 {
			return opt, badRequest("delimiter must be a single character")
		}
		opt.Delimiter = []rune(d)[0]
	}
	return opt, nil
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	opt, err := loadOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(w, r, newAPIError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("Upload exceeds %d bytes", s.opt.MaxUploadBytes)))
			return
		}
		s.fail(w, r, badRequest("multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, badRequest("read upload: %v", err))
		return
	}

	t, err := sess.Open(session.Source{Name: header.Filename, Data: data, Options: opt})
	s.metrics.ObserveLoad("upload", err)
	if err != nil {
		if !errors.Is(err, loader.ErrUnsupported) {
			err = &APIError{StatusCode: http.StatusBadRequest, ErrorCode: "PARSE_FAILED", Message: err.Error()}
		}
		s.fail(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "table uploaded",
		slog.String("session_id", sess.ID),
		slog.String("file", header.Filename),
		slog.Int("rows", t.NumRows()),
		slog.Int("columns", t.NumCols()))
	render.JSON(w, r, sess.Info())
}

type sampleRequest struct {
	Name string `json:"name" validate:"required"`
}

// selectSample points the session at a preset file; it is read on next access.
func (s *Server) selectSample(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sample, err := loader.FindSample(s.opt.SampleDir, req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess := sessionFrom(r)
	sess.Select(session.Source{Name: sample.Name, Path: sample.Path})
	render.JSON(w, r, sess.Info())
}

type reloadResponse struct {
	Reloaded bool         `json:"reloaded"`
	Session  session.Info `json:"session"`
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	_, reloaded, err := sess.Reload()
	if reloaded || err != nil {
		s.metrics.ObserveLoad("reload", err)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, reloadResponse{Reloaded: reloaded, Session: sess.Info()})
}

type tableResponse struct {
	Session        session.Info          `json:"session"`
	Report         *analysis.Report      `json:"report"`
	MissingColumns []clean.MissingColumn `json:"missing_columns"`
	Dtypes         []table.Kind          `json:"dtype_options"`
	Strategies     []clean.Strategy      `json:"strategies"`
}

func (s *Server) describeTable(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var resp tableResponse
	err := sess.View(func(t *table.Table) error {
		resp.Report = analysis.Describe(t, analysis.DefaultOptions())
		resp.MissingColumns = clean.MissingColumns(t)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if resp.MissingColumns == nil {
		resp.MissingColumns = []clean.MissingColumn{}
	}
	resp.Session = sess.Info()
	resp.Dtypes = table.Kinds()
	resp.Strategies = clean.Strategies()
	render.JSON(w, r, resp)
}

type dtypeRequest struct {
	Changes []loader.DtypeChange `json:"changes" validate:"required,min=1,dive"`
}

type dtypeResult struct {
	Column  string     `json:"column"`
	Dtype   table.Kind `json:"dtype"`
	Changed bool       `json:"changed"`
	Error   string     `json:"error,omitempty"`
}

// changeDtypes applies every change to a copy of the table. Failed changes are
// reported per column and do not block the others.
func (s *Server) changeDtypes(w http.ResponseWriter, r *http.Request) {
	var req dtypeRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var results []loader.ConversionResult
	_, err := sessionFrom(r).Update(func(t *table.Table) (*table.Table, error) {
		next := t.Clone()
		results = loader.ApplyDtypes(next, req.Changes)
		for _, res := range results {
			if res.Changed {
				return next, nil
			}
		}
		return t, nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]dtypeResult, len(results))
	for i, res := range results {
		out[i] = dtypeResult{Column: res.Column, Dtype: res.Kind, Changed: res.Changed, Error: res.Message()}
	}
	render.JSON(w, r, map[string]any{"results": out})
}

type cleanRequest struct {
	Column   string `json:"column" validate:"required_unless=Strategy drop-all"`
	Strategy string `json:"strategy" validate:"required,oneof=drop-all drop-rows ffill bfill mean mode"`
}

type cleanResponse struct {
	Rows           int                   `json:"rows"`
	MissingTotal   int                   `json:"missing_total"`
	MissingColumns []clean.MissingColumn `json:"missing_columns"`
	Session        session.Info          `json:"session"`
}

func (s *Server) cleanTable(w http.ResponseWriter, r *http.Request) {
	var req cleanRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	strategy, err := clean.ParseStrategy(req.Strategy)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess := sessionFrom(r)
	next, err := sess.Update(func(t *table.Table) (*table.Table, error) {
		return clean.Apply(t, req.Column, strategy)
	})
	s.metrics.ObserveClean(string(strategy), err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := cleanResponse{
		Rows:           next.NumRows(),
		MissingTotal:   next.MissingTotal(),
		MissingColumns: clean.MissingColumns(next),
		Session:        sess.Info(),
	}
	if resp.MissingColumns == nil {
		resp.MissingColumns = []clean.MissingColumn{}
	}
	render.JSON(w, r, resp)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := sessionFrom(r).View(func(t *table.Table) error { return t.WriteCSV(&buf) })
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, "transformed_data.csv", "text/csv; charset=utf-8", buf.Bytes())
}

type forecastRequest struct {
	Target    string   `json:"target"`
	Threshold *float64 `json:"threshold"`
}

type forecastResponse struct {
	Target           string               `json:"target"`
	Threshold        float64              `json:"threshold"`
	Cutoff           float64              `json:"cutoff"`
	RMSE             float64              `json:"rmse"`
	Accuracy         float64              `json:"accuracy"`
	TopHonorsPercent float64              `json:"top_honors_percent"`
	GroupCounts      map[string]int       `json:"group_counts"`
	Features         []string             `json:"features"`
	TrainRows        int                  `json:"train_rows"`
	TestRows         int                  `json:"test_rows"`
	DurationMS       int64                `json:"duration_ms"`
	Warnings         []string             `json:"warnings"`
	Histogram        forecast.Histogram   `json:"histogram"`
	Rows             []forecast.RankedRow `json:"rows"`
	Recommendations  []forecast.GroupInfo `json:"recommendations"`
}

func (s *Server) runForecast(w http.ResponseWriter, r *http.Request) {
	var body forecastRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.fail(w, r, badRequest("invalid JSON body: %v", err))
		return
	}
	req := forecast.Request{Target: body.Target, Threshold: s.opt.DefaultThreshold}
	if body.Threshold != nil {
		req.Threshold = *body.Threshold
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}

	start := time.Now()
	res, err := sessionFrom(r).Forecast(r.Context(), s.pipeline, req)
	s.metrics.ObserveForecast(time.Since(start), err)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := forecastResponse{
		Target:           res.Target,
		Threshold:        res.Threshold,
		Cutoff:           res.Cutoff,
		RMSE:             res.RMSE,
		Accuracy:         res.Accuracy,
		TopHonorsPercent: res.TopHonorsPercent,
		GroupCounts:      map[string]int{},
		Features:         res.Features,
		TrainRows:        res.TrainRows,
		TestRows:         res.TestRows,
		DurationMS:       res.Duration.Milliseconds(),
		Warnings:         res.Warnings,
		Histogram:        res.Histogram,
		Rows:             res.Ranked(),
	}
	for g, n := range res.GroupCounts() {
		resp.GroupCounts[g.String()] = n
	}
	for _, g := range forecast.ReportOrder {
		resp.Recommendations = append(resp.Recommendations, g.Info())
	}
	render.JSON(w, r, resp)
}

// lastForecast returns the session's latest result or renders 404.
func (s *Server) lastForecast(w http.ResponseWriter, r *http.Request) (*forecast.Result, bool) {
	res := sessionFrom(r).LastForecast()
	if res == nil {
		s.fail(w, r, newAPIError(http.StatusNotFound, "NO_FORECAST", "Run a forecast first"))
		return nil, false
	}
	return res, true
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastForecast(w, r)
	if !ok {
		return
	}
	writeAttachment(w, "recommendations.txt", "text/plain; charset=utf-8", []byte(res.RecommendationsText()))
}

func (s *Server) resultsCSV(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastForecast(w, r)
	if !ok {
		return
	}
	data, err := res.CSV()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, "student_predictions.csv", "text/csv; charset=utf-8", data)
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
