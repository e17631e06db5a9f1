// Package forecast fits bagged-tree models to a student table and turns the
// predicted scores into risk groups, recommendations and export artifacts.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/gradecast/internal/model"
	"github.com/KaramelBytes/gradecast/internal/table"
)

// Threshold bounds on the 3.5-5.0 grading scale.
const (
	MinThreshold = 3.5
	MaxThreshold = 5.0
	// ScoreScale converts a threshold to the 0-100 score scale.
	ScoreScale = 20.0
)

// Column names appended to the annotated table.
const (
	ScoreColumn          = "forecast_score"
	RecommendationColumn = "recommendation"
)

// Disclaimer is attached to every result.
const Disclaimer = "The forecast does not account for unforeseen circumstances or changes in student behaviour."

var (
	ErrEmptyTable       = errors.New("table has no rows")
	ErrNoNumericColumns = errors.New("table has no numeric columns; a forecast needs a numeric target")
	ErrTargetNotNumeric = errors.New("target column is not numeric")
	ErrTargetEmpty      = errors.New("target column has no numeric values")
	ErrInvalidThreshold = fmt.Errorf("threshold must be between %.1f and %.1f", MinThreshold, MaxThreshold)
)

// ModelingError wraps any failure during encoding, splitting or fitting.
// The session stays usable; the caller may retry with other inputs.
type ModelingError struct {
	Stage string
	Err   error
}

func (e *ModelingError) Error() string {
	return fmt.Sprintf("model building failed during %s: %v", e.Stage, e.Err)
}

func (e *ModelingError) Unwrap() error { return e.Err }

// Config holds pipeline hyperparameters.
type Config struct {
	Seed          int64
	Estimators    int
	TestRatio     float64
	Workers       int
	HistogramBins int
}

// DefaultConfig matches the reference settings: 50 trees, seed 42, 20% holdout.
func DefaultConfig() Config {
	return Config{Seed: 42, Estimators: 50, TestRatio: 0.2, HistogramBins: 20}
}

// Request selects the target column and diploma threshold for one run.
type Request struct {
	Target    string  `json:"target" validate:"required"`
	Threshold float64 `json:"threshold" validate:"gte=3.5,lte=5"`
}

// Cutoff returns the threshold on the 0-100 score scale.
func (r Request) Cutoff() float64 { return r.Threshold * ScoreScale }

// Result is the outcome of one forecast run.
type Result struct {
	// Table is the input plus forecast_score and recommendation columns.
	Table            *table.Table
	Target           string
	Threshold        float64
	Cutoff           float64
	RMSE             float64
	Accuracy         float64
	TopHonorsPercent float64
	Scores           []float64
	// Targets holds the target values the models saw, gaps already imputed.
	Targets          []float64
	Groups           []Group
	Warnings         []string
	Histogram        Histogram
	Features         []string
	TrainRows        int
	TestRows         int
	Duration         time.Duration
}

// Pipeline runs forecasts with a fixed configuration.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New returns a pipeline. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.Estimators <= 0 {
		cfg.Estimators = def.Estimators
	}
	if cfg.TestRatio <= 0 || cfg.TestRatio >= 1 {
		cfg.TestRatio = def.TestRatio
	}
	if cfg.HistogramBins <= 0 {
		cfg.HistogramBins = def.HistogramBins
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{cfg: cfg, logger: logger.With(slog.String("component", "forecast"))}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Run forecasts every row of t. Schema problems return the package's sentinel
// errors before any fitting; anything that goes wrong afterwards, panics
// included, comes back as a *ModelingError. t is never modified.
func (p *Pipeline) Run(ctx context.Context, t *table.Table, req Request) (*Result, error) {
	start := time.Now()
	if req.Threshold < MinThreshold || req.Threshold > MaxThreshold {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidThreshold, req.Threshold)
	}
	if t.Empty() {
		return nil, ErrEmptyTable
	}
	if len(t.NumericColumns()) == 0 {
		return nil, ErrNoNumericColumns
	}
	col, ok := t.Column(req.Target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", table.ErrUnknownColumn, req.Target)
	}
	if !col.Kind.Numeric() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTargetNotNumeric, req.Target, col.Kind)
	}
	present := col.Present()
	if len(present) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTargetEmpty, req.Target)
	}

	res := &Result{Target: req.Target, Threshold: req.Threshold, Cutoff: req.Cutoff()}
	y := col.Floats()
	if gaps := col.Missing(); gaps > 0 {
		mean := stat.Mean(present, nil)
		for i, v := range y {
			if math.IsNaN(v) {
				y[i] = mean
			}
		}
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("Column %q has %d non-numeric or missing values; they were replaced with the mean (%.2f).", req.Target, gaps, mean))
	}

	if err := p.fit(ctx, t, y, res); err != nil {
		p.logger.Warn("forecast failed", slog.String("target", req.Target), slog.String("error", err.Error()))
		return nil, err
	}
	res.Warnings = append(res.Warnings, Disclaimer)
	res.Duration = time.Since(start)
	p.logger.Info("forecast complete",
		slog.String("target", req.Target),
		slog.Int("rows", t.NumRows()),
		slog.Int("features", len(res.Features)),
		slog.Float64("rmse", res.RMSE),
		slog.Float64("accuracy", res.Accuracy),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (p *Pipeline) fit(ctx context.Context, t *table.Table, y []float64, res *Result) (err error) {
	stage := "encoding"
	defer func() {
		if r := recover(); r != nil {
			err = &ModelingError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	fail := func(e error) error { return &ModelingError{Stage: stage, Err: e} }

	for i, v := range y {
		if math.IsInf(v, 0) {
			return fail(fmt.Errorf("%w: target %q at row %d", ErrNonFinite, res.Target, i))
		}
	}
	res.Targets = y
	feats, err := Encode(t, res.Target)
	if err != nil {
		return fail(err)
	}
	res.Features = feats.Names

	stage = "splitting"
	train, test, err := Split(t.NumRows(), p.cfg.TestRatio, p.cfg.Seed)
	if err != nil {
		return fail(err)
	}
	res.TrainRows, res.TestRows = len(train), len(test)
	xTrain, xTest := feats.Rows(train), feats.Rows(test)

	stage = "regression fitting"
	reg := model.NewRandomForestRegressor(
		model.WithEstimators(p.cfg.Estimators),
		model.WithRandomState(p.cfg.Seed),
		model.WithWorkers(p.cfg.Workers),
	)
	if err := reg.Fit(ctx, xTrain, pick(y, train)); err != nil {
		return fail(err)
	}
	pred, err := reg.Predict(xTest)
	if err != nil {
		return fail(err)
	}
	res.RMSE = model.RMSE(pick(y, test), pred)

	stage = "classification fitting"
	labels := make([]int, len(y))
	for i, v := range y {
		if v >= res.Cutoff {
			labels[i] = 1
		}
	}
	clf := model.NewRandomForestClassifier(
		model.WithEstimators(p.cfg.Estimators),
		model.WithRandomState(p.cfg.Seed),
		model.WithWorkers(p.cfg.Workers),
	)
	if err := clf.Fit(ctx, xTrain, pickInt(labels, train)); err != nil {
		return fail(err)
	}
	honors, err := clf.Predict(xTest)
	if err != nil {
		return fail(err)
	}
	res.Accuracy = model.Accuracy(pickInt(labels, test), honors)

	stage = "scoring"
	scores, err := reg.Predict(feats.X)
	if err != nil {
		return fail(err)
	}
	res.Scores = scores
	res.Groups = make([]Group, len(scores))
	recs := make([]string, len(scores))
	top := 0
	for i, s := range scores {
		g := AssignGroup(s)
		res.Groups[i] = g
		recs[i] = g.Recommendation()
		if s >= res.Cutoff {
			top++
		}
	}
	res.TopHonorsPercent = float64(top) / float64(len(scores)) * 100

	annotated := t.Clone()
	if err := setColumn(annotated, table.NewFloatColumn(ScoreColumn, table.KindFloat, scores)); err != nil {
		return fail(err)
	}
	if err := setColumn(annotated, table.NewTextColumn(RecommendationColumn, recs, nil)); err != nil {
		return fail(err)
	}
	res.Table = annotated
	res.Histogram = BuildHistogram(scores, res.Groups, p.cfg.HistogramBins)
	return nil
}

// setColumn adds c, replacing a same-named column from an earlier run.
func setColumn(t *table.Table, c *table.Column) error {
	if _, ok := t.Column(c.Name); ok {
		return t.ReplaceColumn(c)
	}
	return t.AddColumn(c)
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = v[r]
	}
	return out
}

func pickInt(v []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, r := range idx {
		out[i] = v[r]
	}
	return out
}
