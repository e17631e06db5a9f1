package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// SqrtFeatures makes each split consider sqrt(p) candidate features.
const SqrtFeatures = -1

// Config holds forest hyperparameters.
type Config struct {
	Estimators      int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 => all, SqrtFeatures => sqrt(p)
	Bootstrap       bool
	RandomState     int64
	Workers         int // 0 => GOMAXPROCS
}

// Option functional config for forests.
type Option func(*Config)

func WithEstimators(n int) Option       { return func(c *Config) { c.Estimators = n } }
func WithMaxDepth(d int) Option         { return func(c *Config) { c.MaxDepth = d } }
func WithMinSamplesLeaf(n int) Option   { return func(c *Config) { c.MinSamplesLeaf = n } }
func WithMaxFeatures(k int) Option      { return func(c *Config) { c.MaxFeatures = k } }
func WithBootstrap(b bool) Option       { return func(c *Config) { c.Bootstrap = b } }
func WithRandomState(seed int64) Option { return func(c *Config) { c.RandomState = seed } }
func WithWorkers(n int) Option          { return func(c *Config) { c.Workers = n } }

func newConfig(maxFeatures int, opts []Option) Config {
	c := Config{
		Estimators:      100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     maxFeatures,
		Bootstrap:       true,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func (c Config) featuresFor(p int) int {
	if c.MaxFeatures == SqrtFeatures {
		k := int(math.Sqrt(float64(p)))
		if k < 1 {
			k = 1
		}
		return k
	}
	return c.MaxFeatures
}

// RandomForestRegressor averages bagged regression trees.
type RandomForestRegressor struct {
	Config
	trees []*Tree
}

// NewRandomForestRegressor considers every feature at each split by default.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	return &RandomForestRegressor{Config: newConfig(0, opts)}
}

// Fit trains the forest. Cancelling ctx stops scheduling further trees.
func (f *RandomForestRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := validate(X, len(y)); err != nil {
		return err
	}
	if err := validateTarget(y); err != nil {
		return err
	}
	trees, err := fitTrees(ctx, f.Config, len(X), func(t *Tree, rows []int, rng *rand.Rand) {
		t.Task = Regression
		t.MaxFeatures = f.featuresFor(len(X[0]))
		t.fit(X, y, rows, rng)
	})
	if err != nil {
		return err
	}
	f.trees = trees
	return nil
}

// Predict returns the mean tree prediction for every row of X.
func (f *RandomForestRegressor) Predict(X [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, errNotFit
	}
	out := make([]float64, len(X))
	for i, x := range X {
		s := 0.0
		for _, t := range f.trees {
			s += t.Predict(x)
		}
		out[i] = s / float64(len(f.trees))
	}
	return out, nil
}

// RandomForestClassifier averages class probabilities of bagged trees.
type RandomForestClassifier struct {
	Config
	classes []int
	trees   []*Tree
}

// NewRandomForestClassifier considers sqrt(p) features at each split by default.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	return &RandomForestClassifier{Config: newConfig(SqrtFeatures, opts)}
}

// Fit trains the forest on integer labels.
func (f *RandomForestClassifier) Fit(ctx context.Context, X [][]float64, y []int) error {
	if err := validate(X, len(y)); err != nil {
		return err
	}
	seen := map[int]bool{}
	f.classes = f.classes[:0]
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			f.classes = append(f.classes, v)
		}
	}
	sort.Ints(f.classes)
	index := make(map[int]int, len(f.classes))
	for i, c := range f.classes {
		index[c] = i
	}
	yf := make([]float64, len(y))
	for i, v := range y {
		yf[i] = float64(index[v])
	}
	trees, err := fitTrees(ctx, f.Config, len(X), func(t *Tree, rows []int, rng *rand.Rand) {
		t.Task = Classification
		t.nClasses = len(f.classes)
		t.MaxFeatures = f.featuresFor(len(X[0]))
		t.fit(X, yf, rows, rng)
	})
	if err != nil {
		return err
	}
	f.trees = trees
	return nil
}

// Classes returns the sorted labels seen during Fit.
func (f *RandomForestClassifier) Classes() []int { return f.classes }

// PredictProba returns averaged class probabilities aligned with Classes.
func (f *RandomForestClassifier) PredictProba(X [][]float64) ([][]float64, error) {
	if len(f.trees) == 0 {
		return nil, errNotFit
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		p := make([]float64, len(f.classes))
		for _, t := range f.trees {
			for k, v := range t.PredictProba(x) {
				p[k] += v
			}
		}
		for k := range p {
			p[k] /= float64(len(f.trees))
		}
		out[i] = p
	}
	return out, nil
}

// Predict returns the most probable label per row; ties go to the lower label.
func (f *RandomForestClassifier) Predict(X [][]float64) ([]int, error) {
	probas, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	for i, p := range probas {
		best := 0
		for k := 1; k < len(p); k++ {
			if p[k] > p[best] {
				best = k
			}
		}
		out[i] = f.classes[best]
	}
	return out, nil
}

// fitTrees draws one seed per tree from the master RandomState up front, so
// the result does not depend on scheduling order. Each goroutine writes only
// its own slot.
func fitTrees(ctx context.Context, cfg Config, n int, fit func(t *Tree, rows []int, rng *rand.Rand)) ([]*Tree, error) {
	if cfg.Estimators < 1 {
		return nil, fmt.Errorf("model: estimators must be positive, got %d", cfg.Estimators)
	}
	master := rand.New(rand.NewSource(cfg.RandomState))
	seeds := make([]int64, cfg.Estimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*Tree, cfg.Estimators)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		idx := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("model: tree %d: %v", idx, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[idx]))
			rows := make([]int, n)
			for j := range rows {
				if cfg.Bootstrap {
					rows[j] = rng.Intn(n)
				} else {
					rows[j] = j
				}
			}
			t := &Tree{
				MaxDepth:        cfg.MaxDepth,
				MinSamplesSplit: cfg.MinSamplesSplit,
				MinSamplesLeaf:  cfg.MinSamplesLeaf,
				RandomState:     seeds[idx],
			}
			fit(t, rows, rng)
			trees[idx] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trees, nil
}
