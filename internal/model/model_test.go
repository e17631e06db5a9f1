package model_test

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/gradecast/internal/model"
)

func stepData() ([][]float64, []float64, []int) {
	var X [][]float64
	var y []float64
	var labels []int
	for i := 0; i < 10; i++ {
		X = append(X, []float64{float64(i), 1})
		if i < 5 {
			y = append(y, 10)
			labels = append(labels, 0)
		} else {
			y = append(y, 20)
			labels = append(labels, 1)
		}
	}
	return X, y, labels
}

func TestTreeRegressionStep(t *testing.T) {
	X, y, _ := stepData()
	tr := model.NewTree(model.Regression)
	require.NoError(t, tr.FitRegression(X, y))
	assert.Equal(t, 3, tr.NodeCount())
	assert.Equal(t, 10.0, tr.Predict([]float64{2, 1}))
	assert.Equal(t, 20.0, tr.Predict([]float64{7, 1}))
	// threshold sits at the midpoint 4.5
	assert.Equal(t, 10.0, tr.Predict([]float64{4.5, 1}))
	assert.Equal(t, 20.0, tr.Predict([]float64{4.6, 1}))
}

func TestTreeClassificationStep(t *testing.T) {
	X, _, labels := stepData()
	tr := model.NewTree(model.Classification)
	require.NoError(t, tr.FitClassification(X, labels, 2))
	assert.Equal(t, []float64{1, 0}, tr.PredictProba([]float64{0, 1}))
	assert.Equal(t, []float64{0, 1}, tr.PredictProba([]float64{9, 1}))

	assert.Error(t, tr.FitClassification(X, labels, 1), "label 1 out of range")
}

func TestTreeMaxDepthAndConstantTarget(t *testing.T) {
	X, y, _ := stepData()
	tr := model.NewTree(model.Regression)
	tr.MaxDepth = 1
	require.NoError(t, tr.FitRegression(X, y))
	assert.LessOrEqual(t, tr.NodeCount(), 3)

	flat := make([]float64, len(y))
	for i := range flat {
		flat[i] = 7
	}
	tr = model.NewTree(model.Regression)
	require.NoError(t, tr.FitRegression(X, flat))
	assert.Equal(t, 1, tr.NodeCount())
	assert.Equal(t, 7.0, tr.Predict([]float64{3, 1}))
}

func TestValidationErrors(t *testing.T) {
	tr := model.NewTree(model.Regression)
	assert.Error(t, tr.FitRegression(nil, nil))
	assert.Error(t, tr.FitRegression([][]float64{{1}}, []float64{1, 2}))
	assert.Error(t, tr.FitRegression([][]float64{{1}, {1, 2}}, []float64{1, 2}))
	assert.Error(t, tr.FitRegression([][]float64{{math.NaN()}}, []float64{1}))
	assert.ErrorContains(t, tr.FitRegression([][]float64{{math.Inf(1)}}, []float64{1}), "infinity")
	assert.ErrorContains(t, tr.FitRegression([][]float64{{1}}, []float64{math.Inf(-1)}), "infinity")
	clf := model.NewTree(model.Classification)
	assert.Error(t, clf.FitClassification([][]float64{{math.Inf(1)}, {0}}, []int{0, 1}, 2))

	inf := model.NewRandomForestRegressor(model.WithEstimators(3))
	assert.Error(t, inf.Fit(context.Background(), [][]float64{{1}, {2}}, []float64{1, math.Inf(1)}))

	f := model.NewRandomForestRegressor()
	_, err := f.Predict([][]float64{{1}})
	assert.Error(t, err)

	f = model.NewRandomForestRegressor(model.WithEstimators(0))
	assert.Error(t, f.Fit(context.Background(), [][]float64{{1}}, []float64{1}))
}

func noisyData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		hours := rng.Float64() * 10
		attendance := 50 + rng.Float64()*50
		X[i] = []float64{hours, attendance}
		y[i] = 3*hours + 0.6*attendance + rng.NormFloat64()*2
	}
	return X, y
}

func TestForestRegressorDeterministic(t *testing.T) {
	X, y := noisyData(120, 1)
	ctx := context.Background()

	a := model.NewRandomForestRegressor(model.WithEstimators(20), model.WithRandomState(42), model.WithWorkers(1))
	b := model.NewRandomForestRegressor(model.WithEstimators(20), model.WithRandomState(42), model.WithWorkers(8))
	require.NoError(t, a.Fit(ctx, X, y))
	require.NoError(t, b.Fit(ctx, X, y))
	pa, err := a.Predict(X)
	require.NoError(t, err)
	pb, err := b.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)

	c := model.NewRandomForestRegressor(model.WithEstimators(20), model.WithRandomState(7))
	require.NoError(t, c.Fit(ctx, X, y))
	pc, err := c.Predict(X)
	require.NoError(t, err)
	assert.NotEqual(t, pa, pc)

	// fits the training data far better than predicting the mean
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	base := make([]float64, len(y))
	for i := range base {
		base[i] = mean
	}
	assert.Less(t, model.RMSE(y, pa), model.RMSE(y, base)/2)
}

func TestForestClassifier(t *testing.T) {
	X, y := noisyData(150, 3)
	labels := make([]int, len(y))
	for i, v := range y {
		if v >= 60 {
			labels[i] = 1
		}
	}
	ctx := context.Background()
	f := model.NewRandomForestClassifier(model.WithEstimators(25), model.WithRandomState(42))
	require.NoError(t, f.Fit(ctx, X, labels))
	assert.Equal(t, []int{0, 1}, f.Classes())

	pred, err := f.Predict(X)
	require.NoError(t, err)
	assert.Greater(t, model.Accuracy(labels, pred), 0.9)

	probas, err := f.PredictProba(X[:3])
	require.NoError(t, err)
	for _, p := range probas {
		assert.InDelta(t, 1.0, p[0]+p[1], 1e-9)
	}

	g := model.NewRandomForestClassifier(model.WithEstimators(25), model.WithRandomState(42), model.WithWorkers(3))
	require.NoError(t, g.Fit(ctx, X, labels))
	pred2, err := g.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, pred, pred2)
}

func TestForestClassifierSingleClass(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}}
	f := model.NewRandomForestClassifier(model.WithEstimators(3))
	require.NoError(t, f.Fit(context.Background(), X, []int{0, 0, 0}))
	pred, err := f.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, pred)
}

func TestFitCancelled(t *testing.T) {
	X, y := noisyData(20, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := model.NewRandomForestRegressor(model.WithEstimators(5))
	assert.ErrorIs(t, f.Fit(ctx, X, y), context.Canceled)
}

func TestMetrics(t *testing.T) {
	assert.InDelta(t, math.Sqrt(2.5), model.RMSE([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.Equal(t, 0.75, model.Accuracy([]int{1, 0, 1, 1}, []int{1, 0, 0, 1}))
	assert.True(t, math.IsNaN(model.RMSE(nil, nil)))
	assert.True(t, math.IsNaN(model.Accuracy(nil, nil)))
}
