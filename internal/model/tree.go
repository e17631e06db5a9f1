// Package model implements CART decision trees and bagged forests for
// regression and binary or multi-class classification.
package model

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// Task selects the split criterion and leaf value of a tree.
type Task int

const (
	// Regression minimizes squared error; leaves hold the mean target.
	Regression Task = iota
	// Classification minimizes gini impurity; leaves hold class probabilities.
	Classification
)

// minDecrease is the smallest impurity drop accepted for a split.
const minDecrease = 1e-12

var (
	errEmpty    = errors.New("model: empty X")
	errMismatch = errors.New("model: X and y length mismatch")
	errRagged   = errors.New("model: inconsistent number of features in X rows")
	errNaN      = errors.New("model: X contains NaN")
	errInf      = errors.New("model: X contains infinity")
	errTarget   = errors.New("model: y contains NaN or infinity")
	errNotFit   = errors.New("model: not fitted")
)

// Tree is a CART tree stored as a flat node slice; node 0 is the root.
type Tree struct {
	Task            Task
	MaxDepth        int // 0 => unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 => all features
	RandomState     int64

	nClasses int
	nodes    []node
}

type node struct {
	leaf      bool
	feature   int
	threshold float64 // x <= threshold => left
	left      int
	right     int
	value     float64
	probas    []float64
}

// NewTree returns a tree with the usual CART defaults.
func NewTree(task Task) *Tree {
	return &Tree{Task: task, MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

// FitRegression fits on every row of X.
func (t *Tree) FitRegression(X [][]float64, y []float64) error {
	if err := validate(X, len(y)); err != nil {
		return err
	}
	if err := validateTarget(y); err != nil {
		return err
	}
	t.Task = Regression
	t.nClasses = 0
	t.fit(X, y, allRows(len(X)), rand.New(rand.NewSource(t.RandomState)))
	return nil
}

// FitClassification fits on every row of X. Labels must be 0..nClasses-1.
func (t *Tree) FitClassification(X [][]float64, y []int, nClasses int) error {
	if err := validate(X, len(y)); err != nil {
		return err
	}
	t.Task = Classification
	t.nClasses = nClasses
	yf := make([]float64, len(y))
	for i, v := range y {
		if v < 0 || v >= nClasses {
			return errors.New("model: label out of range")
		}
		yf[i] = float64(v)
	}
	t.fit(X, yf, allRows(len(X)), rand.New(rand.NewSource(t.RandomState)))
	return nil
}

// Predict returns the leaf value for one sample (regression).
func (t *Tree) Predict(x []float64) float64 {
	return t.nodes[t.leafFor(x)].value
}

// PredictProba returns the leaf class distribution for one sample.
func (t *Tree) PredictProba(x []float64) []float64 {
	return t.nodes[t.leafFor(x)].probas
}

// NodeCount returns the number of nodes in the fitted tree.
func (t *Tree) NodeCount() int { return len(t.nodes) }

func (t *Tree) leafFor(x []float64) int {
	i := 0
	for !t.nodes[i].leaf {
		n := t.nodes[i]
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return i
}

// fit grows the tree over the given rows (duplicates allowed, as produced by
// bootstrap sampling). y holds class indices as floats for classification.
func (t *Tree) fit(X [][]float64, y []float64, rows []int, rng *rand.Rand) {
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}
	t.nodes = t.nodes[:0]
	t.grow(X, y, rows, 0, rng)
}

func (t *Tree) grow(X [][]float64, y []float64, rows []int, depth int, rng *rand.Rand) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, t.leafNode(y, rows))

	if len(rows) < t.MinSamplesSplit || (t.MaxDepth > 0 && depth >= t.MaxDepth) {
		return idx
	}
	parent := t.impurity(y, rows)
	if parent <= minDecrease {
		return idx
	}
	feat, thr, score, ok := t.bestSplit(X, y, rows, rng)
	if !ok || parent-score <= minDecrease {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if X[r][feat] <= thr {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := t.grow(X, y, left, depth+1, rng)
	rt := t.grow(X, y, right, depth+1, rng)
	t.nodes[idx] = node{feature: feat, threshold: thr, left: l, right: rt}
	return idx
}

func (t *Tree) leafNode(y []float64, rows []int) node {
	n := node{leaf: true}
	if t.Task == Classification {
		n.probas = make([]float64, t.nClasses)
		for _, r := range rows {
			n.probas[int(y[r])]++
		}
		for k := range n.probas {
			n.probas[k] /= float64(len(rows))
		}
		return n
	}
	sum := 0.0
	for _, r := range rows {
		sum += y[r]
	}
	n.value = sum / float64(len(rows))
	return n
}

// impurity returns the total (not averaged) impurity of rows: the sum of
// squared errors for regression, n*gini for classification.
func (t *Tree) impurity(y []float64, rows []int) float64 {
	if t.Task == Classification {
		counts := make([]float64, t.nClasses)
		for _, r := range rows {
			counts[int(y[r])]++
		}
		return giniTotal(counts, float64(len(rows)))
	}
	var sum, sq float64
	for _, r := range rows {
		sum += y[r]
		sq += y[r] * y[r]
	}
	return sse(sum, sq, float64(len(rows)))
}

func sse(sum, sq, n float64) float64 {
	if n == 0 {
		return 0
	}
	v := sq - sum*sum/n
	if v < 0 {
		return 0
	}
	return v
}

func giniTotal(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	s := 0.0
	for _, c := range counts {
		p := c / n
		s += p * p
	}
	return n * (1 - s)
}

// bestSplit scans candidate features in random order. It evaluates
// MaxFeatures of them and keeps going past that only while no valid split
// has been found.
func (t *Tree) bestSplit(X [][]float64, y []float64, rows []int, rng *rand.Rand) (feat int, thr, score float64, ok bool) {
	p := len(X[rows[0]])
	order := rng.Perm(p)
	k := t.MaxFeatures
	if k <= 0 || k > p {
		k = p
	}
	score = math.Inf(1)
	sorted := make([]int, len(rows))
	for visited, f := range order {
		if visited >= k && ok {
			break
		}
		copy(sorted, rows)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })
		if s, th, found := t.scanFeature(X, y, sorted, f); found && s < score {
			feat, thr, score, ok = f, th, s, true
		}
	}
	return feat, thr, score, ok
}

// scanFeature sweeps the sorted rows once, returning the lowest child
// impurity over all thresholds that respect MinSamplesLeaf.
func (t *Tree) scanFeature(X [][]float64, y []float64, sorted []int, f int) (best, thr float64, found bool) {
	n := len(sorted)
	best = math.Inf(1)
	if X[sorted[0]][f] == X[sorted[n-1]][f] {
		return best, 0, false
	}

	var lCounts, rCounts []float64
	var lSum, lSq, rSum, rSq float64
	if t.Task == Classification {
		lCounts = make([]float64, t.nClasses)
		rCounts = make([]float64, t.nClasses)
		for _, r := range sorted {
			rCounts[int(y[r])]++
		}
	} else {
		for _, r := range sorted {
			rSum += y[r]
			rSq += y[r] * y[r]
		}
	}

	for i := 0; i < n-1; i++ {
		r := sorted[i]
		if t.Task == Classification {
			lCounts[int(y[r])]++
			rCounts[int(y[r])]--
		} else {
			lSum += y[r]
			lSq += y[r] * y[r]
			rSum -= y[r]
			rSq -= y[r] * y[r]
		}
		lo, hi := X[r][f], X[sorted[i+1]][f]
		if lo == hi {
			continue
		}
		nl, nr := float64(i+1), float64(n-i-1)
		if int(nl) < t.MinSamplesLeaf || int(nr) < t.MinSamplesLeaf {
			continue
		}
		var s float64
		if t.Task == Classification {
			s = giniTotal(lCounts, nl) + giniTotal(rCounts, nr)
		} else {
			s = sse(lSum, lSq, nl) + sse(rSum, rSq, nr)
		}
		if s < best {
			best, found = s, true
			thr = lo + (hi-lo)/2
			if thr >= hi {
				thr = lo
			}
		}
	}
	return best, thr, found
}

func validate(X [][]float64, ny int) error {
	if len(X) == 0 {
		return errEmpty
	}
	if len(X) != ny {
		return errMismatch
	}
	p := len(X[0])
	for _, row := range X {
		if len(row) != p {
			return errRagged
		}
		for _, v := range row {
			if math.IsNaN(v) {
				return errNaN
			}
			if math.IsInf(v, 0) {
				return errInf
			}
		}
	}
	return nil
}

func validateTarget(y []float64) error {
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errTarget
		}
	}
	return nil
}

func allRows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
