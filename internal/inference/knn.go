package inference

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Model predicts a scaled target from a scaled feature vector.
type Model interface {
	Predict(x []float64) (float64, error)
	// NumFeatures is the expected input length, or 0 when unknown.
	NumFeatures() int
}

// ModelFunc adapts a plain function to Model. Its input length is not checked.
type ModelFunc func(x []float64) (float64, error)

// Predict calls f.
func (f ModelFunc) Predict(x []float64) (float64, error) { return f(x) }

// NumFeatures returns 0.
func (f ModelFunc) NumFeatures() int { return 0 }

// KNNRegressor averages the targets of the K nearest training rows using
// Euclidean distance and uniform weights.
type KNNRegressor struct {
	K int
	X [][]float64
	Y []float64
}

// NewKNNRegressor validates and returns a fitted regressor.
func NewKNNRegressor(k int, x [][]float64, y []float64) (*KNNRegressor, error) {
	if k < 1 {
		return nil, fmt.Errorf("n_neighbors must be at least 1, got %d", k)
	}
	if len(x) == 0 {
		return nil, errors.New("knn training set is empty")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("knn has %d rows but %d targets", len(x), len(y))
	}
	n := len(x[0])
	if n == 0 {
		return nil, errors.New("knn training rows have no features")
	}
	for i, row := range x {
		if len(row) != n {
			return nil, fmt.Errorf("knn row %d has %d features, want %d: %w", i, len(row), n, ErrSchemaMismatch)
		}
	}
	return &KNNRegressor{K: k, X: x, Y: y}, nil
}

// NumFeatures returns the training row width.
func (m *KNNRegressor) NumFeatures() int {
	if m == nil || len(m.X) == 0 {
		return 0
	}
	return len(m.X[0])
}

// Predict returns the mean target of the nearest neighbours of x.
func (m *KNNRegressor) Predict(x []float64) (float64, error) {
	n := m.NumFeatures()
	if n == 0 {
		return 0, ErrNotFitted
	}
	if len(x) != n {
		return 0, fmt.Errorf("knn expects %d features, got %d: %w", n, len(x), ErrSchemaMismatch)
	}

	type neighbour struct {
		idx  int
		dist float64
	}
	ns := make([]neighbour, len(m.X))
	for i, row := range m.X {
		ns[i] = neighbour{idx: i, dist: floats.Distance(x, row, 2)}
	}
	sort.SliceStable(ns, func(a, b int) bool { return ns[a].dist < ns[b].dist })

	k := m.K
	if k > len(ns) {
		k = len(ns)
	}
	targets := make([]float64, k)
	for i := 0; i < k; i++ {
		targets[i] = m.Y[ns[i].idx]
	}
	return floats.Sum(targets) / float64(k), nil
}
