package inference

import (
	"errors"
	"fmt"
)

// FeatureScaler maps a raw feature vector into the model's input space.
type FeatureScaler interface {
	Transform(x []float64) ([]float64, error)
}

// TargetScaler maps a scaled model output back to physical units.
type TargetScaler interface {
	InverseTransform(y float64) (float64, error)
}

// IdentityScaler leaves values untouched.
type IdentityScaler struct{}

// Transform returns a copy of x.
func (IdentityScaler) Transform(x []float64) ([]float64, error) {
	out := make([]float64, len(x))
	copy(out, x)
	return out, nil
}

// InverseTransform returns y.
func (IdentityScaler) InverseTransform(y float64) (float64, error) {
	return y, nil
}

// MinMaxScaler rescales each column linearly from [DataMin, DataMax] into
// FeatureRange. A column with zero range gets a scale of 1.
type MinMaxScaler struct {
	DataMin      []float64
	DataMax      []float64
	FeatureRange [2]float64

	scale []float64
	min   []float64
}

// NewMinMaxScaler builds a fitted scaler from known column bounds.
func NewMinMaxScaler(dataMin, dataMax []float64, lo, hi float64) (*MinMaxScaler, error) {
	if len(dataMin) == 0 {
		return nil, errors.New("scaler needs at least one column")
	}
	if len(dataMin) != len(dataMax) {
		return nil, fmt.Errorf("data_min has %d columns, data_max has %d", len(dataMin), len(dataMax))
	}
	if hi <= lo {
		return nil, fmt.Errorf("invalid feature range [%v, %v]", lo, hi)
	}
	s := &MinMaxScaler{
		DataMin:      append([]float64(nil), dataMin...),
		DataMax:      append([]float64(nil), dataMax...),
		FeatureRange: [2]float64{lo, hi},
	}
	s.compute()
	return s, nil
}

// FitMinMax fits a [0, 1] scaler on rows.
func FitMinMax(rows [][]float64) (*MinMaxScaler, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("cannot fit scaler on empty data")
	}
	n := len(rows[0])
	lo := append([]float64(nil), rows[0]...)
	hi := append([]float64(nil), rows[0]...)
	for i, row := range rows[1:] {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i+1, len(row), n, ErrSchemaMismatch)
		}
		for j, v := range row {
			if v < lo[j] {
				lo[j] = v
			}
			if v > hi[j] {
				hi[j] = v
			}
		}
	}
	return NewMinMaxScaler(lo, hi, 0, 1)
}

func (s *MinMaxScaler) compute() {
	n := len(s.DataMin)
	s.scale = make([]float64, n)
	s.min = make([]float64, n)
	span := s.FeatureRange[1] - s.FeatureRange[0]
	for j := 0; j < n; j++ {
		r := s.DataMax[j] - s.DataMin[j]
		if r == 0 {
			r = 1
		}
		s.scale[j] = span / r
		s.min[j] = s.FeatureRange[0] - s.DataMin[j]*s.scale[j]
	}
}

// NumFeatures returns the number of fitted columns.
func (s *MinMaxScaler) NumFeatures() int {
	if s == nil {
		return 0
	}
	return len(s.scale)
}

// Transform scales x column by column.
func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if s.NumFeatures() == 0 {
		return nil, ErrNotFitted
	}
	if len(x) != len(s.scale) {
		return nil, fmt.Errorf("scaler expects %d features, got %d: %w", len(s.scale), len(x), ErrSchemaMismatch)
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = v*s.scale[j] + s.min[j]
	}
	return out, nil
}

// InverseTransformVector undoes Transform.
func (s *MinMaxScaler) InverseTransformVector(x []float64) ([]float64, error) {
	if s.NumFeatures() == 0 {
		return nil, ErrNotFitted
	}
	if len(x) != len(s.scale) {
		return nil, fmt.Errorf("scaler expects %d features, got %d: %w", len(s.scale), len(x), ErrSchemaMismatch)
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.min[j]) / s.scale[j]
	}
	return out, nil
}

// InverseTransform de-scales a single target value. The scaler must have
// exactly one column.
func (s *MinMaxScaler) InverseTransform(y float64) (float64, error) {
	out, err := s.InverseTransformVector([]float64{y})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// TransformValue scales a single target value.
func (s *MinMaxScaler) TransformValue(y float64) (float64, error) {
	out, err := s.Transform([]float64{y})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}
