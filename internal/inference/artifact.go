package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Artifact is the exported form of a trained forecaster.
type Artifact struct {
	FeatureNames []string     `json:"feature_names"`
	HorizonSteps int          `json:"horizon_steps"`
	ScalerX      ScalerParams `json:"scaler_x"`
	ScalerY      ScalerParams `json:"scaler_y"`
	Model        ModelParams  `json:"model"`
}

// ScalerParams holds MinMaxScaler bounds.
type ScalerParams struct {
	DataMin      []float64   `json:"data_min"`
	DataMax      []float64   `json:"data_max"`
	FeatureRange *[2]float64 `json:"feature_range,omitempty"`
}

// ModelParams describes the regressor.
type ModelParams struct {
	Type       string      `json:"type"`
	NNeighbors int         `json:"n_neighbors"`
	X          [][]float64 `json:"x"`
	Y          []float64   `json:"y"`
}

// LoadArtifact reads an artifact from a JSON file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	return &a, nil
}

func (p ScalerParams) build() (*MinMaxScaler, error) {
	lo, hi := 0.0, 1.0
	if p.FeatureRange != nil {
		lo, hi = p.FeatureRange[0], p.FeatureRange[1]
	}
	return NewMinMaxScaler(p.DataMin, p.DataMax, lo, hi)
}

// Engine builds a ready Engine. When the artifact names its features they must
// match schema exactly, in order.
func (a *Artifact) Engine(schema []string) (*Engine, error) {
	if len(a.FeatureNames) > 0 {
		if len(a.FeatureNames) != len(schema) {
			return nil, fmt.Errorf("artifact has %d features, builder produces %d: %w",
				len(a.FeatureNames), len(schema), ErrSchemaMismatch)
		}
		for i, name := range a.FeatureNames {
			if name != schema[i] {
				return nil, fmt.Errorf("feature %d is %q in artifact, %q in builder: %w",
					i, name, schema[i], ErrSchemaMismatch)
			}
		}
	}

	sx, err := a.ScalerX.build()
	if err != nil {
		return nil, fmt.Errorf("invalid scaler_x: %w", err)
	}
	if sx.NumFeatures() != len(schema) {
		return nil, fmt.Errorf("scaler_x has %d columns, want %d: %w", sx.NumFeatures(), len(schema), ErrSchemaMismatch)
	}
	sy, err := a.ScalerY.build()
	if err != nil {
		return nil, fmt.Errorf("invalid scaler_y: %w", err)
	}
	if sy.NumFeatures() != 1 {
		return nil, errors.New("scaler_y must have exactly one column")
	}

	var model Model
	switch a.Model.Type {
	case "knn", "":
		knn, err := NewKNNRegressor(a.Model.NNeighbors, a.Model.X, a.Model.Y)
		if err != nil {
			return nil, fmt.Errorf("invalid knn model: %w", err)
		}
		if knn.NumFeatures() != len(schema) {
			return nil, fmt.Errorf("knn has %d features, want %d: %w", knn.NumFeatures(), len(schema), ErrSchemaMismatch)
		}
		model = knn
	default:
		return nil, fmt.Errorf("unsupported model type %q", a.Model.Type)
	}

	return NewEngine(sx, model, sy), nil
}
