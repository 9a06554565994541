// Package inference turns a feature vector into a DC power forecast:
// scale the features, run the model, de-scale the result.
//
// The Engine is deliberately thin. It does not retry and does not fall back;
// failures are returned to the caller, which decides whether the cycle is lost.
package inference

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrSchemaMismatch reports a feature vector whose shape disagrees with
	// the fitted scaler or model.
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	// ErrNotFitted reports a scaler or model without fitted parameters.
	ErrNotFitted = errors.New("transformer not fitted")
)

// Engine chains the feature scaler, the model and the target scaler.
type Engine struct {
	X     FeatureScaler
	Model Model
	Y     TargetScaler
}

// NewEngine returns an Engine. Nil scalers default to IdentityScaler.
func NewEngine(x FeatureScaler, model Model, y TargetScaler) *Engine {
	if x == nil {
		x = IdentityScaler{}
	}
	if y == nil {
		y = IdentityScaler{}
	}
	return &Engine{X: x, Model: model, Y: y}
}

// Infer returns the de-scaled forecast for vector.
func (e *Engine) Infer(vector []float64) (float64, error) {
	if e.Model == nil {
		return 0, fmt.Errorf("no model loaded: %w", ErrNotFitted)
	}
	if n := e.Model.NumFeatures(); n > 0 && len(vector) != n {
		return 0, fmt.Errorf("model expects %d features, got %d: %w", n, len(vector), ErrSchemaMismatch)
	}

	scaled, err := e.X.Transform(vector)
	if err != nil {
		return 0, fmt.Errorf("failed to scale features: %w", err)
	}

	yScaled, err := e.Model.Predict(scaled)
	if err != nil {
		return 0, fmt.Errorf("model prediction failed: %w", err)
	}

	y, err := e.Y.InverseTransform(yScaled)
	if err != nil {
		return 0, fmt.Errorf("failed to de-scale prediction: %w", err)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("model produced non-finite value %v", y)
	}
	return y, nil
}
