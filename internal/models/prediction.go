package models

import (
	"errors"
	"math"
	"time"
)

// TimestampLayout is the layout of the timestamp written next to each prediction.
const TimestampLayout = "2006-01-02 15:04:05"

// FeatureVector is the ordered model input. Its order is a contract with the
// trained model artifact.
type FeatureVector []float64

// Clone returns a copy of the vector.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}

// Prediction is the forecast produced by one cycle
type Prediction struct {
	CycleID   string        `json:"cycle_id"`
	DeviceID  string        `json:"device_id"`
	Value     float64       `json:"dc_power_predicted"`
	Features  FeatureVector `json:"features"`
	Reading   Reading       `json:"reading"`
	Timestamp time.Time     `json:"timestamp"`
}

// Validate checks that the prediction can be published
func (p *Prediction) Validate() error {
	if p.CycleID == "" {
		return errors.New("cycle ID must not be empty")
	}
	if p.DeviceID == "" {
		return errors.New("device ID must not be empty")
	}
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return errors.New("predicted value must be finite")
	}
	if p.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}

// PredictionRecord is the document stored under devices/<id>/prediksi.
type PredictionRecord struct {
	DCPowerPredicted float64 `json:"dc_power_predicted"`
	Timestamp        string  `json:"timestamp"`
}

// NewPredictionRecord formats value and ts into the stored record.
func NewPredictionRecord(value float64, ts time.Time) PredictionRecord {
	return PredictionRecord{
		DCPowerPredicted: value,
		Timestamp:        ts.Format(TimestampLayout),
	}
}

// Document converts the record into a store document.
func (r PredictionRecord) Document() map[string]any {
	return map[string]any{
		"dc_power_predicted": r.DCPowerPredicted,
		"timestamp":          r.Timestamp,
	}
}
