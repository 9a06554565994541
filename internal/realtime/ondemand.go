package realtime

import (
	"context"
	"errors"

	"github.com/rewired-gh/solarcast/internal/features"
	"github.com/rewired-gh/solarcast/internal/models"
	"github.com/rewired-gh/solarcast/internal/store"
)

// ErrNoData reports that the device has not written a reading yet.
var ErrNoData = errors.New("no sensor data")

// Snapshot is a one-shot forecast together with the reading it used.
// Document is the sensor node as stored, non-numeric fields included.
type Snapshot struct {
	Document map[string]any
	Reading  models.Reading
	Features models.FeatureVector
	Value    float64
}

// OnDemand computes a forecast from the current reading without touching the
// poll loop. Every call starts from a cold history, so lag features are the
// fill value.
type OnDemand struct {
	Store   store.Store
	Paths   store.Paths
	Builder *features.Builder
	Engine  Inferer
}

// NewOnDemand returns an OnDemand predictor for device.
func NewOnDemand(s store.Store, device string, b *features.Builder, engine Inferer) *OnDemand {
	return &OnDemand{Store: s, Paths: store.Paths{Device: device}, Builder: b, Engine: engine}
}

// Predict fetches, builds and infers. It returns ErrNoData when the sensor
// document is absent or has no numeric fields.
func (o *OnDemand) Predict(ctx context.Context) (*Snapshot, error) {
	doc, err := o.Store.Get(ctx, o.Paths.Sensor())
	if err != nil {
		return nil, newCycleError(StageFetch, err)
	}
	reading := models.ReadingFromDocument(doc)
	if reading.Empty() {
		return nil, ErrNoData
	}

	vec := o.Builder.Build(reading, o.Builder.NewHistory())
	value, err := o.Engine.Infer(vec)
	if err != nil {
		return nil, newCycleError(StageInfer, err)
	}
	return &Snapshot{Document: doc, Reading: reading, Features: vec, Value: value}, nil
}
