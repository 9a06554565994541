// Package publish writes each forecast back to the remote store next to the
// reading it was computed from.
//
// Three writes happen per cycle:
//
//  1. devices/<id>/prediksi is overwritten with {dc_power_predicted, timestamp}.
//  2. The prediction field is merged into devices/<id>/sensor.
//  3. The prediction field is merged into the newest entry of today's
//     sensorLog partition, if there is one.
//
// The third write is advisory. The log is written by the device, not by us, and
// there is no key linking a reading to its log entry. "Last key in the partition"
// is a snapshot: the device may append another entry before our merge lands.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/solarcast/internal/models"
	"github.com/rewired-gh/solarcast/internal/store"
)

// DateLayout is the layout of the sensorLog date partition.
const DateLayout = "2006-01-02"

// Publisher performs the per-cycle writes.
type Publisher struct {
	Store           store.Store
	Paths           store.Paths
	PredictionField string
	Location        *time.Location
}

// New returns a Publisher for device.
func New(s store.Store, device, predictionField string, loc *time.Location) *Publisher {
	if predictionField == "" {
		predictionField = "prediksi"
	}
	if loc == nil {
		loc = time.Local
	}
	return &Publisher{
		Store:           s,
		Paths:           store.Paths{Device: device},
		PredictionField: predictionField,
		Location:        loc,
	}
}

// Result describes what a Publish call wrote.
type Result struct {
	PredictionPath string
	SensorPath     string
	LogPatched     bool
	LogPath        string // empty when no log entry was patched
}

// Publish writes value, computed at ts, to the store.
func (p *Publisher) Publish(ctx context.Context, ts time.Time, value float64) (Result, error) {
	ts = ts.In(p.Location)
	res := Result{
		PredictionPath: p.Paths.Prediction(),
		SensorPath:     p.Paths.Sensor(),
	}

	record := models.NewPredictionRecord(value, ts)
	if err := p.Store.Set(ctx, res.PredictionPath, record.Document()); err != nil {
		return res, fmt.Errorf("failed to write prediction record: %w", err)
	}

	patch := map[string]any{p.PredictionField: value}
	if err := p.Store.Update(ctx, res.SensorPath, patch); err != nil {
		return res, fmt.Errorf("failed to merge prediction into sensor: %w", err)
	}

	partition := p.Paths.LogPartition(ts.Format(DateLayout))
	key, ok, err := p.Store.LastChild(ctx, partition)
	if err != nil {
		return res, fmt.Errorf("failed to find latest log entry: %w", err)
	}
	if !ok {
		return res, nil
	}

	logPath := store.Join(partition, key)
	if err := p.Store.Update(ctx, logPath, patch); err != nil {
		return res, fmt.Errorf("failed to merge prediction into log entry %s: %w", key, err)
	}
	res.LogPatched = true
	res.LogPath = logPath
	return res, nil
}

// PublishPrediction is Publish for a full Prediction.
func (p *Publisher) PublishPrediction(ctx context.Context, pred *models.Prediction) (Result, error) {
	if err := pred.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid prediction: %w", err)
	}
	return p.Publish(ctx, pred.Timestamp, pred.Value)
}
