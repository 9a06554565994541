package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/solarcast/internal/features"
	"github.com/rewired-gh/solarcast/internal/inference"
	"github.com/rewired-gh/solarcast/internal/models"
	"github.com/rewired-gh/solarcast/internal/store"
)

func TestOnDemand_Predict(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	var seen []float64
	engine := inference.NewEngine(nil, inference.ModelFunc(func(x []float64) (float64, error) {
		seen = x
		return 42, nil
	}), nil)
	o := NewOnDemand(m, device, features.NewBuilder(models.DefaultFieldMap()), engine)

	_, err := o.Predict(ctx)
	assert.ErrorIs(t, err, ErrNoData)

	require.NoError(t, m.Set(ctx, "devices/esp32_1/sensor", map[string]any{"temp_dht": 28.0, "irradiance": 500.0, "dc_power": 900.0, "status": "ok"}))
	snap, err := o.Predict(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, snap.Value)
	assert.Equal(t, 900.0, snap.Reading["dc_power"])
	assert.Equal(t, "ok", snap.Document["status"])
	assert.NotContains(t, snap.Reading, "status")
	assert.Equal(t, []float64{28, 0, 500, 0, 0, 0, 0, 0}, seen)

	// every call is cold
	_, err = o.Predict(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, seen[3])

	m.FailOn = func(op, path string) error { return errors.New("timeout") }
	_, err = o.Predict(ctx)
	assert.Equal(t, KindTransient, Classify(err))
}

func TestOnDemand_ColdLagsMatchLoop(t *testing.T) {
	ctx := context.Background()
	doc := map[string]any{"temp_dht": 28.0, "temp_ds18": 35.0, "irradiance": 500.0}
	builder := &features.Builder{Fields: models.DefaultFieldMap(), Default: -1}

	var onDemand []float64
	m := store.NewMemory()
	require.NoError(t, m.Set(ctx, "devices/esp32_1/sensor", doc))
	o := NewOnDemand(m, device, builder, inference.NewEngine(nil, inference.ModelFunc(func(x []float64) (float64, error) {
		onDemand = append([]float64(nil), x...)
		return 1, nil
	}), nil))
	_, err := o.Predict(ctx)
	require.NoError(t, err)

	h := newHarness(t, func(opts *Options) { opts.Builder = builder })
	h.setSensor(t, doc)
	_, err = h.loop.RunCycle(ctx)
	require.NoError(t, err)

	require.Len(t, h.vectors, 1)
	assert.Equal(t, []float64{28, 35, 500, -1, -1, -1, -1, -1}, onDemand)
	assert.Equal(t, onDemand, h.vectors[0])
}
