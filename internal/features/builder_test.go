package features

import (
	"testing"

	"github.com/rewired-gh/solarcast/internal/history"
	"github.com/rewired-gh/solarcast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_ColdStart(t *testing.T) {
	b := NewBuilder(models.DefaultFieldMap())
	r := models.Reading{"irradiance": 500, "temp_dht": 28, "temp_ds18": 35, "humidity": 60, "lux": 10000}

	vec := b.Build(r, history.Default())
	assert.Equal(t, models.FeatureVector{28, 35, 500, 0, 0, 0, 0, 0}, vec)
	assert.Len(t, vec, len(Schema))
}

func TestBuild_MissingIrradianceDefaults(t *testing.T) {
	b := NewBuilder(models.DefaultFieldMap())
	r := models.Reading{"temp_dht": 28, "temp_ds18": 35}

	rep := b.BuildReport(r, history.Default())
	require.Len(t, rep.Vector, len(Schema))
	assert.Equal(t, 0.0, rep.Vector[2])
	assert.Equal(t, []string{"irradiance"}, rep.Defaulted)
}

func TestBuild_CustomDefault(t *testing.T) {
	b := &Builder{Fields: models.DefaultFieldMap(), Default: -1}
	vec := b.Build(nil, history.Default())
	assert.Equal(t, models.FeatureVector{-1, -1, -1, 0, 0, 0, 0, 0}, vec)
}

func TestNewHistory_FillsLagsWithDefault(t *testing.T) {
	b := &Builder{Fields: models.DefaultFieldMap(), Default: -1}
	h := b.NewHistory()
	assert.Equal(t, []float64{-1, -1, -1}, h.Buffer(history.DCPower).Values())

	vec := b.Build(models.Reading{"temp_dht": 28, "temp_ds18": 35, "irradiance": 500}, h)
	assert.Equal(t, models.FeatureVector{28, 35, 500, -1, -1, -1, -1, -1}, vec)
}

func TestBuild_UsesPriorCycleLags(t *testing.T) {
	b := NewBuilder(models.DefaultFieldMap())
	h := history.Default()

	cycles := []models.Reading{
		{"irradiance": 100, "temp_ds18": 30, "dc_power": 1000},
		{"irradiance": 200, "temp_ds18": 31, "dc_power": 2000},
		{"irradiance": 300, "temp_ds18": 32, "dc_power": 3000},
	}
	for _, r := range cycles {
		_ = b.Build(r, h)
		b.Advance(r, h)
	}

	current := models.Reading{"irradiance": 400, "temp_dht": 27, "temp_ds18": 33, "dc_power": 4000}
	vec := b.Build(current, h)
	assert.Equal(t, models.FeatureVector{27, 33, 400, 3000, 2000, 1000, 300, 32}, vec)

	// Build must not mutate history.
	assert.Equal(t, 3000.0, h.Latest(history.DCPower, 0))
}

func TestBuild_CustomFieldNames(t *testing.T) {
	fm := models.FieldMap{
		Irradiance:  "Irradiance",
		AmbientTemp: "TempDHT",
		ModuleTemp:  "TempDS18",
		Humidity:    "Humidity",
		Lux:         "Lux",
		DCPower:     "DCPower",
	}
	b := NewBuilder(fm)
	h := history.Default()
	r := models.Reading{"Irradiance": 10, "TempDHT": 20, "TempDS18": 30, "DCPower": 40}

	assert.Equal(t, models.FeatureVector{20, 30, 10, 0, 0, 0, 0, 0}, b.Build(r, h))
	b.Advance(r, h)
	assert.Equal(t, 40.0, h.Latest(history.DCPower, 0))
	assert.Equal(t, 10.0, h.Latest(history.Irradiance, 0))
	assert.Equal(t, 30.0, h.Latest(history.ModuleTemp, 0))
}

func TestAdvance_MissingDCPower(t *testing.T) {
	b := NewBuilder(models.DefaultFieldMap())
	h := history.Default()
	b.Advance(models.Reading{"irradiance": 5}, h)
	assert.Equal(t, []float64{0, 0, 0}, h.Buffer(history.DCPower).Values())
	assert.Equal(t, 5.0, h.Latest(history.Irradiance, 0))
}

func TestNamed(t *testing.T) {
	named := Named(models.FeatureVector{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, 1.0, named["AMBIENT_TEMPERATURE"])
	assert.Equal(t, 8.0, named["MODULE_TEMPERATURE_t-1"])
	assert.Len(t, named, len(Schema))
}
