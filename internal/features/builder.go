// Package features maps a device reading and the lag history onto the model's
// input vector.
package features

import (
	"github.com/rewired-gh/solarcast/internal/history"
	"github.com/rewired-gh/solarcast/internal/models"
)

// Schema is the feature order the forecasting model was trained with.
var Schema = []string{
	"AMBIENT_TEMPERATURE",
	"MODULE_TEMPERATURE",
	"IRRADIATION",
	"DC_POWER_t-1",
	"DC_POWER_t-2",
	"DC_POWER_t-3",
	"IRRADIATION_t-1",
	"MODULE_TEMPERATURE_t-1",
}

// Builder produces feature vectors. Missing reading fields are replaced by
// Default so that one absent sensor never aborts a cycle.
type Builder struct {
	Fields  models.FieldMap
	Default float64
}

// NewBuilder returns a Builder for the given field names with a zero default.
func NewBuilder(fields models.FieldMap) *Builder {
	return &Builder{Fields: fields}
}

// NewHistory returns a cold lag history pre-filled with Default, so the
// first vectors' lag slots match the fill used for missing fields.
func (b *Builder) NewHistory() *history.History {
	return history.New(history.DefaultCapacities(), b.Default)
}

// Report describes how a vector was assembled.
type Report struct {
	Vector    models.FeatureVector
	Defaulted []string // device fields that were missing and filled with Default
}

// Build returns the feature vector for r. h must not yet contain r.
func (b *Builder) Build(r models.Reading, h *history.History) models.FeatureVector {
	return b.BuildReport(r, h).Vector
}

// BuildReport is Build plus the list of defaulted fields.
func (b *Builder) BuildReport(r models.Reading, h *history.History) Report {
	var defaulted []string
	get := func(field string) float64 {
		if !r.Has(field) {
			defaulted = append(defaulted, field)
			return b.Default
		}
		return r[field]
	}

	vec := models.FeatureVector{
		get(b.Fields.AmbientTemp),
		get(b.Fields.ModuleTemp),
		get(b.Fields.Irradiance),
		h.Latest(history.DCPower, 0),
		h.Latest(history.DCPower, 1),
		h.Latest(history.DCPower, 2),
		h.Latest(history.Irradiance, 0),
		h.Latest(history.ModuleTemp, 0),
	}
	return Report{Vector: vec, Defaulted: defaulted}
}

// Advance folds r into h. Call it only after the cycle's prediction has been
// published.
func (b *Builder) Advance(r models.Reading, h *history.History) {
	h.Push(history.DCPower, r.Value(b.Fields.DCPower, b.Default))
	h.Push(history.Irradiance, r.Value(b.Fields.Irradiance, b.Default))
	h.Push(history.ModuleTemp, r.Value(b.Fields.ModuleTemp, b.Default))
}

// Named pairs each value of v with its schema name, for logging.
func Named(v models.FeatureVector) map[string]float64 {
	out := make(map[string]float64, len(v))
	for i, name := range Schema {
		if i < len(v) {
			out[name] = v[i]
		}
	}
	return out
}
