// Package models defines the core domain entities for solarcast.
// These models represent sensor readings pushed by the field device, the feature
// vectors fed to the forecasting model and the predictions written back.
//
// Terminology (matching the device firmware's naming):
//   - Reading: the latest document written by the device under devices/<id>/sensor.
//   - Log entry: an append-only copy of a reading under sensorLog/<date>/<time>.
//   - Prediction: forecast DC power a fixed number of intervals ahead.
package models

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Reading is a single set of sensor values keyed by field name.
// A nil or empty Reading means the device has not produced data yet.
type Reading map[string]float64

// FieldMap names the device fields used by the forecaster. Firmware revisions
// differ in naming and casing, so every field is configurable.
type FieldMap struct {
	Irradiance  string `mapstructure:"irradiance"`
	AmbientTemp string `mapstructure:"ambient_temp"`
	ModuleTemp  string `mapstructure:"module_temp"`
	Humidity    string `mapstructure:"humidity"`
	Lux         string `mapstructure:"lux"`
	DCPower     string `mapstructure:"dc_power"`
}

// DefaultFieldMap returns the field names used by the esp32 firmware.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Irradiance:  "irradiance",
		AmbientTemp: "temp_dht",
		ModuleTemp:  "temp_ds18",
		Humidity:    "humidity",
		Lux:         "lux",
		DCPower:     "dc_power",
	}
}

// Validate checks that every field has a name.
func (f FieldMap) Validate() error {
	for _, name := range f.Names() {
		if strings.TrimSpace(name) == "" {
			return errors.New("field map entries must not be empty")
		}
	}
	return nil
}

// Names returns the configured field names in a stable order.
func (f FieldMap) Names() []string {
	return []string{f.Irradiance, f.AmbientTemp, f.ModuleTemp, f.Humidity, f.Lux, f.DCPower}
}

// Empty reports whether the reading carries no values.
func (r Reading) Empty() bool {
	return len(r) == 0
}

// Value returns the named field, or def when the field is absent.
func (r Reading) Value(field string, def float64) float64 {
	if v, ok := r[field]; ok {
		return v
	}
	return def
}

// Has reports whether the reading contains field.
func (r Reading) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Keys returns the field names sorted alphabetically.
func (r Reading) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Document converts the reading back into a store document.
func (r Reading) Document() map[string]any {
	doc := make(map[string]any, len(r))
	for k, v := range r {
		doc[k] = v
	}
	return doc
}

// ReadingFromDocument extracts the numeric fields of a raw store document.
// Numeric strings are parsed; booleans, nested objects and non-finite values
// are dropped so a malformed field only counts as missing.
func ReadingFromDocument(doc map[string]any) Reading {
	if len(doc) == 0 {
		return nil
	}
	r := make(Reading, len(doc))
	for k, raw := range doc {
		if v, ok := toFloat(raw); ok {
			r[k] = v
		}
	}
	if len(r) == 0 {
		return nil
	}
	return r
}

func toFloat(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint64:
		v = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
