// Package device simulates the field logger that feeds the forecaster. It
// overwrites devices/<id>/sensor with the newest reading and appends the same
// reading to devices/<id>/sensorLog/<date>/<hh:mm:ss AM>, the way the firmware
// does, so the loop can be run end to end against a development store.
package device

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rewired-gh/solarcast/internal/logger"
	"github.com/rewired-gh/solarcast/internal/models"
	"github.com/rewired-gh/solarcast/internal/store"
)

// LogKeyLayout is the firmware's sensorLog entry key: 12-hour clock with AM/PM.
const LogKeyLayout = "03:04:05 PM"

// DateLayout is the sensorLog partition layout.
const DateLayout = "2006-01-02"

// Profile shapes the synthetic day.
type Profile struct {
	PeakIrradiance float64 // W/m², at solar noon
	Sunrise        float64 // hour of day
	Sunset         float64 // hour of day
	AmbientMin     float64 // °C
	AmbientMax     float64 // °C
	ModuleGain     float64 // °C of module heating per 1000 W/m²
	DCPerWm2       float64 // DC power per W/m² of irradiance
	Noise          float64 // relative noise, 0 disables
}

// DefaultProfile is a clear tropical day.
func DefaultProfile() Profile {
	return Profile{
		PeakIrradiance: 950,
		Sunrise:        6,
		Sunset:         18,
		AmbientMin:     24,
		AmbientMax:     33,
		ModuleGain:     25,
		DCPerWm2:       7.5,
		Noise:          0.05,
	}
}

// Simulator writes synthetic readings.
type Simulator struct {
	Store    store.Store
	Paths    store.Paths
	Fields   models.FieldMap
	Profile  Profile
	Location *time.Location
	Now      func() time.Time
	rng      *rand.Rand
}

// New returns a Simulator for device. seed makes the noise reproducible.
func New(s store.Store, device string, fields models.FieldMap, loc *time.Location, seed uint64) *Simulator {
	if loc == nil {
		loc = time.Local
	}
	return &Simulator{
		Store:    s,
		Paths:    store.Paths{Device: device},
		Fields:   fields,
		Profile:  DefaultProfile(),
		Location: loc,
		Now:      time.Now,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Reading returns the synthetic reading for t.
func (s *Simulator) Reading(t time.Time) models.Reading {
	p := s.Profile
	t = t.In(s.Location)
	hour := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600

	irr := 0.0
	if hour > p.Sunrise && hour < p.Sunset {
		irr = p.PeakIrradiance * math.Sin(math.Pi*(hour-p.Sunrise)/(p.Sunset-p.Sunrise))
		irr = math.Max(0, irr*(1+s.noise()))
	}

	// ambient peaks mid-afternoon
	ambient := p.AmbientMin + (p.AmbientMax-p.AmbientMin)*0.5*(1+math.Cos(2*math.Pi*(hour-15)/24))
	module := ambient + p.ModuleGain*irr/1000
	humidity := math.Min(100, math.Max(20, 90-2*(ambient-p.AmbientMin)*(1+s.noise())))

	return models.Reading{
		s.Fields.Irradiance:  round(irr, 2),
		s.Fields.AmbientTemp: round(ambient, 2),
		s.Fields.ModuleTemp:  round(module, 2),
		s.Fields.Humidity:    round(humidity, 1),
		s.Fields.Lux:         round(irr*120, 0),
		s.Fields.DCPower:     round(irr*p.DCPerWm2, 2),
	}
}

func (s *Simulator) noise() float64 {
	if s.Profile.Noise <= 0 {
		return 0
	}
	return (s.rng.Float64()*2 - 1) * s.Profile.Noise
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}

// Step writes one reading and returns the log entry path it appended.
func (s *Simulator) Step(ctx context.Context) (string, error) {
	now := s.Now().In(s.Location)
	reading := s.Reading(now)
	doc := reading.Document()

	if err := s.Store.Set(ctx, s.Paths.Sensor(), doc); err != nil {
		return "", fmt.Errorf("failed to write sensor reading: %w", err)
	}
	entry := s.Paths.LogEntry(now.Format(DateLayout), now.Format(LogKeyLayout))
	if err := s.Store.Set(ctx, entry, doc); err != nil {
		return "", fmt.Errorf("failed to append sensor log: %w", err)
	}
	return entry, nil
}

// Run calls Step every interval until ctx is cancelled. A failed step is
// logged and retried on the next tick.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if entry, err := s.Step(ctx); err != nil {
			logger.Error("Simulated write failed: %v", err)
		} else {
			logger.Debug("Simulated reading written to %s", entry)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
