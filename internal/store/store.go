// Package store defines the hierarchical key-path store the forecaster reads
// readings from and writes predictions to, plus an in-memory implementation.
//
// Paths are slash separated ("devices/esp32_1/sensor"). Documents are flat
// JSON-like maps. Backends live in sub-packages: firebasestore talks to the
// Firebase Realtime Database, redisstore maps the same tree onto Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable wraps every backend failure: network errors, timeouts,
// rejected writes. Callers treat it as transient.
var ErrUnavailable = errors.New("remote store unavailable")

// ErrMalformed marks a node that was fetched but does not decode into a
// document. Retrying will not help until the data is fixed.
var ErrMalformed = errors.New("malformed document")

// Store is a hierarchical document store.
type Store interface {
	// Get returns the document at path, or nil when nothing is stored there.
	Get(ctx context.Context, path string) (map[string]any, error)
	// Set overwrites the document at path.
	Set(ctx context.Context, path string, doc map[string]any) error
	// Update merges fields into the document at path, creating it if needed.
	Update(ctx context.Context, path string, fields map[string]any) error
	// LastChild returns the greatest child key of prefix in key order.
	// ok is false when prefix has no children.
	LastChild(ctx context.Context, prefix string) (key string, ok bool, err error)
	Close() error
}

// Unavailable wraps err with ErrUnavailable and the failing operation.
func Unavailable(op, path string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, path, ErrUnavailable, err)
}

// Malformed wraps err with ErrMalformed and the path that held the bad node.
func Malformed(path string, err error) error {
	return fmt.Errorf("decode %s: %w: %w", path, ErrMalformed, err)
}

// Join joins path segments, trimming stray slashes.
func Join(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

// Split returns the parent path and final segment of path.
func Split(path string) (parent, key string) {
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Paths builds the store locations used for one device.
type Paths struct {
	Device string
}

// Root is devices/<device>.
func (p Paths) Root() string { return Join("devices", p.Device) }

// Sensor is the device's latest reading.
func (p Paths) Sensor() string { return Join(p.Root(), "sensor") }

// Prediction is the latest prediction record.
func (p Paths) Prediction() string { return Join(p.Root(), "prediksi") }

// LogPartition is the per-date log directory.
func (p Paths) LogPartition(date string) string { return Join(p.Root(), "sensorLog", date) }

// LogEntry is a single log entry.
func (p Paths) LogEntry(date, key string) string { return Join(p.LogPartition(date), key) }
