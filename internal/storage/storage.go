// Package storage provides a local SQLite journal of published predictions.
// It keeps the newest records up to a configured limit so the on-demand API can
// show recent forecasts without querying the remote store.
//
// The journal is write-behind bookkeeping: a failed write is logged by the
// caller and never fails a poll cycle. It is not used to restore lag history.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/solarcast/internal/models"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id   TEXT NOT NULL UNIQUE,
	device_id  TEXT NOT NULL,
	value      REAL NOT NULL,
	features   TEXT NOT NULL,
	reading    TEXT NOT NULL,
	ts_unix_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_device_ts ON predictions(device_id, ts_unix_ns);
`

// Storage is the prediction journal
type Storage struct {
	db         *sql.DB
	maxRecords int
}

// New opens (or creates) the journal at dbPath. Use ":memory:" for tests.
func New(maxRecords int, dbPath string) (*Storage, error) {
	if maxRecords < 1 {
		return nil, fmt.Errorf("max records must be at least 1, got %d", maxRecords)
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &Storage{db: db, maxRecords: maxRecords}, nil
}

// AddPrediction journals a published prediction
func (s *Storage) AddPrediction(p *models.Prediction) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid prediction: %w", err)
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	reading, err := json.Marshal(p.Reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO predictions (cycle_id, device_id, value, features, reading, ts_unix_ns) VALUES (?, ?, ?, ?, ?, ?)`,
		p.CycleID, p.DeviceID, p.Value, string(features), string(reading), p.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// GetRecentPredictions returns up to limit predictions for device, newest first
func (s *Storage) GetRecentPredictions(device string, limit int) ([]models.Prediction, error) {
	if limit < 1 {
		return []models.Prediction{}, nil
	}
	rows, err := s.db.Query(
		`SELECT cycle_id, device_id, value, features, reading, ts_unix_ns
		 FROM predictions WHERE device_id = ? ORDER BY ts_unix_ns DESC, seq DESC LIMIT ?`,
		device, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	result := []models.Prediction{}
	for rows.Next() {
		var (
			p        models.Prediction
			features string
			reading  string
			tsNanos  int64
		)
		if err := rows.Scan(&p.CycleID, &p.DeviceID, &p.Value, &features, &reading, &tsNanos); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features of %s: %w", p.CycleID, err)
		}
		if err := json.Unmarshal([]byte(reading), &p.Reading); err != nil {
			return nil, fmt.Errorf("failed to decode reading of %s: %w", p.CycleID, err)
		}
		p.Timestamp = time.Unix(0, tsNanos)
		result = append(result, p)
	}
	return result, rows.Err()
}

// Count returns the number of journaled predictions
func (s *Storage) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return n, nil
}

// RotatePredictions removes the oldest records exceeding the max limit
func (s *Storage) RotatePredictions() error {
	_, err := s.db.Exec(
		`DELETE FROM predictions WHERE seq NOT IN (SELECT seq FROM predictions ORDER BY seq DESC LIMIT ?)`,
		s.maxRecords,
	)
	if err != nil {
		return fmt.Errorf("failed to rotate predictions: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
