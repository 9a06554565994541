package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/solarcast/internal/models"
)

func mustStorage(t *testing.T, maxRecords int) *Storage {
	t.Helper()
	s, err := New(maxRecords, ":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func prediction(id string, value float64, ts time.Time) *models.Prediction {
	return &models.Prediction{
		CycleID:   id,
		DeviceID:  "esp32_1",
		Value:     value,
		Features:  models.FeatureVector{28, 35, 500, 0, 0, 0, 0, 0},
		Reading:   models.Reading{"irradiance": 500},
		Timestamp: ts,
	}
}

func TestStorage_AddAndGetRecent(t *testing.T) {
	s := mustStorage(t, 100)
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := s.AddPrediction(prediction(fmt.Sprintf("c-%d", i), float64(i*100), base.Add(time.Duration(i)*5*time.Second))); err != nil {
			t.Fatalf("AddPrediction failed: %v", err)
		}
	}

	recent, err := s.GetRecentPredictions("esp32_1", 2)
	if err != nil {
		t.Fatalf("GetRecentPredictions failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 predictions, got %d", len(recent))
	}
	if recent[0].CycleID != "c-2" || recent[1].CycleID != "c-1" {
		t.Errorf("Expected newest first, got %s, %s", recent[0].CycleID, recent[1].CycleID)
	}
	if recent[0].Value != 200 {
		t.Errorf("Expected value 200, got %v", recent[0].Value)
	}
	if len(recent[0].Features) != 8 || recent[0].Features[2] != 500 {
		t.Errorf("Unexpected features: %v", recent[0].Features)
	}
	if recent[0].Reading["irradiance"] != 500 {
		t.Errorf("Unexpected reading: %v", recent[0].Reading)
	}
	if !recent[0].Timestamp.Equal(base.Add(10 * time.Second)) {
		t.Errorf("Unexpected timestamp: %v", recent[0].Timestamp)
	}

	other, err := s.GetRecentPredictions("esp32_2", 10)
	if err != nil {
		t.Fatalf("GetRecentPredictions failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no predictions for other device, got %d", len(other))
	}
}

func TestStorage_RejectsInvalid(t *testing.T) {
	s := mustStorage(t, 10)
	if err := s.AddPrediction(&models.Prediction{}); err == nil {
		t.Error("Expected error for invalid prediction")
	}
	p := prediction("dup", 1, time.Now())
	if err := s.AddPrediction(p); err != nil {
		t.Fatalf("AddPrediction failed: %v", err)
	}
	if err := s.AddPrediction(p); err == nil {
		t.Error("Expected error for duplicate cycle ID")
	}
}

func TestStorage_RotatePredictions(t *testing.T) {
	s := mustStorage(t, 3)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		if err := s.AddPrediction(prediction(fmt.Sprintf("c-%d", i), float64(i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("AddPrediction failed: %v", err)
		}
	}

	if err := s.RotatePredictions(); err != nil {
		t.Fatalf("RotatePredictions failed: %v", err)
	}
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("Expected 3 predictions after rotation, got %d", n)
	}

	recent, err := s.GetRecentPredictions("esp32_1", 10)
	if err != nil {
		t.Fatalf("GetRecentPredictions failed: %v", err)
	}
	if recent[len(recent)-1].CycleID != "c-2" {
		t.Errorf("Expected oldest kept record c-2, got %s", recent[len(recent)-1].CycleID)
	}
}

func TestStorage_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	s, err := New(10, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.AddPrediction(prediction("c-1", 1, time.Now())); err != nil {
		t.Fatalf("AddPrediction failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(10, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	n, err := reopened.Count()
	if err != nil || n != 1 {
		t.Errorf("Expected 1 persisted prediction, got %d (err %v)", n, err)
	}
}

func TestNew_InvalidLimit(t *testing.T) {
	if _, err := New(0, ":memory:"); err == nil {
		t.Error("Expected error for zero max records")
	}
}
