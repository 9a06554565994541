package firebasestore

import (
	"context"
	"errors"
	"testing"

	"github.com/rewired-gh/solarcast/internal/store"
)

func TestNew_RequiresDatabaseURL(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("Expected error for missing database URL")
	}
}

func TestDecodeNode(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantLen   int
		malformed bool
	}{
		{"object", `{"irradiance": 500, "status": "ok"}`, 2, false},
		{"null node", `null`, 0, false},
		{"empty body", ``, 0, false},
		{"scalar node", `42.5`, 0, true},
		{"array node", `[1, 2]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := decodeNode("devices/esp32_1/sensor", []byte(tt.raw))
			if tt.malformed {
				if !errors.Is(err, store.ErrMalformed) {
					t.Fatalf("Expected ErrMalformed, got %v", err)
				}
				if errors.Is(err, store.ErrUnavailable) {
					t.Fatalf("Decode failure must not be reported as unavailable: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeNode failed: %v", err)
			}
			if len(doc) != tt.wantLen {
				t.Errorf("Expected %d fields, got %d (%v)", tt.wantLen, len(doc), doc)
			}
		})
	}
}
