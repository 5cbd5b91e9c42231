package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func float64Ptr(v float64) *float64 { return &v }

func TestDeviceStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	store, err := OpenDeviceStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	want := &DeviceState{
		LocationMode:      "fixed",
		FixedLatitude:     float64Ptr(48.8566),
		FixedLongitude:    float64Ptr(2.3522),
		FixedLocationName: "Paris",
		AutoStart:         true,
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if got.LocationMode != "fixed" || got.FixedLocationName != "Paris" || !got.AutoStart {
		t.Errorf("loaded state = %+v, want %+v", got, want)
	}
	if got.FixedLatitude == nil || *got.FixedLatitude != 48.8566 {
		t.Errorf("fixed latitude = %v, want 48.8566", got.FixedLatitude)
	}
}

func TestDeviceStore_MissingFileIsEmptyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	store, err := OpenDeviceStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	state, err := store.Load()
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if state.LocationMode != "" || state.AutoStart {
		t.Errorf("expected zero-value state, got %+v", state)
	}
}

func TestDeviceStore_MigratesLegacyStringCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")

	legacy := legacyDeviceState{
		LocationMode:      "fixed",
		FixedLatitude:     "48,8566",
		FixedLongitude:    "2.3522",
		FixedLocationName: "Paris",
		AutoStart:         true,
	}
	data, err := cbor.Marshal(legacy)
	if err != nil {
		t.Fatalf("failed to encode legacy state: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write legacy file: %v", err)
	}

	store, err := OpenDeviceStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	state, err := store.Load()
	if err != nil {
		t.Fatalf("failed to load migrated state: %v", err)
	}
	if state.FixedLatitude == nil || *state.FixedLatitude != 48.8566 {
		t.Errorf("migrated latitude = %v, want 48.8566", state.FixedLatitude)
	}
	if state.FixedLongitude == nil || *state.FixedLongitude != 2.3522 {
		t.Errorf("migrated longitude = %v, want 2.3522", state.FixedLongitude)
	}
	if state.LocationMode != "fixed" || !state.AutoStart || state.FixedLocationName != "Paris" {
		t.Errorf("migration dropped fields: %+v", state)
	}
}

func TestDeviceStore_MigrationDropsUnparseableCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")

	legacy := legacyDeviceState{
		LocationMode:   "fixed",
		FixedLatitude:  "somewhere",
		FixedLongitude: "2.3522",
	}
	data, err := cbor.Marshal(legacy)
	if err != nil {
		t.Fatalf("failed to encode legacy state: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write legacy file: %v", err)
	}

	store, err := OpenDeviceStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	state, err := store.Load()
	if err != nil {
		t.Fatalf("failed to load migrated state: %v", err)
	}
	if state.FixedLatitude != nil || state.FixedLongitude != nil {
		t.Errorf("unparseable legacy coordinates should be dropped, got %+v", state)
	}
	if state.LocationMode != "fixed" {
		t.Errorf("mode should survive migration, got %q", state.LocationMode)
	}
}
