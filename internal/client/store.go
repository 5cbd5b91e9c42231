package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// DeviceState is the device-local mirror of the user's sharing
// preferences. It is a cache of the server copy plus purely local
// preferences (auto-start); the server remains authoritative for the
// enabled flag, which is deliberately not stored here.
type DeviceState struct {
	LocationMode      string   `cbor:"location_mode"`
	FixedLatitude     *float64 `cbor:"fixed_latitude,omitempty"`
	FixedLongitude    *float64 `cbor:"fixed_longitude,omitempty"`
	FixedLocationName string   `cbor:"fixed_location_name,omitempty"`
	AutoStart         bool     `cbor:"auto_start"`
}

// legacyDeviceState matches the old on-disk encoding where fixed
// coordinates were stored as locale-formatted strings.
type legacyDeviceState struct {
	LocationMode      string `cbor:"location_mode"`
	FixedLatitude     string `cbor:"fixed_latitude,omitempty"`
	FixedLongitude    string `cbor:"fixed_longitude,omitempty"`
	FixedLocationName string `cbor:"fixed_location_name,omitempty"`
	AutoStart         bool   `cbor:"auto_start"`
}

// DeviceStore persists DeviceState as a CBOR file. Thread-safe.
type DeviceStore struct {
	mu   sync.Mutex
	path string
}

// OpenDeviceStore opens (or creates the directory for) the device store
// at path and migrates any legacy string-coordinate encoding in place.
// The migration runs once: after a successful rewrite the file is in
// the numeric encoding and the legacy decode no longer matches.
func OpenDeviceStore(path string) (*DeviceStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	store := &DeviceStore{path: path}
	if err := store.migrateLegacy(); err != nil {
		return nil, err
	}
	return store, nil
}

// Load reads the persisted state. A missing file returns zero-value
// state, not an error.
func (s *DeviceStore) Load() (*DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *DeviceStore) load() (*DeviceState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &DeviceState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read device store: %w", err)
	}

	var state DeviceState
	if err := cbor.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode device store: %w", err)
	}
	return &state, nil
}

// Save atomically replaces the persisted state.
func (s *DeviceStore) Save(state *DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

func (s *DeviceStore) save(state *DeviceState) error {
	data, err := cbor.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode device store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write device store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace device store: %w", err)
	}
	return nil
}

// migrateLegacy converts the old string-coordinate encoding to the
// numeric one. Unparseable legacy coordinates are dropped rather than
// carried forward; the user re-enters them.
func (s *DeviceStore) migrateLegacy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read device store: %w", err)
	}

	// Current encoding decodes cleanly; nothing to do.
	var current DeviceState
	if err := cbor.Unmarshal(data, &current); err == nil {
		return nil
	}

	var legacy legacyDeviceState
	if err := cbor.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("device store is neither current nor legacy encoding: %w", err)
	}

	migrated := &DeviceState{
		LocationMode:      legacy.LocationMode,
		FixedLocationName: legacy.FixedLocationName,
		AutoStart:         legacy.AutoStart,
	}
	if legacy.FixedLatitude != "" && legacy.FixedLongitude != "" {
		lat, lng, err := ParseFixedCoordinates(legacy.FixedLatitude, legacy.FixedLongitude)
		if err == nil {
			migrated.FixedLatitude = &lat
			migrated.FixedLongitude = &lng
		}
	}

	return s.save(migrated)
}
