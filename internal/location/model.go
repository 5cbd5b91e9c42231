// Package location provides models, repositories, and services for
// per-user location sharing: persisted sharing settings, an append-only
// sample log, and read-time staleness evaluation.
package location

import (
	"errors"
	"time"
)

// Common errors for location operations.
var (
	// ErrSettingsNotFound is returned when no settings row exists for a user.
	ErrSettingsNotFound = errors.New("location settings not found")

	// ErrSharingDisabled is returned when a sample is submitted while
	// sharing is not enabled for the user.
	ErrSharingDisabled = errors.New("location sharing is not enabled")

	// ErrInvalidMode is returned for an unrecognized location mode.
	ErrInvalidMode = errors.New("invalid location mode")

	// ErrFixedLocationRequired is returned when fixed mode is enabled
	// without both fixed coordinates present.
	ErrFixedLocationRequired = errors.New("fixed mode requires fixed latitude and longitude")

	// ErrCoordinateOutOfRange is returned when a latitude or longitude
	// is outside the valid range.
	ErrCoordinateOutOfRange = errors.New("coordinate out of range")
)

// Mode determines how a user's shared location is produced.
type Mode string

// Supported location modes.
const (
	// ModeGPS shares live GPS fixes reported by the device.
	ModeGPS Mode = "gps"

	// ModeFixed shares a manually configured static coordinate.
	ModeFixed Mode = "fixed"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	return m == ModeGPS || m == ModeFixed
}

// Default settings values, applied when a user has no settings row yet.
const (
	DefaultAccuracyThreshold = 5000 // meters
	DefaultUpdateInterval    = 30   // seconds
	DefaultAutoDisableAfter  = 3600 // seconds
)

// Update interval bounds enforced by clients.
const (
	MinUpdateInterval = 5   // seconds
	MaxUpdateInterval = 300 // seconds
)

// SampleRetention is how long samples are kept before the lazy prune on
// the write path removes them.
const SampleRetention = 24 * time.Hour

// Settings is the persisted location sharing configuration for one user.
// The server copy is the source of truth for the enabled flag; clients
// hold only a cached projection of it.
type Settings struct {
	UserID string `json:"-"`

	// Enabled is the user's sharing intent. Staleness never mutates it.
	Enabled bool `json:"enabled"`

	Mode Mode `json:"locationMode"`

	// AccuracyThreshold is advisory: samples exceeding it are accepted
	// and logged, never rejected.
	AccuracyThreshold uint32 `json:"accuracyThreshold"`

	// UpdateInterval is the device reporting cadence in seconds,
	// bounded to [MinUpdateInterval, MaxUpdateInterval] client-side.
	UpdateInterval uint32 `json:"updateInterval"`

	// AutoDisableAfter is the staleness window in seconds. Zero disables
	// staleness checking for this user.
	AutoDisableAfter uint32 `json:"autoDisableAfter"`

	FixedLatitude     *float64 `json:"fixedLatitude,omitempty"`
	FixedLongitude    *float64 `json:"fixedLongitude,omitempty"`
	FixedLocationName *string  `json:"fixedLocationName,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultSettings returns the settings record created for a user on
// first read.
func DefaultSettings(userID string) *Settings {
	return &Settings{
		UserID:            userID,
		Enabled:           false,
		Mode:              ModeGPS,
		AccuracyThreshold: DefaultAccuracyThreshold,
		UpdateInterval:    DefaultUpdateInterval,
		AutoDisableAfter:  DefaultAutoDisableAfter,
	}
}

// ValidateCoordinates checks that lat and lng are within valid ranges.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return ErrCoordinateOutOfRange
	}
	if lng < -180 || lng > 180 {
		return ErrCoordinateOutOfRange
	}
	return nil
}

// Validate checks the settings record for persistence. A fixed-mode
// enable without both in-range fixed coordinates is never persisted.
func (s *Settings) Validate() error {
	if !s.Mode.Valid() {
		return ErrInvalidMode
	}
	if s.Mode == ModeFixed && s.Enabled {
		if s.FixedLatitude == nil || s.FixedLongitude == nil {
			return ErrFixedLocationRequired
		}
		if err := ValidateCoordinates(*s.FixedLatitude, *s.FixedLongitude); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the settings record.
func (s *Settings) Clone() *Settings {
	out := *s
	if s.FixedLatitude != nil {
		v := *s.FixedLatitude
		out.FixedLatitude = &v
	}
	if s.FixedLongitude != nil {
		v := *s.FixedLongitude
		out.FixedLongitude = &v
	}
	if s.FixedLocationName != nil {
		v := *s.FixedLocationName
		out.FixedLocationName = &v
	}
	return &out
}

// Sample is one reported location fix with optional quality metadata.
// Samples are append-only: never mutated, deleted only in bulk when
// sharing is disabled or data is cleared, and pruned by age.
type Sample struct {
	ID     string `json:"id"`
	UserID string `json:"-"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`

	// GPSQuality and GSMSignal are 0..100 device-reported indicators.
	GPSQuality *int `json:"gpsQuality,omitempty"`
	GSMSignal  *int `json:"gsmSignal,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the sample.
func (s *Sample) Clone() *Sample {
	out := *s
	out.Accuracy = clonePtr(s.Accuracy)
	out.Altitude = clonePtr(s.Altitude)
	out.AltitudeAccuracy = clonePtr(s.AltitudeAccuracy)
	out.Heading = clonePtr(s.Heading)
	out.Speed = clonePtr(s.Speed)
	out.GPSQuality = clonePtr(s.GPSQuality)
	out.GSMSignal = clonePtr(s.GSMSignal)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
