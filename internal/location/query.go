package location

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/tracing"
)

// CurrentLocation is the "what should I show right now" answer for a
// user, shared by the owner dashboard and the overlay consumer. The two
// callers differ only in authorization; both go through Service.Current
// so staleness semantics cannot drift between them.
type CurrentLocation struct {
	Enabled  bool
	Location *LocationView
	Stale    bool
	Reason   string
}

// LocationView is the projection of the most recent sample for display.
type LocationView struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Accuracy *float64 `json:"accuracy,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`

	GPSQuality *int `json:"gpsQuality,omitempty"`
	GSMSignal  *int `json:"gsmSignal,omitempty"`

	// Source is the location mode that produced this view.
	Source Mode `json:"source"`

	// Name is the configured fixed location name, fixed mode only.
	Name *string `json:"name,omitempty"`

	RecordedAt time.Time `json:"recordedAt"`
}

// Current composes settings, the latest sample, and staleness into one
// response:
//
//  1. No settings row or sharing disabled: enabled=false, no location.
//  2. Stale (gps mode, window elapsed since the latest sample):
//     enabled=true, no location, stale=true with a reason.
//  3. Otherwise the most recent sample, annotated with the mode as
//     source and the fixed location name when applicable. Both gps and
//     fixed shares write through the same sample path.
func (s *Service) Current(ctx context.Context, userID string) (_ *CurrentLocation, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "resolve_current_location")
	defer func() { endSpan(err) }()

	settings, err := s.settings.Get(userID)
	if err == ErrSettingsNotFound {
		return &CurrentLocation{Enabled: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.Enabled {
		return &CurrentLocation{Enabled: false}, nil
	}

	latest, err := s.samples.Latest(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest sample: %w", err)
	}

	var latestAt time.Time
	if latest != nil {
		latestAt = latest.CreatedAt
	}
	staleness := EvaluateStaleness(latestAt, settings.AutoDisableAfter, settings.Mode, s.now())
	tracing.AddEvent(ctx, "staleness_evaluated",
		attribute.Bool("stale", staleness.Stale),
		attribute.String("mode", string(settings.Mode)),
	)
	if staleness.Stale {
		s.metrics.IncStaleReads()
		return &CurrentLocation{
			Enabled: true,
			Stale:   true,
			Reason:  staleness.Reason,
		}, nil
	}

	if latest == nil {
		// Enabled but nothing reported yet.
		return &CurrentLocation{Enabled: true}, nil
	}

	view := &LocationView{
		Latitude:   latest.Latitude,
		Longitude:  latest.Longitude,
		Accuracy:   latest.Accuracy,
		Altitude:   latest.Altitude,
		Heading:    latest.Heading,
		Speed:      latest.Speed,
		GPSQuality: latest.GPSQuality,
		GSMSignal:  latest.GSMSignal,
		Source:     settings.Mode,
		RecordedAt: latest.CreatedAt,
	}
	if settings.Mode == ModeFixed {
		view.Name = settings.FixedLocationName
	}

	return &CurrentLocation{Enabled: true, Location: view}, nil
}
