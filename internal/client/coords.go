package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
)

// ParseCoordinate parses a user-entered coordinate string. Some locales
// use a comma as the decimal separator, so both "48.8566" and "48,8566"
// are accepted.
func ParseCoordinate(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}

	// A single comma acting as the decimal separator is normalized;
	// anything with more than one separator is rejected rather than
	// guessed at (e.g. "1,234.5" grouping formats).
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q: %w", raw, err)
	}
	return v, nil
}

// ParseFixedCoordinates parses and range-checks a fixed location pair.
func ParseFixedCoordinates(latRaw, lngRaw string) (lat, lng float64, err error) {
	lat, err = ParseCoordinate(latRaw)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude: %w", err)
	}
	lng, err = ParseCoordinate(lngRaw)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude: %w", err)
	}
	if err = location.ValidateCoordinates(lat, lng); err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}
