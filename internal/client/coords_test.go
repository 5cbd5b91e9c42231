package client

import (
	"testing"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"48.8566", 48.8566, false},
		{"48,8566", 48.8566, false},
		{"-3,7038", -3.7038, false},
		{" 2.3522 ", 2.3522, false},
		{"0", 0, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1,234.5", 0, true},
		{"1,2,3", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCoordinate(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCoordinate(%q): expected error, got %v", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCoordinate(%q): unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCoordinate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseFixedCoordinates(t *testing.T) {
	lat, lng, err := ParseFixedCoordinates("48,8566", "2.3522")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lat != 48.8566 || lng != 2.3522 {
		t.Errorf("got (%v, %v), want (48.8566, 2.3522)", lat, lng)
	}
}

func TestParseFixedCoordinates_OutOfRange(t *testing.T) {
	if _, _, err := ParseFixedCoordinates("91", "0"); err == nil {
		t.Error("expected error for latitude 91")
	}
	if _, _, err := ParseFixedCoordinates("0", "-181"); err == nil {
		t.Error("expected error for longitude -181")
	}
}

func TestParseFixedCoordinates_Unparseable(t *testing.T) {
	if _, _, err := ParseFixedCoordinates("north", "2.35"); err == nil {
		t.Error("expected error for unparseable latitude")
	}
}
