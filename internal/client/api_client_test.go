package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
)

func TestAPIClient_GetSettings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/location/settings" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("authorization header = %q, want Bearer token-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"settings":{"enabled":true,"locationMode":"gps","accuracyThreshold":5000,"updateInterval":30,"autoDisableAfter":3600}}`))
	}))
	defer server.Close()

	c := NewAPIClient(server.URL, "token-1")
	settings, err := c.GetSettings(t.Context())
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if !settings.Enabled || settings.Mode != location.ModeGPS {
		t.Errorf("settings = %+v, want enabled gps", settings)
	}
}

func TestAPIClient_UpdateSettingsReturnsServerEcho(t *testing.T) {
	var stored location.Settings
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&stored); err != nil {
				t.Errorf("failed to decode PUT body: %v", err)
			}
			// The server normalizes a field; the client must adopt it.
			stored.UpdateInterval = 60
			_, _ = w.Write([]byte(`{"success":true,"message":"Settings updated"}`))
		case http.MethodGet:
			resp := struct {
				Success  bool               `json:"success"`
				Settings *location.Settings `json:"settings"`
			}{Success: true, Settings: &stored}
			_ = json.NewEncoder(w).Encode(resp)
		}
	}))
	defer server.Close()

	c := NewAPIClient(server.URL, "token-1")
	desired := location.DefaultSettings("user-1")
	desired.Enabled = true
	desired.UpdateInterval = 10

	echo, err := c.UpdateSettings(t.Context(), desired)
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if echo.UpdateInterval != 60 {
		t.Errorf("echoed interval = %d, want the server's value 60", echo.UpdateInterval)
	}
}

func TestAPIClient_SendSample(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/location/update" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	accuracy := 12.5
	c := NewAPIClient(server.URL, "token-1")
	err := c.SendSample(t.Context(), &location.Sample{
		Latitude:  48.8566,
		Longitude: 2.3522,
		Accuracy:  &accuracy,
	})
	if err != nil {
		t.Fatalf("SendSample failed: %v", err)
	}
	if body["latitude"] != 48.8566 {
		t.Errorf("latitude = %v, want 48.8566", body["latitude"])
	}
	if body["accuracy"] != 12.5 {
		t.Errorf("accuracy = %v, want 12.5", body["accuracy"])
	}
	if _, present := body["heading"]; present {
		t.Error("unset optional fields should be omitted")
	}
}

func TestAPIClient_DecodesErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"sharing_disabled","message":"Location sharing is not enabled"}}`))
	}))
	defer server.Close()

	c := NewAPIClient(server.URL, "token-1")
	err := c.SendSample(t.Context(), &location.Sample{Latitude: 1, Longitude: 2})
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != "sharing_disabled" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if !IsSharingDisabled(err) {
		t.Error("IsSharingDisabled should match a 403")
	}
}
