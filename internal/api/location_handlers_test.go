package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/audit"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/middleware"
)

// newTestHandlers wires handlers against in-memory repositories.
func newTestHandlers() (*LocationHandlers, *location.Service, audit.Repository) {
	auditRepo := audit.NewInMemoryRepository()
	svc := location.NewService(
		location.NewInMemorySettingsRepository(),
		location.NewInMemorySampleRepository(),
		auditRepo,
		nil,
	)
	return NewLocationHandlers(svc), svc, auditRepo
}

// authedRequest builds a request with the user already injected into the
// context, as the auth middleware would do.
func authedRequest(method, target, userID string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.SetUserID(req.Context(), userID))
}

func enableSharing(t *testing.T, svc *location.Service, userID string) {
	t.Helper()
	settings := location.DefaultSettings(userID)
	settings.Enabled = true
	if _, err := svc.UpdateSettings(t.Context(), userID, settings, location.CallerMeta{}); err != nil {
		t.Fatalf("failed to enable sharing: %v", err)
	}
}

func TestGetSettings_CreatesDefaults(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := authedRequest(http.MethodGet, "/api/location/settings", "user-1", nil)
	w := httptest.NewRecorder()
	h.GetSettings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var resp SettingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success = true")
	}
	if resp.Settings == nil {
		t.Fatal("expected settings in response")
	}
	if resp.Settings.Enabled {
		t.Error("default settings should have sharing disabled")
	}
	if resp.Settings.Mode != location.ModeGPS {
		t.Errorf("default mode = %q, want gps", resp.Settings.Mode)
	}
	if resp.Settings.UpdateInterval != location.DefaultUpdateInterval {
		t.Errorf("default update interval = %d, want %d", resp.Settings.UpdateInterval, location.DefaultUpdateInterval)
	}
}

func TestGetSettings_Unauthenticated(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/location/settings", nil)
	w := httptest.NewRecorder()
	h.GetSettings(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestUpdateSettings_RoundTrip(t *testing.T) {
	h, _, _ := newTestHandlers()

	body := []byte(`{
		"enabled": true,
		"locationMode": "gps",
		"accuracyThreshold": 1000,
		"updateInterval": 10,
		"autoDisableAfter": 600
	}`)

	req := authedRequest(http.MethodPut, "/api/location/settings", "user-1", body)
	w := httptest.NewRecorder()
	h.UpdateSettings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	// Read back through the GET endpoint.
	req = authedRequest(http.MethodGet, "/api/location/settings", "user-1", nil)
	w = httptest.NewRecorder()
	h.GetSettings(w, req)

	var resp SettingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Settings.Enabled {
		t.Error("expected sharing enabled after update")
	}
	if resp.Settings.UpdateInterval != 10 {
		t.Errorf("update interval = %d, want 10", resp.Settings.UpdateInterval)
	}
	if resp.Settings.AutoDisableAfter != 600 {
		t.Errorf("auto disable after = %d, want 600", resp.Settings.AutoDisableAfter)
	}
}

func TestUpdateSettings_FixedModeRequiresCoordinates(t *testing.T) {
	h, _, _ := newTestHandlers()

	body := []byte(`{"enabled": true, "locationMode": "fixed"}`)
	req := authedRequest(http.MethodPut, "/api/location/settings", "user-1", body)
	w := httptest.NewRecorder()
	h.UpdateSettings(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body: %s", w.Code, w.Body.String())
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error.Code != ErrCodeValidation {
		t.Errorf("error code = %q, want %q", errResp.Error.Code, ErrCodeValidation)
	}
}

func TestUpdateSettings_InvalidMode(t *testing.T) {
	h, _, _ := newTestHandlers()

	body := []byte(`{"enabled": false, "locationMode": "teleport"}`)
	req := authedRequest(http.MethodPut, "/api/location/settings", "user-1", body)
	w := httptest.NewRecorder()
	h.UpdateSettings(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateSettings_MalformedJSON(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := authedRequest(http.MethodPut, "/api/location/settings", "user-1", []byte(`{not json`))
	w := httptest.NewRecorder()
	h.UpdateSettings(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateLocation_RecordsSample(t *testing.T) {
	h, svc, _ := newTestHandlers()
	enableSharing(t, svc, "user-1")

	body := []byte(`{"latitude": 48.8566, "longitude": 2.3522, "accuracy": 12.5, "gpsQuality": 87}`)
	req := authedRequest(http.MethodPost, "/api/location/update", "user-1", body)
	w := httptest.NewRecorder()
	h.UpdateLocation(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	current, err := svc.Current(t.Context(), "user-1")
	if err != nil {
		t.Fatalf("failed to read current location: %v", err)
	}
	if current.Location == nil {
		t.Fatal("expected a current location after update")
	}
	if current.Location.Latitude != 48.8566 {
		t.Errorf("latitude = %v, want 48.8566", current.Location.Latitude)
	}
}

func TestUpdateLocation_SharingDisabled(t *testing.T) {
	h, _, _ := newTestHandlers()

	body := []byte(`{"latitude": 48.8566, "longitude": 2.3522}`)
	req := authedRequest(http.MethodPost, "/api/location/update", "user-1", body)
	w := httptest.NewRecorder()
	h.UpdateLocation(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body: %s", w.Code, w.Body.String())
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error.Code != ErrCodeSharingDisabled {
		t.Errorf("error code = %q, want %q", errResp.Error.Code, ErrCodeSharingDisabled)
	}
}

func TestUpdateLocation_MissingCoordinates(t *testing.T) {
	h, svc, _ := newTestHandlers()
	enableSharing(t, svc, "user-1")

	for _, body := range []string{
		`{}`,
		`{"latitude": 48.8566}`,
		`{"longitude": 2.3522}`,
	} {
		req := authedRequest(http.MethodPost, "/api/location/update", "user-1", []byte(body))
		w := httptest.NewRecorder()
		h.UpdateLocation(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestUpdateLocation_OutOfRange(t *testing.T) {
	h, svc, _ := newTestHandlers()
	enableSharing(t, svc, "user-1")

	body := []byte(`{"latitude": 91.0, "longitude": 2.3522}`)
	req := authedRequest(http.MethodPost, "/api/location/update", "user-1", body)
	w := httptest.NewRecorder()
	h.UpdateLocation(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetCurrent_DisabledUser(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := authedRequest(http.MethodGet, "/api/location/current", "user-1", nil)
	w := httptest.NewRecorder()
	h.GetCurrent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	var resp CurrentLocationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Enabled {
		t.Error("expected enabled = false")
	}
	if resp.Location != nil {
		t.Error("expected no location for disabled user")
	}
}

func TestGetCurrent_WithSample(t *testing.T) {
	h, svc, _ := newTestHandlers()
	enableSharing(t, svc, "user-1")

	sample := &location.Sample{Latitude: 40.4168, Longitude: -3.7038}
	if err := svc.RecordSample(t.Context(), "user-1", sample); err != nil {
		t.Fatalf("failed to record sample: %v", err)
	}

	req := authedRequest(http.MethodGet, "/api/location/current", "user-1", nil)
	w := httptest.NewRecorder()
	h.GetCurrent(w, req)

	var resp CurrentLocationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Enabled {
		t.Error("expected enabled = true")
	}
	if resp.Location == nil {
		t.Fatal("expected a location")
	}
	if resp.Location.Longitude != -3.7038 {
		t.Errorf("longitude = %v, want -3.7038", resp.Location.Longitude)
	}
	if resp.Location.Source != location.ModeGPS {
		t.Errorf("source = %q, want gps", resp.Location.Source)
	}
	if resp.Stale {
		t.Error("fresh sample should not be stale")
	}
}

func TestGetOverlayCurrent_SameShape(t *testing.T) {
	h, svc, _ := newTestHandlers()
	enableSharing(t, svc, "user-1")

	sample := &location.Sample{Latitude: 40.4168, Longitude: -3.7038}
	if err := svc.RecordSample(t.Context(), "user-1", sample); err != nil {
		t.Fatalf("failed to record sample: %v", err)
	}

	req := authedRequest(http.MethodGet, "/api/overlay/location/current", "user-1", nil)
	w := httptest.NewRecorder()
	h.GetOverlayCurrent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	var resp CurrentLocationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Location == nil || resp.Location.Latitude != 40.4168 {
		t.Error("overlay view should expose the same location as the owner view")
	}
}

func TestGetHistory_Pagination(t *testing.T) {
	h, svc, _ := newTestHandlers()
	enableSharing(t, svc, "user-1")

	for i := 0; i < 5; i++ {
		sample := &location.Sample{Latitude: float64(i), Longitude: float64(i)}
		if err := svc.RecordSample(t.Context(), "user-1", sample); err != nil {
			t.Fatalf("failed to record sample %d: %v", i, err)
		}
	}

	req := authedRequest(http.MethodGet, "/api/location/history?limit=2&offset=1", "user-1", nil)
	w := httptest.NewRecorder()
	h.GetHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var resp HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(resp.History))
	}
	// Newest first: samples 4,3,2,1,0; offset 1 skips sample 4.
	if resp.History[0].Latitude != 3 {
		t.Errorf("first entry latitude = %v, want 3", resp.History[0].Latitude)
	}
}

func TestGetHistory_InvalidParams(t *testing.T) {
	h, _, _ := newTestHandlers()

	for _, target := range []string{
		"/api/location/history?limit=abc",
		"/api/location/history?limit=-1",
		"/api/location/history?offset=-2",
	} {
		req := authedRequest(http.MethodGet, target, "user-1", nil)
		w := httptest.NewRecorder()
		h.GetHistory(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

func TestGetHistory_EmptyIsArray(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := authedRequest(http.MethodGet, "/api/location/history", "user-1", nil)
	w := httptest.NewRecorder()
	h.GetHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"history":[]`)) {
		t.Errorf("empty history should serialize as [], got: %s", w.Body.String())
	}
}

func TestDeleteData_ClearsSamplesAndAudits(t *testing.T) {
	h, svc, auditRepo := newTestHandlers()
	enableSharing(t, svc, "user-1")

	for i := 0; i < 3; i++ {
		sample := &location.Sample{Latitude: float64(i), Longitude: float64(i)}
		if err := svc.RecordSample(t.Context(), "user-1", sample); err != nil {
			t.Fatalf("failed to record sample: %v", err)
		}
	}

	req := authedRequest(http.MethodDelete, "/api/location/data", "user-1", nil)
	req.Header.Set("User-Agent", "test-agent/1.0")
	w := httptest.NewRecorder()
	h.DeleteData(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	_, samples, err := svc.History(t.Context(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples remaining = %d, want 0", len(samples))
	}

	records, err := auditRepo.QueryByUser("user-1", 10)
	if err != nil {
		t.Fatalf("failed to query audit log: %v", err)
	}
	var found bool
	for _, rec := range records {
		if rec.Action == audit.ActionDataClear {
			found = true
			if rec.ClearedCount != 3 {
				t.Errorf("cleared count = %d, want 3", rec.ClearedCount)
			}
			if rec.UserAgent != "test-agent/1.0" {
				t.Errorf("user agent = %q, want test-agent/1.0", rec.UserAgent)
			}
		}
	}
	if !found {
		t.Error("expected a data_clear audit record")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"10.0.0.1:1234", "", "", "10.0.0.1"},
		{"10.0.0.1:1234", "203.0.113.7, 10.0.0.1", "", "203.0.113.7"},
		{"10.0.0.1:1234", "", "198.51.100.4", "198.51.100.4"},
	}

	for i, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if tt.xri != "" {
			req.Header.Set("X-Real-IP", tt.xri)
		}
		if got := clientIP(req); got != tt.want {
			t.Errorf("case %d: clientIP = %q, want %q", i, got, tt.want)
		}
	}
}

func TestDisableCascade_ThroughHandlers(t *testing.T) {
	h, svc, _ := newTestHandlers()
	enableSharing(t, svc, "user-1")

	sample := &location.Sample{Latitude: 1, Longitude: 1}
	if err := svc.RecordSample(t.Context(), "user-1", sample); err != nil {
		t.Fatalf("failed to record sample: %v", err)
	}

	body := []byte(fmt.Sprintf(`{
		"enabled": false,
		"locationMode": "gps",
		"accuracyThreshold": %d,
		"updateInterval": %d,
		"autoDisableAfter": %d
	}`, location.DefaultAccuracyThreshold, location.DefaultUpdateInterval, location.DefaultAutoDisableAfter))

	req := authedRequest(http.MethodPut, "/api/location/settings", "user-1", body)
	w := httptest.NewRecorder()
	h.UpdateSettings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	_, samples, err := svc.History(t.Context(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples remaining after disable = %d, want 0", len(samples))
	}
}
