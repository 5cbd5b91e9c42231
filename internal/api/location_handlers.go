// Package api provides HTTP handlers for the location sharing API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/middleware"
)

// History pagination bounds. Clients asking for more than MaxHistoryLimit
// samples get MaxHistoryLimit.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// LocationHandlers holds dependencies for the location sharing HTTP handlers.
type LocationHandlers struct {
	service *location.Service
}

// NewLocationHandlers creates a new LocationHandlers instance.
func NewLocationHandlers(service *location.Service) *LocationHandlers {
	return &LocationHandlers{service: service}
}

// SettingsResponse represents the response for GET /api/location/settings.
type SettingsResponse struct {
	Success  bool               `json:"success"`
	Settings *location.Settings `json:"settings"`
}

// MessageResponse is the generic success envelope for mutating endpoints.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CurrentLocationResponse represents the response for the current
// location endpoints. Location is null when sharing is disabled, the
// data is stale, or nothing has been reported yet.
type CurrentLocationResponse struct {
	Success  bool                   `json:"success"`
	Enabled  bool                   `json:"enabled"`
	Location *location.LocationView `json:"location"`
	Stale    bool                   `json:"stale,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
}

// HistoryResponse represents the response for GET /api/location/history.
type HistoryResponse struct {
	Success bool               `json:"success"`
	Enabled bool               `json:"enabled"`
	History []*location.Sample `json:"history"`
}

// UpdateLocationRequest represents the request body for POST /api/location/update.
// Latitude and longitude are pointers so a missing field is
// distinguishable from a legitimate zero coordinate.
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	GPSQuality       *int     `json:"gpsQuality,omitempty"`
	GSMSignal        *int     `json:"gsmSignal,omitempty"`
}

// GetSettings handles GET /api/location/settings - returns the owner's
// sharing settings, creating defaults on first read.
func (h *LocationHandlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	settings, err := h.service.GetSettings(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get location settings", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	writeJSON(w, ctx, http.StatusOK, SettingsResponse{Success: true, Settings: settings})
}

// UpdateSettings handles PUT /api/location/settings - replaces the
// owner's sharing settings with the supplied full record.
func (h *LocationHandlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var desired location.Settings
	if err := json.NewDecoder(r.Body).Decode(&desired); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	_, err := h.service.UpdateSettings(ctx, userID, &desired, callerMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, location.ErrInvalidMode):
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid location mode")
		case errors.Is(err, location.ErrFixedLocationRequired):
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Fixed mode requires fixed latitude and longitude")
		case errors.Is(err, location.ErrCoordinateOutOfRange):
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Coordinates are out of range")
		default:
			slog.ErrorContext(ctx, "failed to update location settings", "error", err, "user_id", userID)
			ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update settings")
		}
		return
	}

	writeJSON(w, ctx, http.StatusOK, MessageResponse{Success: true, Message: "Settings updated"})
}

// UpdateLocation handles POST /api/location/update - records a location
// sample for the owner. Sharing must be enabled.
func (h *LocationHandlers) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.Latitude == nil || req.Longitude == nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "latitude and longitude are required")
		return
	}

	sample := &location.Sample{
		Latitude:         *req.Latitude,
		Longitude:        *req.Longitude,
		Accuracy:         req.Accuracy,
		Altitude:         req.Altitude,
		AltitudeAccuracy: req.AltitudeAccuracy,
		Heading:          req.Heading,
		Speed:            req.Speed,
		GPSQuality:       req.GPSQuality,
		GSMSignal:        req.GSMSignal,
	}

	if err := h.service.RecordSample(ctx, userID, sample); err != nil {
		switch {
		case errors.Is(err, location.ErrSharingDisabled):
			ctx = middleware.SetErrorCode(ctx, ErrCodeSharingDisabled)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeSharingDisabled, "Location sharing is not enabled")
		case errors.Is(err, location.ErrCoordinateOutOfRange):
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Coordinates are out of range")
		default:
			slog.ErrorContext(ctx, "failed to record location sample", "error", err, "user_id", userID)
			ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record location")
		}
		return
	}

	writeJSON(w, ctx, http.StatusOK, MessageResponse{Success: true})
}

// GetCurrent handles GET /api/location/current - returns the owner's
// current shareable location with staleness applied at read time.
func (h *LocationHandlers) GetCurrent(w http.ResponseWriter, r *http.Request) {
	h.writeCurrent(w, r)
}

// GetOverlayCurrent handles GET /api/overlay/location/current - the
// overlay consumer's view. Same shape and semantics as GetCurrent; only
// the authentication path differs (overlay-scoped tokens are accepted).
func (h *LocationHandlers) GetOverlayCurrent(w http.ResponseWriter, r *http.Request) {
	h.writeCurrent(w, r)
}

func (h *LocationHandlers) writeCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	current, err := h.service.Current(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve current location", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	// Position data must never be served from intermediary caches.
	w.Header().Set("Cache-Control", "no-store")

	writeJSON(w, ctx, http.StatusOK, CurrentLocationResponse{
		Success:  true,
		Enabled:  current.Enabled,
		Location: current.Location,
		Stale:    current.Stale,
		Reason:   current.Reason,
	})
}

// GetHistory handles GET /api/location/history?limit&offset - returns
// the owner's stored samples, newest first.
func (h *LocationHandlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	limit, err := parseQueryInt(r, "limit", DefaultHistoryLimit)
	if err != nil || limit < 0 {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
		return
	}
	if limit == 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	offset, err := parseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "offset must be a non-negative integer")
		return
	}

	enabled, samples, err := h.service.History(ctx, userID, limit, offset)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list location history", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	if samples == nil {
		samples = []*location.Sample{}
	}

	writeJSON(w, ctx, http.StatusOK, HistoryResponse{
		Success: true,
		Enabled: enabled,
		History: samples,
	})
}

// DeleteData handles DELETE /api/location/data - clears all of the
// owner's stored samples and writes an audit record. The enabled flag
// is left untouched.
func (h *LocationHandlers) DeleteData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	cleared, err := h.service.ClearData(ctx, userID, callerMeta(r))
	if err != nil {
		slog.ErrorContext(ctx, "failed to clear location data", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to clear location data")
		return
	}

	slog.InfoContext(ctx, "cleared location data", "user_id", userID, "count", cleared)
	writeJSON(w, ctx, http.StatusOK, MessageResponse{Success: true, Message: "Location data cleared"})
}

// callerMeta captures request metadata for audit records.
func callerMeta(r *http.Request) location.CallerMeta {
	return location.CallerMeta{
		RequestID: middleware.GetRequestID(r.Context()),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP resolves the originating client address, preferring proxy
// headers over the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseQueryInt parses an optional integer query parameter.
func parseQueryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// writeJSON encodes a success response body.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
