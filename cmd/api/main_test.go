// Package main contains integration tests for the API server wiring.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/api"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/audit"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/auth"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/middleware"
)

func newTestServer(t *testing.T) (http.Handler, *auth.JWTService) {
	t.Helper()

	settingsRepo := location.NewInMemorySettingsRepository()
	sampleRepo := location.NewInMemorySampleRepository()
	auditRepo := audit.NewInMemoryRepository()
	service := location.NewService(settingsRepo, sampleRepo, auditRepo, nil)

	jwtService := auth.NewJWTService("test-secret")

	registry := prometheus.NewRegistry()
	mwMetrics := middleware.NewMetrics()
	if err := mwMetrics.Register(registry); err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}

	handler := buildHandler(routerConfig{
		locations:    api.NewLocationHandlers(service),
		health:       api.NewHealthHandlers(api.HealthHandlersConfig{}),
		jwt:          jwtService,
		limitStore:   middleware.NewInMemoryRateLimitStore(),
		metrics:      registry,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		extraMetrics: mwMetrics,
	})

	return handler, jwtService
}

func TestRouting_OwnerEndpointsRequireAuth(t *testing.T) {
	handler, _ := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/location/settings"},
		{http.MethodPut, "/api/location/settings"},
		{http.MethodPost, "/api/location/update"},
		{http.MethodGet, "/api/location/current"},
		{http.MethodGet, "/api/location/history"},
		{http.MethodDelete, "/api/location/data"},
		{http.MethodGet, "/api/overlay/location/current"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestRouting_OwnerTokenRoundTrip(t *testing.T) {
	handler, jwtService := newTestServer(t)

	token, err := jwtService.GenerateOwnerToken("user-1")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/location/settings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp struct {
		Success  bool `json:"success"`
		Settings struct {
			Enabled bool `json:"enabled"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if resp.Settings.Enabled {
		t.Error("default settings should be disabled")
	}
}

func TestRouting_OverlayTokenScope(t *testing.T) {
	handler, jwtService := newTestServer(t)

	overlayToken, err := jwtService.GenerateOverlayToken("user-1")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	// Overlay token can read the overlay view.
	req := httptest.NewRequest(http.MethodGet, "/api/overlay/location/current", nil)
	req.Header.Set("Authorization", "Bearer "+overlayToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("overlay read status = %d, want 200", w.Code)
	}

	// But not the owner surface.
	req = httptest.NewRequest(http.MethodGet, "/api/location/settings", nil)
	req.Header.Set("Authorization", "Bearer "+overlayToken)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("owner read with overlay token status = %d, want 403", w.Code)
	}
}

func TestRouting_HealthAndMetrics(t *testing.T) {
	handler, _ := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
}

func TestRouting_UnknownPathReturnsErrorEnvelope(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Error.Code != api.ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", resp.Error.Code, api.ErrCodeNotFound)
	}
}

func TestRouting_RequestIDHeader(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}

// TestGracefulShutdown_InFlightRequests verifies that Shutdown lets a
// request already being served run to completion.
func TestGracefulShutdown_InFlightRequests(t *testing.T) {
	handlerStarted := make(chan struct{})
	handlerCanContinue := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(handlerStarted)
		<-handlerCanContinue
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	requestDone := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(server.URL + "/slow")
		if err != nil {
			t.Errorf("request error: %v", err)
		}
		requestDone <- resp
	}()

	select {
	case <-handlerStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("handler failed to start in time")
	}

	shutdownDone := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Config.Shutdown(ctx); err != nil {
			t.Errorf("shutdown error: %v", err)
		}
		close(shutdownDone)
	}()

	time.Sleep(50 * time.Millisecond)
	close(handlerCanContinue)

	var resp *http.Response
	select {
	case resp = <-requestDone:
	case <-time.After(5 * time.Second):
		t.Fatal("request failed to complete in time")
	}

	select {
	case <-shutdownDone:
	case <-time.After(15 * time.Second):
		t.Fatal("shutdown failed to complete in time")
	}

	if resp == nil {
		t.Fatal("no response received")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "completed") {
		t.Errorf("unexpected body: %s", body)
	}
}
