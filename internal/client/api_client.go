// Package client implements the device-side half of location sharing:
// an HTTP client for the sharing API, a persistent device-local
// preference store, and the sync controller that reconciles the local
// switch state with the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
)

// APIError is a non-2xx response from the sharing API, carrying the
// server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// IsSharingDisabled reports whether err is the server rejecting a
// sample because sharing is turned off.
func IsSharingDisabled(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusForbidden
}

// API is the subset of the sharing API the sync controller needs.
type API interface {
	GetSettings(ctx context.Context) (*location.Settings, error)
	UpdateSettings(ctx context.Context, settings *location.Settings) (*location.Settings, error)
	SendSample(ctx context.Context, sample *location.Sample) error
}

// APIClient talks to the sharing API over HTTP/JSON with a bearer token.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient creates a client for the given server. The transport is
// OpenTelemetry-instrumented so client spans join the server's traces.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type settingsEnvelope struct {
	Success  bool               `json:"success"`
	Settings *location.Settings `json:"settings"`
}

// sampleBody mirrors the POST /api/location/update request shape.
type sampleBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	GPSQuality       *int     `json:"gpsQuality,omitempty"`
	GSMSignal        *int     `json:"gsmSignal,omitempty"`
}

// GetSettings fetches the authoritative settings record.
func (c *APIClient) GetSettings(ctx context.Context) (*location.Settings, error) {
	var envelope settingsEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/location/settings", nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Settings == nil {
		return nil, fmt.Errorf("settings missing from response")
	}
	return envelope.Settings, nil
}

// UpdateSettings submits the full desired settings record and returns
// the server's stored copy, which callers adopt as their new baseline
// instead of the locally optimistic value.
func (c *APIClient) UpdateSettings(ctx context.Context, settings *location.Settings) (*location.Settings, error) {
	if err := c.do(ctx, http.MethodPut, "/api/location/settings", settings, nil); err != nil {
		return nil, err
	}
	return c.GetSettings(ctx)
}

// SendSample submits one location sample.
func (c *APIClient) SendSample(ctx context.Context, sample *location.Sample) error {
	body := sampleBody{
		Latitude:         sample.Latitude,
		Longitude:        sample.Longitude,
		Accuracy:         sample.Accuracy,
		Altitude:         sample.Altitude,
		AltitudeAccuracy: sample.AltitudeAccuracy,
		Heading:          sample.Heading,
		Speed:            sample.Speed,
		GPSQuality:       sample.GPSQuality,
		GSMSignal:        sample.GSMSignal,
	}
	return c.do(ctx, http.MethodPost, "/api/location/update", body, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
