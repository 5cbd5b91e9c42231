package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
)

// maxFixAge is how old a fix on disk can be and still count as a
// usable cached fix.
const maxFixAge = 30 * time.Second

// freshPollInterval is how often Fresh re-reads the fix file while
// waiting for the GPS source to produce a newer fix.
const freshPollInterval = time.Second

// fileFix is the JSON record the GPS source writes. The field names
// match the sample wire format so a source can simply mirror what it
// would send.
type fileFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Accuracy *float64 `json:"accuracy,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`

	GPSQuality *int `json:"gpsQuality,omitempty"`
	GSMSignal  *int `json:"gsmSignal,omitempty"`

	RecordedAt time.Time `json:"recordedAt"`
}

// fileFixProvider reads GPS fixes from a JSON file maintained by an
// external GPS source (gpsd bridge, phone companion, etc.). The source
// overwrites the file whenever it has a new fix.
type fileFixProvider struct {
	path string
	now  func() time.Time
}

func newFileFixProvider(path string) *fileFixProvider {
	return &fileFixProvider{
		path: path,
		now:  time.Now,
	}
}

// read parses the fix file. A missing file means no fix yet.
func (p *fileFixProvider) read() (*fileFix, error) {
	if p.path == "" {
		return nil, fmt.Errorf("no fix file configured")
	}

	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fix file: %w", err)
	}

	var fix fileFix
	if err := json.Unmarshal(data, &fix); err != nil {
		return nil, fmt.Errorf("failed to parse fix file: %w", err)
	}
	return &fix, nil
}

func (fix *fileFix) sample() *location.Sample {
	return &location.Sample{
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Accuracy:   fix.Accuracy,
		Altitude:   fix.Altitude,
		Heading:    fix.Heading,
		Speed:      fix.Speed,
		GPSQuality: fix.GPSQuality,
		GSMSignal:  fix.GSMSignal,
	}
}

// LastKnown returns the fix on disk if it is recent enough to reuse.
func (p *fileFixProvider) LastKnown() (*location.Sample, bool) {
	fix, err := p.read()
	if err != nil || fix == nil {
		return nil, false
	}
	if p.now().Sub(fix.RecordedAt) > maxFixAge {
		return nil, false
	}
	return fix.sample(), true
}

// Fresh waits for the GPS source to write a fix newer than the call
// time, polling the file until ctx is cancelled.
func (p *fileFixProvider) Fresh(ctx context.Context) (*location.Sample, error) {
	since := p.now()

	ticker := time.NewTicker(freshPollInterval)
	defer ticker.Stop()

	for {
		fix, err := p.read()
		if err == nil && fix != nil && fix.RecordedAt.After(since) {
			return fix.sample(), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
