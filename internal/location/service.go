package location

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/audit"
)

// CallerMeta carries request metadata captured for audit records.
type CallerMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// Service coordinates settings, samples, staleness, and auditing.
// Handlers are stateless per request; the only shared mutable state is
// the per-user rows, which the repositories serialize at the row level.
type Service struct {
	settings SettingsRepository
	samples  SampleRepository
	auditLog audit.Repository
	metrics  *Metrics

	// now is injectable for staleness tests.
	now func() time.Time
}

// NewService creates a new location Service. metrics may be nil.
func NewService(settings SettingsRepository, samples SampleRepository, auditLog audit.Repository, metrics *Metrics) *Service {
	return &Service{
		settings: settings,
		samples:  samples,
		auditLog: auditLog,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetSettings returns the user's settings, creating a default row on
// first read. Calling it repeatedly with no writes in between returns
// identical results and creates at most one row.
func (s *Service) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	settings, err := s.settings.Get(userID)
	if err == nil {
		return settings, nil
	}
	if err != ErrSettingsNotFound {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	created, err := s.settings.Upsert(DefaultSettings(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to create default settings: %w", err)
	}
	slog.InfoContext(ctx, "created default location settings", "user_id", userID)
	return created, nil
}

// UpdateSettings validates and persists a full settings record, then
// cascades side effects: disabling sharing deletes all of the user's
// samples. Every successful update writes an audit record with the
// field diff and caller metadata.
//
// The upsert is atomic at the row level; on any error the stored
// settings remain at their previous value.
func (s *Service) UpdateSettings(ctx context.Context, userID string, desired *Settings, meta CallerMeta) (*Settings, error) {
	desired = desired.Clone()
	desired.UserID = userID

	if err := desired.Validate(); err != nil {
		return nil, err
	}

	prev, err := s.settings.Get(userID)
	if err != nil && err != ErrSettingsNotFound {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err == ErrSettingsNotFound {
		prev = DefaultSettings(userID)
	}

	stored, err := s.settings.Upsert(desired)
	if err != nil {
		return nil, fmt.Errorf("failed to store settings: %w", err)
	}

	cleared := 0
	if !stored.Enabled {
		cleared, err = s.samples.DeleteByUser(userID)
		if err != nil {
			// Settings are already persisted; log and continue so the
			// caller sees the accepted state. The next disable retries
			// the cascade.
			slog.ErrorContext(ctx, "failed to clear samples on disable",
				"user_id", userID, "error", err)
		} else if cleared > 0 {
			slog.InfoContext(ctx, "cleared samples on disable",
				"user_id", userID, "count", cleared)
		}
		s.metrics.AddSamplesCleared(cleared)
	}
	s.metrics.IncSettingsUpdates(stored.Enabled, stored.Mode)

	if _, err := s.auditLog.Log(audit.Entry{
		UserID:         userID,
		Action:         audit.ActionSettingsUpdate,
		Diff:           settingsDiff(prev, stored),
		SamplesCleared: !stored.Enabled,
		ClearedCount:   cleared,
		RequestID:      meta.RequestID,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to write audit record",
			"user_id", userID, "action", audit.ActionSettingsUpdate, "error", err)
	}

	return stored, nil
}

// RecordSample appends a location sample for the user. Sharing must be
// enabled; that gate is hard, unlike the advisory accuracy threshold.
// After a successful insert, samples older than the retention window
// are pruned for that user.
func (s *Service) RecordSample(ctx context.Context, userID string, sample *Sample) error {
	settings, err := s.settings.Get(userID)
	if err == ErrSettingsNotFound {
		s.metrics.IncRejectedSamples("sharing_disabled")
		return ErrSharingDisabled
	}
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.Enabled {
		s.metrics.IncRejectedSamples("sharing_disabled")
		return ErrSharingDisabled
	}

	if err := ValidateCoordinates(sample.Latitude, sample.Longitude); err != nil {
		s.metrics.IncRejectedSamples("coordinates_out_of_range")
		return err
	}

	if sample.Accuracy != nil && settings.AccuracyThreshold > 0 &&
		*sample.Accuracy > float64(settings.AccuracyThreshold) {
		slog.WarnContext(ctx, "sample accuracy above threshold",
			"user_id", userID,
			"accuracy_m", *sample.Accuracy,
			"threshold_m", settings.AccuracyThreshold)
	}

	stored := sample.Clone()
	stored.UserID = userID
	if err := s.samples.Insert(stored); err != nil {
		return fmt.Errorf("failed to store sample: %w", err)
	}
	sample.ID = stored.ID
	sample.CreatedAt = stored.CreatedAt
	s.metrics.IncSamplesRecorded()

	// Lazy retention: prune on the write path rather than a sweep.
	pruned, err := s.samples.PruneOlderThan(userID, s.now().Add(-SampleRetention))
	if err != nil {
		slog.WarnContext(ctx, "failed to prune old samples",
			"user_id", userID, "error", err)
	}
	s.metrics.AddSamplesPruned(pruned)

	return nil
}

// History returns the user's stored samples, newest first, along with
// the user's enabled state.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) (bool, []*Sample, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return false, nil, err
	}

	samples, err := s.samples.ListByUser(userID, limit, offset)
	if err != nil {
		return false, nil, fmt.Errorf("failed to list samples: %w", err)
	}
	return settings.Enabled, samples, nil
}

// ClearData deletes all of the user's samples and writes an audit
// record. The enabled flag is untouched.
func (s *Service) ClearData(ctx context.Context, userID string, meta CallerMeta) (int, error) {
	cleared, err := s.samples.DeleteByUser(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete samples: %w", err)
	}
	s.metrics.AddSamplesCleared(cleared)

	if _, err := s.auditLog.Log(audit.Entry{
		UserID:         userID,
		Action:         audit.ActionDataClear,
		SamplesCleared: true,
		ClearedCount:   cleared,
		RequestID:      meta.RequestID,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to write audit record",
			"user_id", userID, "action", audit.ActionDataClear, "error", err)
	}

	return cleared, nil
}

// settingsDiff computes the changed fields between two settings records.
func settingsDiff(prev, next *Settings) map[string]audit.FieldChange {
	diff := make(map[string]audit.FieldChange)

	add := func(field, old, new string) {
		if old != new {
			diff[field] = audit.FieldChange{Old: old, New: new}
		}
	}

	add("enabled", fmt.Sprintf("%t", prev.Enabled), fmt.Sprintf("%t", next.Enabled))
	add("locationMode", string(prev.Mode), string(next.Mode))
	add("accuracyThreshold", fmt.Sprintf("%d", prev.AccuracyThreshold), fmt.Sprintf("%d", next.AccuracyThreshold))
	add("updateInterval", fmt.Sprintf("%d", prev.UpdateInterval), fmt.Sprintf("%d", next.UpdateInterval))
	add("autoDisableAfter", fmt.Sprintf("%d", prev.AutoDisableAfter), fmt.Sprintf("%d", next.AutoDisableAfter))
	add("fixedLatitude", formatFloatPtr(prev.FixedLatitude), formatFloatPtr(next.FixedLatitude))
	add("fixedLongitude", formatFloatPtr(prev.FixedLongitude), formatFloatPtr(next.FixedLongitude))
	add("fixedLocationName", formatStringPtr(prev.FixedLocationName), formatStringPtr(next.FixedLocationName))

	if len(diff) == 0 {
		return nil
	}
	return diff
}

func formatFloatPtr(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%g", *p)
}

func formatStringPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
