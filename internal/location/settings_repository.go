package location

import (
	"sync"
	"time"
)

// SettingsRepository defines the interface for settings persistence.
// Upsert is a full-record replace: callers always supply the complete
// desired record, never a partial patch.
type SettingsRepository interface {
	// Get retrieves the settings row for a user.
	// Returns ErrSettingsNotFound if no row exists.
	Get(userID string) (*Settings, error)

	// Upsert atomically inserts or replaces the user's settings row.
	// The repository stamps UpdatedAt, so concurrent writers resolve to
	// last-write-wins; no partial or merged record can result.
	Upsert(settings *Settings) (*Settings, error)
}

// InMemorySettingsRepository is an in-memory implementation of
// SettingsRepository. Thread-safe via RWMutex.
type InMemorySettingsRepository struct {
	mu       sync.RWMutex
	settings map[string]*Settings
}

// NewInMemorySettingsRepository creates a new in-memory settings repository.
func NewInMemorySettingsRepository() *InMemorySettingsRepository {
	return &InMemorySettingsRepository{
		settings: make(map[string]*Settings),
	}
}

// Get retrieves the settings row for a user.
func (r *InMemorySettingsRepository) Get(userID string) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[userID]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	return s.Clone(), nil
}

// Upsert atomically inserts or replaces the user's settings row.
func (r *InMemorySettingsRepository) Upsert(settings *Settings) (*Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := settings.Clone()
	stored.UpdatedAt = time.Now().UTC()
	r.settings[settings.UserID] = stored
	return stored.Clone(), nil
}
