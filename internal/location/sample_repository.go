package location

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SampleRepository defines the interface for the append-only sample log.
// There is no per-sample update or delete: samples leave the store only
// via DeleteByUser (disable cascade, data clear) or PruneOlderThan
// (age-based retention on the write path).
type SampleRepository interface {
	// Insert appends a sample, assigning its ID and CreatedAt if unset.
	Insert(sample *Sample) error

	// Latest returns the most recent sample for a user.
	// Returns nil (no error) when the user has no samples.
	Latest(userID string) (*Sample, error)

	// ListByUser returns samples newest first with limit/offset paging.
	ListByUser(userID string, limit, offset int) ([]*Sample, error)

	// CountByUser returns the number of stored samples for a user.
	CountByUser(userID string) (int, error)

	// DeleteByUser removes all samples for a user and returns how many
	// were removed.
	DeleteByUser(userID string) (int, error)

	// PruneOlderThan removes the user's samples created before cutoff
	// and returns how many were removed.
	PruneOlderThan(userID string, cutoff time.Time) (int, error)
}

// InMemorySampleRepository is an in-memory implementation of
// SampleRepository. Thread-safe via RWMutex.
type InMemorySampleRepository struct {
	mu      sync.RWMutex
	samples map[string][]*Sample // userID -> samples in insertion order
}

// NewInMemorySampleRepository creates a new in-memory sample repository.
func NewInMemorySampleRepository() *InMemorySampleRepository {
	return &InMemorySampleRepository{
		samples: make(map[string][]*Sample),
	}
}

// Insert appends a sample, assigning its ID and CreatedAt if unset.
func (r *InMemorySampleRepository) Insert(sample *Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := sample.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.samples[stored.UserID] = append(r.samples[stored.UserID], stored)

	sample.ID = stored.ID
	sample.CreatedAt = stored.CreatedAt
	return nil
}

// Latest returns the most recent sample for a user, or nil if none.
func (r *InMemorySampleRepository) Latest(userID string) (*Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.samples[userID]
	if len(list) == 0 {
		return nil, nil
	}

	latest := list[0]
	for _, s := range list[1:] {
		if s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	return latest.Clone(), nil
}

// ListByUser returns samples newest first with limit/offset paging.
func (r *InMemorySampleRepository) ListByUser(userID string, limit, offset int) ([]*Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.samples[userID]
	results := make([]*Sample, 0, len(list))

	// Insertion order is oldest first; walk backwards for newest first.
	for i := len(list) - 1; i >= 0; i-- {
		results = append(results, list[i])
	}

	if offset >= len(results) {
		return []*Sample{}, nil
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	out := make([]*Sample, len(results))
	for i, s := range results {
		out[i] = s.Clone()
	}
	return out, nil
}

// CountByUser returns the number of stored samples for a user.
func (r *InMemorySampleRepository) CountByUser(userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples[userID]), nil
}

// DeleteByUser removes all samples for a user.
func (r *InMemorySampleRepository) DeleteByUser(userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.samples[userID])
	delete(r.samples, userID)
	return n, nil
}

// PruneOlderThan removes the user's samples created before cutoff.
func (r *InMemorySampleRepository) PruneOlderThan(userID string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.samples[userID]
	kept := list[:0]
	pruned := 0
	for _, s := range list {
		if s.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, s)
	}
	if pruned > 0 {
		r.samples[userID] = kept
	}
	return pruned, nil
}
