package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit log operations.
type Repository interface {
	// Log records an audit event and returns the created record.
	Log(entry Entry) (*Record, error)

	// QueryByUser retrieves audit records for a user, newest first.
	// Limit specifies the maximum number of records to return (0 = no limit).
	QueryByUser(userID string, limit int) ([]*Record, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	// Maintain insertion order for queries
	order []string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
		order:   make([]string, 0),
	}
}

// Log records an audit event.
func (r *InMemoryRepository) Log(entry Entry) (*Record, error) {
	rec := &Record{
		ID:             uuid.New().String(),
		UserID:         entry.UserID,
		Action:         entry.Action,
		CreatedAt:      time.Now().UTC(),
		Diff:           cloneDiff(entry.Diff),
		SamplesCleared: entry.SamplesCleared,
		ClearedCount:   entry.ClearedCount,
		RequestID:      entry.RequestID,
		IPAddress:      entry.IPAddress,
		UserAgent:      entry.UserAgent,
	}

	r.mu.Lock()
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	r.mu.Unlock()

	return cloneRecord(rec), nil
}

// QueryByUser retrieves audit records for a user, newest first.
func (r *InMemoryRepository) QueryByUser(userID string, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.records[r.order[i]]
		if rec.UserID != userID {
			continue
		}
		results = append(results, cloneRecord(rec))
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

func cloneDiff(diff map[string]FieldChange) map[string]FieldChange {
	if diff == nil {
		return nil
	}
	out := make(map[string]FieldChange, len(diff))
	for k, v := range diff {
		out[k] = v
	}
	return out
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	out.Diff = cloneDiff(rec.Diff)
	return &out
}
