// Package audit provides audit logging for mutations of location
// sharing state, for compliance and incident response.
package audit

import (
	"time"
)

// Actions recorded in the audit log.
const (
	// ActionSettingsUpdate records a successful settings write.
	ActionSettingsUpdate = "settings_update"

	// ActionDataClear records an explicit bulk deletion of samples.
	ActionDataClear = "data_clear"
)

// FieldChange captures one changed settings field as old/new values.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Record is a single audit event.
type Record struct {
	ID        string
	UserID    string
	Action    string
	CreatedAt time.Time

	// Diff maps field name to its change for settings updates.
	Diff map[string]FieldChange

	// SamplesCleared is true when the action cascaded a bulk sample
	// deletion; ClearedCount is how many samples were removed.
	SamplesCleared bool
	ClearedCount   int

	// Caller metadata
	RequestID string
	IPAddress string
	UserAgent string
}

// Entry is the input for creating an audit record.
type Entry struct {
	UserID string
	Action string

	Diff           map[string]FieldChange
	SamplesCleared bool
	ClearedCount   int

	RequestID string
	IPAddress string
	UserAgent string
}
