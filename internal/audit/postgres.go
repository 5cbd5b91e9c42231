package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL.
// The diff is stored as a JSONB column.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Log records an audit event.
func (r *PostgresRepository) Log(entry Entry) (*Record, error) {
	diffJSON, err := json.Marshal(entry.Diff)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit diff: %w", err)
	}

	query := `
		INSERT INTO location_audit_log (
			user_id, action, diff, samples_cleared, cleared_count,
			request_id, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	rec := &Record{
		UserID:         entry.UserID,
		Action:         entry.Action,
		Diff:           cloneDiff(entry.Diff),
		SamplesCleared: entry.SamplesCleared,
		ClearedCount:   entry.ClearedCount,
		RequestID:      entry.RequestID,
		IPAddress:      entry.IPAddress,
		UserAgent:      entry.UserAgent,
	}

	err = r.db.QueryRow(
		query,
		entry.UserID,
		entry.Action,
		diffJSON,
		entry.SamplesCleared,
		entry.ClearedCount,
		entry.RequestID,
		entry.IPAddress,
		entry.UserAgent,
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert audit record: %w", err)
	}

	return rec, nil
}

// QueryByUser retrieves audit records for a user, newest first.
func (r *PostgresRepository) QueryByUser(userID string, limit int) ([]*Record, error) {
	query := `
		SELECT id, user_id, action, diff, samples_cleared, cleared_count,
		       request_id, ip_address, user_agent, created_at
		FROM location_audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var results []*Record
	for rows.Next() {
		rec := &Record{}
		var diffJSON []byte
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Action,
			&diffJSON,
			&rec.SamplesCleared,
			&rec.ClearedCount,
			&rec.RequestID,
			&rec.IPAddress,
			&rec.UserAgent,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if len(diffJSON) > 0 {
			if err := json.Unmarshal(diffJSON, &rec.Diff); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit diff: %w", err)
			}
		}
		results = append(results, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return results, nil
}
