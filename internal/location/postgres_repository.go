package location

import (
	"database/sql"
	"fmt"
	"time"
)

// PostgresSettingsRepository implements SettingsRepository using PostgreSQL.
type PostgresSettingsRepository struct {
	db *sql.DB
}

// NewPostgresSettingsRepository creates a new PostgresSettingsRepository.
func NewPostgresSettingsRepository(db *sql.DB) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{db: db}
}

// Get retrieves the settings row for a user.
func (r *PostgresSettingsRepository) Get(userID string) (*Settings, error) {
	query := `
		SELECT user_id, enabled, location_mode,
		       accuracy_threshold, update_interval, auto_disable_after,
		       fixed_latitude, fixed_longitude, fixed_location_name,
		       updated_at
		FROM location_settings
		WHERE user_id = $1
	`

	s := &Settings{}
	err := r.db.QueryRow(query, userID).Scan(
		&s.UserID,
		&s.Enabled,
		&s.Mode,
		&s.AccuracyThreshold,
		&s.UpdateInterval,
		&s.AutoDisableAfter,
		&s.FixedLatitude,
		&s.FixedLongitude,
		&s.FixedLocationName,
		&s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location settings: %w", err)
	}

	return s, nil
}

// Upsert atomically inserts or replaces the user's settings row.
// The row-level upsert is the only mutation path, so concurrent writers
// serialize at the database and resolve to last-write-wins on updated_at.
func (r *PostgresSettingsRepository) Upsert(settings *Settings) (*Settings, error) {
	query := `
		INSERT INTO location_settings (
			user_id, enabled, location_mode,
			accuracy_threshold, update_interval, auto_disable_after,
			fixed_latitude, fixed_longitude, fixed_location_name,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			location_mode = EXCLUDED.location_mode,
			accuracy_threshold = EXCLUDED.accuracy_threshold,
			update_interval = EXCLUDED.update_interval,
			auto_disable_after = EXCLUDED.auto_disable_after,
			fixed_latitude = EXCLUDED.fixed_latitude,
			fixed_longitude = EXCLUDED.fixed_longitude,
			fixed_location_name = EXCLUDED.fixed_location_name,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`

	stored := settings.Clone()
	err := r.db.QueryRow(
		query,
		settings.UserID,
		settings.Enabled,
		settings.Mode,
		settings.AccuracyThreshold,
		settings.UpdateInterval,
		settings.AutoDisableAfter,
		settings.FixedLatitude,
		settings.FixedLongitude,
		settings.FixedLocationName,
	).Scan(&stored.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert location settings: %w", err)
	}

	return stored, nil
}

// PostgresSampleRepository implements SampleRepository using PostgreSQL.
type PostgresSampleRepository struct {
	db *sql.DB
}

// NewPostgresSampleRepository creates a new PostgresSampleRepository.
func NewPostgresSampleRepository(db *sql.DB) *PostgresSampleRepository {
	return &PostgresSampleRepository{db: db}
}

// Insert appends a sample, assigning its ID and CreatedAt.
func (r *PostgresSampleRepository) Insert(sample *Sample) error {
	query := `
		INSERT INTO location_samples (
			user_id, latitude, longitude,
			accuracy, altitude, altitude_accuracy, heading, speed,
			gps_quality, gsm_signal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		query,
		sample.UserID,
		sample.Latitude,
		sample.Longitude,
		sample.Accuracy,
		sample.Altitude,
		sample.AltitudeAccuracy,
		sample.Heading,
		sample.Speed,
		sample.GPSQuality,
		sample.GSMSignal,
	).Scan(&sample.ID, &sample.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert location sample: %w", err)
	}
	return nil
}

// Latest returns the most recent sample for a user, or nil if none.
func (r *PostgresSampleRepository) Latest(userID string) (*Sample, error) {
	query := `
		SELECT id, user_id, latitude, longitude,
		       accuracy, altitude, altitude_accuracy, heading, speed,
		       gps_quality, gsm_signal, created_at
		FROM location_samples
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	s := &Sample{}
	err := r.db.QueryRow(query, userID).Scan(
		&s.ID,
		&s.UserID,
		&s.Latitude,
		&s.Longitude,
		&s.Accuracy,
		&s.Altitude,
		&s.AltitudeAccuracy,
		&s.Heading,
		&s.Speed,
		&s.GPSQuality,
		&s.GSMSignal,
		&s.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}

	return s, nil
}

// ListByUser returns samples newest first with limit/offset paging.
func (r *PostgresSampleRepository) ListByUser(userID string, limit, offset int) ([]*Sample, error) {
	query := `
		SELECT id, user_id, latitude, longitude,
		       accuracy, altitude, altitude_accuracy, heading, speed,
		       gps_quality, gsm_signal, created_at
		FROM location_samples
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []*Sample
	for rows.Next() {
		s := &Sample{}
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Latitude,
			&s.Longitude,
			&s.Accuracy,
			&s.Altitude,
			&s.AltitudeAccuracy,
			&s.Heading,
			&s.Speed,
			&s.GPSQuality,
			&s.GSMSignal,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}

	return samples, nil
}

// CountByUser returns the number of stored samples for a user.
func (r *PostgresSampleRepository) CountByUser(userID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM location_samples WHERE user_id = $1`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}

// DeleteByUser removes all samples for a user.
func (r *PostgresSampleRepository) DeleteByUser(userID string) (int, error) {
	res, err := r.db.Exec(`DELETE FROM location_samples WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete count: %w", err)
	}
	return int(n), nil
}

// PruneOlderThan removes the user's samples created before cutoff.
func (r *PostgresSampleRepository) PruneOlderThan(userID string, cutoff time.Time) (int, error) {
	res, err := r.db.Exec(
		`DELETE FROM location_samples WHERE user_id = $1 AND created_at < $2`,
		userID, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune count: %w", err)
	}
	return int(n), nil
}
