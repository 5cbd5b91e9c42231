// Package db provides database connection handling for the location API.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Pool settings sized for a small single-purpose API. The write path is
// one insert plus one prune per sample, so a modest pool is plenty.
const (
	MaxOpenConns    = 16
	MaxIdleConns    = 4
	ConnMaxLifetime = 30 * time.Minute
	ConnMaxIdleTime = 5 * time.Minute

	connectTimeout = 5 * time.Second
)

// Connect opens a PostgreSQL connection pool and verifies connectivity
// with a ping before returning.
func Connect(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool.SetMaxOpenConns(MaxOpenConns)
	pool.SetMaxIdleConns(MaxIdleConns)
	pool.SetConnMaxLifetime(ConnMaxLifetime)
	pool.SetConnMaxIdleTime(ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
