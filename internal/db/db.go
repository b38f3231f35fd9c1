// Package db provides database utilities and connection handling for the
// trending tag service.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/onnwee/trendtags/internal/tracing"
)

// ErrMissingURL is returned by Open when no connection string is configured.
var ErrMissingURL = errors.New("database URL is required")

// Pool defaults. The service issues short read-only aggregations.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// PostsCacheSchema creates the denormalized post table the ranking reads
// and the partial index its aggregations scan. Safe to run repeatedly.
const PostsCacheSchema = `
CREATE TABLE IF NOT EXISTS hive_posts_cache (
    post_id    BIGINT PRIMARY KEY,
    category   VARCHAR(255) NOT NULL,
    depth      SMALLINT NOT NULL DEFAULT 0,
    payout     NUMERIC(10, 3) NOT NULL DEFAULT 0,
    is_paidout BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS hive_posts_cache_ix_unpaid_category
    ON hive_posts_cache (category, payout)
 WHERE is_paidout = false;
`

// Open connects to PostgreSQL at url, applies the pool defaults and
// verifies the connection with a ping.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, ErrMissingURL
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the post table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "hive_posts_cache", tracing.DBOperationExec)
	defer func() { endSpan(err) }()

	if _, err := db.ExecContext(ctx, PostsCacheSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
