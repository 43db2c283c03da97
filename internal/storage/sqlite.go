package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ratelimiter/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS violations (
	id          TEXT PRIMARY KEY,
	identifier  TEXT NOT NULL,
	scope       TEXT NOT NULL,
	tier        TEXT NOT NULL,
	algorithm   TEXT NOT NULL,
	max_requests INTEGER NOT NULL,
	retry_after INTEGER NOT NULL,
	method      TEXT,
	path        TEXT,
	occurred_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_violations_occurred_at ON violations (occurred_at DESC);
`

// SQLiteStorage persists violations in a SQLite database file.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database and creates the schema if needed.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) RecordViolation(ctx context.Context, v *models.Violation) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid violation: %w", err)
	}

	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO violations (id, identifier, scope, tier, algorithm, max_requests, retry_after, method, path, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Identifier, v.Scope, v.Tier, v.Algorithm, v.Limit, v.RetryAfter,
		nullString(v.Method), nullString(v.Path), timeToMillis(v.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation %s: %w", v.ID, err)
	}
	return nil
}

func (ss *SQLiteStorage) RecentViolations(ctx context.Context, limit int) ([]*models.Violation, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT id, identifier, scope, tier, algorithm, max_requests, retry_after, method, path, occurred_at
		FROM violations
		ORDER BY occurred_at DESC, id
		LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	violations := make([]*models.Violation, 0)
	for rows.Next() {
		v, err := scanSQLiteViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the database connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}
