package storage

import (
	"context"
	"fmt"

	"ratelimiter/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rate_limit_violations (
	id           UUID PRIMARY KEY,
	identifier   TEXT NOT NULL,
	scope        TEXT NOT NULL,
	tier         TEXT NOT NULL,
	algorithm    TEXT NOT NULL,
	max_requests BIGINT NOT NULL,
	retry_after  BIGINT NOT NULL,
	method       TEXT NOT NULL DEFAULT '',
	path         TEXT NOT NULL DEFAULT '',
	occurred_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_violations_occurred_at
	ON rate_limit_violations (occurred_at DESC);
`

// PostgresStorage persists violations in PostgreSQL through a pgx pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(config.MaxIdleConns, int(poolConfig.MaxConns)))
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) RecordViolation(ctx context.Context, v *models.Violation) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid violation: %w", err)
	}

	_, err := ps.pool.Exec(ctx, `
		INSERT INTO rate_limit_violations
			(id, identifier, scope, tier, algorithm, max_requests, retry_after, method, path, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.Identifier, v.Scope, v.Tier, v.Algorithm, v.Limit, v.RetryAfter,
		v.Method, v.Path, v.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation %s: %w", v.ID, err)
	}
	return nil
}

func (ps *PostgresStorage) RecentViolations(ctx context.Context, limit int) ([]*models.Violation, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id::text, identifier, scope, tier, algorithm, max_requests, retry_after, method, path, occurred_at
		FROM rate_limit_violations
		ORDER BY occurred_at DESC, id
		LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}

	violations, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Violation, error) {
		var v models.Violation
		if err := row.Scan(&v.ID, &v.Identifier, &v.Scope, &v.Tier, &v.Algorithm,
			&v.Limit, &v.RetryAfter, &v.Method, &v.Path, &v.OccurredAt); err != nil {
			return nil, err
		}
		v.OccurredAt = v.OccurredAt.UTC()
		return &v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan violations: %w", err)
	}
	return violations, nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
