package storage

import (
	"database/sql"
	"time"

	"ratelimiter/internal/models"
)

// SQLite has no native timestamp type; occurred_at is stored as unix millis.
func timeToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteViolation(row rowScanner) (*models.Violation, error) {
	var (
		v              models.Violation
		method, path   sql.NullString
		occurredMillis int64
	)
	if err := row.Scan(&v.ID, &v.Identifier, &v.Scope, &v.Tier, &v.Algorithm,
		&v.Limit, &v.RetryAfter, &method, &path, &occurredMillis); err != nil {
		return nil, err
	}
	v.Method = method.String
	v.Path = path.String
	v.OccurredAt = millisToTime(occurredMillis)
	return &v, nil
}
