package ratelimit

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
)

// sqliteTimeLayout matches the report store: fixed-width UTC text so
// lexicographic comparison is chronological.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// SQLiteCounterStore implements CounterStore on the shared SQLite handle.
type SQLiteCounterStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLiteCounterStore creates a SQLiteCounterStore on an existing handle
// (shared with the report store, which owns the schema).
func NewSQLiteCounterStore(db *sql.DB, clock clockwork.Clock) *SQLiteCounterStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLiteCounterStore{db: db, clock: clock}
}

// Increment implements CounterStore.
func (s *SQLiteCounterStore) Increment(ctx context.Context, key string, expiresAt time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_counters (key, count, expires_at)
		VALUES (?, 1, ?)
		ON CONFLICT (key) DO UPDATE SET count = count + 1
		RETURNING count`,
		key, expiresAt.UTC().Format(sqliteTimeLayout),
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "ratelimit: sqlite increment")
	}
	return count, nil
}

// Count implements CounterStore.
func (s *SQLiteCounterStore) Count(ctx context.Context, key string) (int, error) {
	now := s.clock.Now().UTC().Format(sqliteTimeLayout)
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM rate_limit_counters
		WHERE key = ? AND expires_at > ?`,
		key, now,
	).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, eris.Wrap(err, "ratelimit: sqlite count")
	}
	return count, nil
}

// Purge deletes expired counter rows.
func (s *SQLiteCounterStore) Purge(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC().Format(sqliteTimeLayout)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_counters WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, eris.Wrap(err, "ratelimit: sqlite purge")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "ratelimit: sqlite rows affected")
	}
	return int(n), nil
}
