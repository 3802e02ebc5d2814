package ratelimit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/floodwatch-fl/floodwatch/internal/db"
)

// PostgresCounterStore implements CounterStore on the same Postgres the
// report store uses. The upsert increment is a single statement, so
// concurrent submissions from one device never lose updates.
type PostgresCounterStore struct {
	pool db.Pool
}

// NewPostgresCounterStore creates a PostgresCounterStore.
func NewPostgresCounterStore(pool db.Pool) *PostgresCounterStore {
	return &PostgresCounterStore{pool: pool}
}

// Increment implements CounterStore. The ON CONFLICT branch leaves
// expires_at untouched, so only the first write of a key sets the expiry.
func (s *PostgresCounterStore) Increment(ctx context.Context, key string, expiresAt time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rate_limit_counters (key, count, expires_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET count = rate_limit_counters.count + 1
		RETURNING count`,
		key, expiresAt,
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "ratelimit: increment")
	}
	return count, nil
}

// Count implements CounterStore. Expired rows are treated as absent; they
// are physically reaped by Purge.
func (s *PostgresCounterStore) Count(ctx context.Context, key string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count FROM rate_limit_counters
		WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&count)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, eris.Wrap(err, "ratelimit: count")
	}
	return count, nil
}

// Purge deletes expired counter rows. The rotation job calls this weekly;
// correctness never depends on it since Count filters by expiry.
func (s *PostgresCounterStore) Purge(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rate_limit_counters WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "ratelimit: purge")
	}
	return int(tag.RowsAffected()), nil
}
