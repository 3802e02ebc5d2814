package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/floodwatch-fl/floodwatch/internal/db"
)

// PostgresStore implements Store on Postgres with PostGIS. Nearby queries
// use geography-typed ST_DWithin, so distances are geodesic meters.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore. The store takes ownership of
// the pool: Close closes it.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const reportColumns = `id, latitude, longitude, road_name, severity, device_fingerprint, created_at, expires_at, confidence_score`

// pointEWKB encodes a lng/lat pair as SRID-4326 EWKB for PostGIS.
func pointEWKB(lat, lng float64) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "report: encode point")
	}
	return data, nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, r *Report) error {
	point, err := pointEWKB(r.Latitude, r.Longitude)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO flood_reports (id, location, latitude, longitude, road_name, severity, device_fingerprint, created_at, expires_at, confidence_score)
		VALUES ($1, ST_GeogFromWKB($2), $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, point, r.Latitude, r.Longitude, nilIfEmpty(r.RoadName),
		string(r.Severity), r.Device, r.CreatedAt, r.ExpiresAt, r.Confidence,
	)
	return eris.Wrap(err, "report: insert")
}

// NearbyCount implements Store.
func (s *PostgresStore) NearbyCount(ctx context.Context, lat, lng, meters float64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM flood_reports
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		AND created_at > $4`,
		lng, lat, meters, since,
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "report: nearby count")
	}
	return count, nil
}

// ListActive implements Store.
func (s *PostgresStore) ListActive(ctx context.Context, now time.Time, f Filter) ([]Report, error) {
	sql := `SELECT ` + reportColumns + ` FROM flood_reports WHERE expires_at > $1`
	args := []any{now}

	if f.BBox != nil {
		args = append(args, f.BBox.West, f.BBox.South, f.BBox.East, f.BBox.North)
		sql += fmt.Sprintf(` AND ST_Within(location::geometry, ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326))`,
			len(args)-3, len(args)-2, len(args)-1, len(args))
	}
	if f.MinConfidence > 0 {
		args = append(args, f.MinConfidence)
		sql += fmt.Sprintf(` AND confidence_score >= $%d`, len(args))
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "report: list active")
	}
	defer rows.Close()
	return scanReports(rows)
}

// Delete implements Store. The submitter match is part of the WHERE clause
// so ownership is enforced in one statement.
func (s *PostgresStore) Delete(ctx context.Context, id, device string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM flood_reports WHERE id = $1 AND device_fingerprint = $2`,
		id, device,
	)
	if err != nil {
		return false, eris.Wrapf(err, "report: delete %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// AdminList implements Store.
func (s *PostgresStore) AdminList(ctx context.Context) ([]Report, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM flood_reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "report: admin list")
	}
	defer rows.Close()
	return scanReports(rows)
}

// AdminDelete implements Store.
func (s *PostgresStore) AdminDelete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flood_reports WHERE id = $1`, id)
	if err != nil {
		return false, eris.Wrapf(err, "report: admin delete %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// AdminClearAll implements Store.
func (s *PostgresStore) AdminClearAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flood_reports`)
	if err != nil {
		return 0, eris.Wrap(err, "report: clear all")
	}
	return int(tag.RowsAffected()), nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	y, mo, d := now.Date()
	dayStart := time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
	weekStart := now.AddDate(0, 0, -7)

	stats := &Stats{BySeverity: make(map[string]int)}

	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM flood_reports`).Scan(&stats.Total); err != nil {
		return nil, eris.Wrap(err, "report: stats total")
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM flood_reports WHERE created_at >= $1`, dayStart).Scan(&stats.Today); err != nil {
		return nil, eris.Wrap(err, "report: stats today")
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM flood_reports WHERE created_at >= $1`, weekStart).Scan(&stats.ThisWeek); err != nil {
		return nil, eris.Wrap(err, "report: stats week")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT severity, count(*) FROM flood_reports GROUP BY severity`)
	if err != nil {
		return nil, eris.Wrap(err, "report: stats by severity")
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, eris.Wrap(err, "report: scan severity stat")
		}
		stats.BySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "report: iterate severity stats")
	}
	return stats, nil
}

// ArchiveExpired implements Store. The archive copy, active delete, and
// audit insert commit or roll back together, so a reader never observes a
// report present in neither or both tables.
func (s *PostgresStore) ArchiveExpired(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "report: begin rotation tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO flood_reports_archive (id, location, latitude, longitude, road_name, severity, device_fingerprint, created_at, confidence_score, archived_at)
		SELECT id, location, latitude, longitude, road_name, severity, device_fingerprint, created_at, confidence_score, $1
		FROM flood_reports WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, eris.Wrap(err, "report: copy to archive")
	}
	archived := int(tag.RowsAffected())

	if _, err := tx.Exec(ctx,
		`DELETE FROM flood_reports WHERE expires_at <= $1`, now); err != nil {
		return 0, eris.Wrap(err, "report: delete expired")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO rotation_runs (ran_at, archived_count) VALUES ($1, $2)`,
		now, archived); err != nil {
		return 0, eris.Wrap(err, "report: record rotation")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "report: commit rotation tx")
	}
	return archived, nil
}

// LastRotation implements Store.
func (s *PostgresStore) LastRotation(ctx context.Context) (time.Time, error) {
	var ranAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT ran_at FROM rotation_runs ORDER BY ran_at DESC LIMIT 1`).Scan(&ranAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrap(err, "report: last rotation")
	}
	return ranAt, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanReports(rows pgx.Rows) ([]Report, error) {
	var out []Report
	for rows.Next() {
		var r Report
		var road *string
		if err := rows.Scan(&r.ID, &r.Latitude, &r.Longitude, &road, &r.Severity,
			&r.Device, &r.CreatedAt, &r.ExpiresAt, &r.Confidence); err != nil {
			return nil, eris.Wrap(err, "report: scan row")
		}
		if road != nil {
			r.RoadName = *road
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "report: iterate rows")
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
